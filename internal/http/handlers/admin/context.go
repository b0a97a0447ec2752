package admin

import (
	handlershared "github.com/expertmarket/settlement/internal/http/handlers/shared"

	"github.com/gin-gonic/gin"
)

func getOperatorID(c *gin.Context) (uint, bool) {
	return handlershared.GetContextUint(c, "user_id")
}

func getOperatorRole(c *gin.Context) string {
	return handlershared.GetContextString(c, "user_role")
}
