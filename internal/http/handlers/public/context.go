package public

import (
	"strings"

	handlershared "github.com/expertmarket/settlement/internal/http/handlers/shared"

	"github.com/gin-gonic/gin"
)

const sessionCookieName = "em_session"

func getUserID(c *gin.Context) (uint, bool) {
	return handlershared.GetContextUint(c, "user_id")
}

func getUserRole(c *gin.Context) string {
	return handlershared.GetContextString(c, "user_role")
}

// getSessionID 读取访客会话标识，优先 Cookie，退化到请求头
func getSessionID(c *gin.Context) string {
	if cookie, err := c.Cookie(sessionCookieName); err == nil {
		if trimmed := strings.TrimSpace(cookie); trimmed != "" {
			return trimmed
		}
	}
	return strings.TrimSpace(c.GetHeader("X-Session-ID"))
}
