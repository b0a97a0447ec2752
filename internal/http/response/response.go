package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Response 统一响应包络。HTTP 层始终返回 200，业务结果看 status_code。
type Response struct {
	StatusCode int         `json:"status_code"`
	Msg        string      `json:"msg"`
	Data       interface{} `json:"data"`
}

// PageResponse 带分页信息的响应包络。
type PageResponse struct {
	StatusCode int         `json:"status_code"`
	Msg        string      `json:"msg"`
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

// Pagination 分页信息。
type Pagination struct {
	Page      int   `json:"page"`
	PageSize  int   `json:"page_size"`
	Total     int64 `json:"total"`
	TotalPage int64 `json:"total_page"`
}

func emit(c *gin.Context, code int, msg string, data interface{}) {
	c.JSON(http.StatusOK, Response{StatusCode: code, Msg: msg, Data: data})
}

// Success 成功响应。
func Success(c *gin.Context, data interface{}) {
	emit(c, 0, "success", data)
}

// SuccessWithMsg 自定义提示消息的成功响应。
func SuccessWithMsg(c *gin.Context, msg string, data interface{}) {
	emit(c, 0, msg, data)
}

// SuccessWithPage 分页成功响应。
func SuccessWithPage(c *gin.Context, data interface{}, pagination Pagination) {
	c.JSON(http.StatusOK, PageResponse{
		Msg:        "success",
		Data:       data,
		Pagination: pagination,
	})
}

// Error 错误响应，data 里补上 request_id 方便排查对账问题。
func Error(c *gin.Context, statusCode int, msg string) {
	emit(c, statusCode, msg, attachRequestID(c, nil))
}

// ErrorWithData 携带附加数据的错误响应。
func ErrorWithData(c *gin.Context, statusCode int, msg string, data interface{}) {
	emit(c, statusCode, msg, attachRequestID(c, data))
}

func NotFound(c *gin.Context, msg string) { Error(c, CodeNotFound, msg) }

func Unauthorized(c *gin.Context, msg string) { Error(c, CodeUnauthorized, msg) }

func Forbidden(c *gin.Context, msg string) { Error(c, CodeForbidden, msg) }

func BadRequest(c *gin.Context, msg string) { Error(c, CodeBadRequest, msg) }

// Conflict 状态冲突响应：状态机非法迁移、幂等键复用、并发抢占失败。
func Conflict(c *gin.Context, msg string) { Error(c, CodeConflict, msg) }

// attachRequestID 把 request_id 并进错误响应的 data，已有同名字段时不覆盖。
func attachRequestID(c *gin.Context, data interface{}) interface{} {
	var requestID string
	if c != nil {
		if value, ok := c.Get("request_id"); ok {
			requestID, _ = value.(string)
		}
	}
	if requestID == "" {
		return data
	}
	switch v := data.(type) {
	case nil:
		return gin.H{"request_id": requestID}
	case gin.H:
		if _, ok := v["request_id"]; !ok {
			v["request_id"] = requestID
		}
		return v
	case map[string]interface{}:
		if _, ok := v["request_id"]; !ok {
			v["request_id"] = requestID
		}
		return v
	default:
		return gin.H{"request_id": requestID, "data": data}
	}
}
