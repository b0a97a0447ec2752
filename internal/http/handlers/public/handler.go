package public

import "github.com/expertmarket/settlement/internal/provider"

// Handler 用户侧接口处理器入口
// 说明：该处理器用于买家、专家与公开 API。
type Handler struct {
	*provider.Container
}

// New 创建用户侧处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
