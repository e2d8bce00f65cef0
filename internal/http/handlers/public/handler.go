package public

import "github.com/tipster-link/internal/provider"

// Handler 公开接口处理器入口
// 说明：该处理器用于跳转、合作方回传与推广者自助 API。
type Handler struct {
	*provider.Container
}

// New 创建公开接口处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
