package admin

import "github.com/tipster-link/internal/provider"

// Handler 后台管理接口：合作站点、转化审核、对账导入、佣金配置与结算
type Handler struct {
	*provider.Container
}

// New 创建后台处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
