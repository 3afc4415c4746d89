package setting

import "github.com/gin-gonic/gin"

// Module registers the settings maintenance routes. CRUD on settings is
// served by the entity catalog.
type Module struct {
	handler *Handler
	prefix  string
	gate    gin.HandlerFunc
}

// NewModule creates a Module mounted at prefix behind gate.
// Panics if h is nil.
func NewModule(h *Handler, prefix string, gate gin.HandlerFunc) *Module {
	if h == nil {
		panic("setting.NewModule: handler must not be nil")
	}
	return &Module{handler: h, prefix: prefix, gate: gate}
}

// RegisterRoutes registers POST <prefix>/settings/refresh.
func (m *Module) RegisterRoutes(api *gin.RouterGroup) {
	g := api.Group(m.prefix)
	if m.gate != nil {
		g.Use(m.gate)
	}
	g.POST("/settings/refresh", m.handler.Refresh)
}
