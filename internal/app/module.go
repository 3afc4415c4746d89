package app

import "github.com/gin-gonic/gin"

// Module defines the contract for a self-registering route group. Each
// module mounts its own endpoints under the /api/v1 group.
type Module interface {
	RegisterRoutes(api *gin.RouterGroup)
}
