package entity

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// Area exposes a set of resources under one route prefix, optionally behind
// a gate such as middleware.RequireRole.
type Area struct {
	prefix   string
	gate     []gin.HandlerFunc
	full     []Resource
	readOnly []Resource
}

// AreaSpec names the resources of an area by route segment.
type AreaSpec struct {
	Prefix   string
	Gate     gin.HandlerFunc
	Full     []string
	ReadOnly []string
}

// NewArea resolves spec against the catalog.
func NewArea(c *Catalog, spec AreaSpec) (*Area, error) {
	if c == nil {
		return nil, fmt.Errorf("area %s: catalog is nil", spec.Prefix)
	}
	full, err := c.Select(spec.Full...)
	if err != nil {
		return nil, fmt.Errorf("area %s: %w", spec.Prefix, err)
	}
	readOnly, err := c.Select(spec.ReadOnly...)
	if err != nil {
		return nil, fmt.Errorf("area %s: %w", spec.Prefix, err)
	}

	a := &Area{prefix: spec.Prefix, full: full, readOnly: readOnly}
	if spec.Gate != nil {
		a.gate = []gin.HandlerFunc{spec.Gate}
	}
	return a, nil
}

// RegisterRoutes mounts every resource of the area on api.
func (a *Area) RegisterRoutes(api *gin.RouterGroup) {
	g := api.Group(a.prefix, a.gate...)
	for _, r := range a.full {
		r.Register(g, ReadWrite)
	}
	for _, r := range a.readOnly {
		r.Register(g, ReadOnly)
	}
}
