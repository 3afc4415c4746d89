package entity

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/attendance/internal/domain"
	"github.com/simp-lee/attendance/internal/middleware"
	"github.com/simp-lee/attendance/internal/pkg"
)

const globalIDParam = "global_id"

// Handler serves the REST endpoints of one entity type.
type Handler[T any] struct {
	svc *Service[T]
}

// NewHandler creates a Handler for svc.
func NewHandler[T any](svc *Service[T]) *Handler[T] {
	return &Handler[T]{svc: svc}
}

// List handles GET /<resource>.
func (h *Handler[T]) List(c *gin.Context) {
	q := pkg.ParseListQuery(c)

	result, err := h.svc.List(c.Request.Context(), middleware.GetCaller(c), q)
	if err != nil {
		fail(c, err)
		return
	}

	pkg.List(c, result)
}

// Get handles GET /<resource>/:global_id.
func (h *Handler[T]) Get(c *gin.Context) {
	row, err := h.svc.Get(c.Request.Context(), middleware.GetCaller(c), c.Param(globalIDParam))
	if err != nil {
		fail(c, err)
		return
	}

	pkg.Success(c, row)
}

// Create handles POST /<resource>.
func (h *Handler[T]) Create(c *gin.Context) {
	payload, ok := bindPayload(c)
	if !ok {
		return
	}

	row, err := h.svc.Create(c.Request.Context(), payload)
	if err != nil {
		fail(c, err)
		return
	}

	pkg.Created(c, row)
}

// Update handles PATCH /<resource>/:global_id.
func (h *Handler[T]) Update(c *gin.Context) {
	payload, ok := bindPayload(c)
	if !ok {
		return
	}

	row, err := h.svc.Update(c.Request.Context(), middleware.GetCaller(c), c.Param(globalIDParam), payload)
	if err != nil {
		fail(c, err)
		return
	}

	pkg.Success(c, row)
}

// Status handles POST /<resource>/:global_id/status.
func (h *Handler[T]) Status(c *gin.Context) {
	var req StatusRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}

	row, err := h.svc.SetStatus(c.Request.Context(), middleware.GetCaller(c), c.Param(globalIDParam), *req.Active)
	if err != nil {
		fail(c, err)
		return
	}

	pkg.Success(c, row)
}

// Delete handles POST /<resource>/:global_id/delete.
func (h *Handler[T]) Delete(c *gin.Context) {
	row, err := h.svc.Delete(c.Request.Context(), middleware.GetCaller(c), c.Param(globalIDParam))
	if err != nil {
		fail(c, err)
		return
	}

	pkg.Success(c, row)
}

// bindPayload decodes the request body as a JSON object.
func bindPayload(c *gin.Context) (domain.Payload, bool) {
	var payload domain.Payload
	if err := c.ShouldBindJSON(&payload); err != nil {
		pkg.Error(c, domain.NewAppError(domain.CodeValidation, "request body must be a JSON object", err))
		return nil, false
	}
	return payload, true
}

// fail renders field-level validation failures with their details and every
// other error through the standard envelope.
func fail(c *gin.Context, err error) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		pkg.FieldErrors(c, ve.Fields)
		return
	}
	pkg.Error(c, err)
}
