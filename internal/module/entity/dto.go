package entity

// StatusRequest is the body of the activate/deactivate endpoint.
type StatusRequest struct {
	Active *int `json:"active" binding:"required,oneof=0 1"`
}
