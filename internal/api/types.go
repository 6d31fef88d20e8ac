package api

// PowerRequest is the body of the power endpoint.
type PowerRequest struct {
	Signal string `json:"signal" validate:"required,oneof=start stop restart kill"`
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
	Nodes   int    `json:"nodes"`
	Error   string `json:"error,omitempty"`
}
