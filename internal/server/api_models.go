package server

// HealthResponse is returned by GET /health for monitoring.
type HealthResponse struct {
	Status         string `json:"status" example:"healthy"`
	Timestamp      string `json:"timestamp" example:"2026-01-14T12:00:00Z"`
	ActiveSessions int    `json:"active_sessions" example:"0"`
}

// BannerResponse is the GET / service banner.
type BannerResponse struct {
	Service string `json:"service" example:"Hashi"`
	Status  string `json:"status" example:"running"`
	Version string `json:"version" example:"0.1.0"`
	Docs    string `json:"docs" example:"/docs"`
}

// ErrorResponse is a uniform error payload returned by the API.
type ErrorResponse struct {
	Error string `json:"error" example:"not found"`
}
