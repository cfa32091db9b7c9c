package api

// TokenResponse is the payload of the token endpoint.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// CreatedResponse is returned with 201 by the resource endpoint.
type CreatedResponse struct {
	ID string `json:"id"`
}

// SubmissionResponse is one entry in GET /api/v1/submissions.
type SubmissionResponse struct {
	ID          string `json:"id"`
	Path        string `json:"path"`
	ContentType string `json:"content_type"`
	AuthMode    string `json:"auth_mode"`
	Size        int    `json:"size"`
	// Payload is the body as received when it is valid JSON.
	Payload    any    `json:"payload,omitempty"`
	ReceivedAt string `json:"received_at"` // RFC3339
}

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status           string `json:"status"`
	Submissions      int    `json:"submissions"`
	TokenRequests    int64  `json:"token_requests"`
	ResourceRequests int64  `json:"resource_requests"`
}

// errorResponse is a generic JSON error body. The token endpoint uses the
// OAuth error codes (invalid_client, invalid_grant, ...).
type errorResponse struct {
	Error string `json:"error"`
}
