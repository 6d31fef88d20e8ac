package models

// TokenData is the payload of a successful token response.
type TokenData struct {
	Token            string   `json:"token"`
	ExpiresAt        int64    `json:"expires_at"`
	ServerUUID       string   `json:"server_uuid"`
	UserUUID         string   `json:"user_uuid"`
	Permissions      []string `json:"permissions"`
	ConnectionString string   `json:"connection_string"`
}

// TokenResponse is the panel API response for a WebSocket token request.
type TokenResponse struct {
	Success      bool       `json:"success"`
	Message      string     `json:"message"`
	Data         *TokenData `json:"data,omitempty"`
	Error        bool       `json:"error"`
	ErrorMessage *string    `json:"error_message"`
	ErrorCode    *string    `json:"error_code"`
}

// CallResult is the success/data/error triple returned to panel API clients
// for proxied daemon operations.
type CallResult struct {
	Success bool   `json:"success"`
	Status  int    `json:"status"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
}
