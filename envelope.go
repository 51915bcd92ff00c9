package authgate

import (
	"encoding/json"
	"net/http"
)

// Envelope is the REST response shape shared by every endpoint and by the
// deny responses written from authentication/authorization middleware.
type Envelope struct {
	StatusCode int    `json:"statusCode"`
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
	Result     any    `json:"result,omitempty"`
}

// WriteEnvelope serializes an Envelope with the matching HTTP status.
func WriteEnvelope(w http.ResponseWriter, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(env.StatusCode)
	_ = json.NewEncoder(w).Encode(env)
}

func deny(w http.ResponseWriter, status int, message string) {
	WriteEnvelope(w, Envelope{
		StatusCode: status,
		Success:    false,
		Message:    message,
	})
}
