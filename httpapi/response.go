package httpapi

import (
	"net/http"

	"github.com/authgate/authgate"
)

func respond(w http.ResponseWriter, status int, message string, result any) {
	authgate.WriteEnvelope(w, authgate.Envelope{
		StatusCode: status,
		Success:    status < 400,
		Message:    message,
		Result:     result,
	})
}

func respondError(w http.ResponseWriter, status int, message string) {
	respond(w, status, message, nil)
}
