package httptransport

import (
	"encoding/json"
	"net/http"

	dErrors "chaintrail/pkg/domain-errors"
)

// errorEnvelope is the JSON error shape for every endpoint.
type errorEnvelope struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError translates coded errors into status codes and JSON envelopes.
// Handlers never inspect error strings.
func writeError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	writeJSON(w, dErrors.ToHTTPStatus(code), errorEnvelope{
		Error:   string(code),
		Message: dErrors.MessageOf(err),
	})
}
