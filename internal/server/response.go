package server

import (
	"encoding/json"
	"net/http"

	"github.com/solovex/gridtrader/internal/domain"
)

// envelope is the uniform response shape spec §6 requires of every
// handler: {status: "success"|"error", message?, data?}.
type envelope struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeOK writes a 200 success envelope with data.
func writeOK(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, envelope{Status: "success", Data: data})
}

// writeError writes an error envelope. A *domain.ValidationError reports
// as 400; everything else as 500, matching the error-handling design's
// "validation errors are returned to API callers verbatim" rule.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if _, ok := err.(*domain.ValidationError); ok {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, envelope{Status: "error", Message: err.Error()})
}

// writeErrorStatus writes an error envelope with an explicit status code,
// for handlers reporting something other than validation/internal (e.g.
// 404 for an unknown session or template).
func writeErrorStatus(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Status: "error", Message: message})
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	defer r.Body.Close()
	return dec.Decode(v)
}
