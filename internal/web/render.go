package web

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/pensum-app/pensum/internal/errors"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// renderJSON writes data as a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderError writes err as {"error": {code, message, status, details}}.
// Errors without a code become INTERNAL. INTERNAL and STORE messages are
// replaced so driver text and file paths do not reach clients.
func renderError(w http.ResponseWriter, err error) {
	pErr, ok := errors.As(err)
	if !ok {
		pErr = errors.NewInternal(err)
	}

	errorObj := map[string]any{
		"code":    string(pErr.Code),
		"message": pErr.Message,
		"status":  pErr.Status,
	}
	switch pErr.Code {
	case errors.ErrInternal:
		errorObj["message"] = "an internal error occurred"
	case errors.ErrStore:
		errorObj["message"] = "the data store failed"
	}
	if pErr.Code != errors.ErrInternal && pErr.Details != nil {
		errorObj["details"] = pErr.Details
	}

	renderJSON(w, pErr.Status, map[string]any{"error": errorObj})
}

// decodeBody decodes a JSON request body into T. An empty body yields the
// zero value.
func decodeBody[T any](r *http.Request) (T, error) {
	var v T
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil && err != io.EOF {
		return v, errors.NewInvalidRequest("invalid JSON body: " + err.Error())
	}
	return v, nil
}
