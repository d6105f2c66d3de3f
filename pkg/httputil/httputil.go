// Package httputil centralizes JSON response writing so every handler emits
// the same envelopes.
package httputil

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	dErrors "trustboard/pkg/domainerrors"
)

var exposeInternalDetail atomic.Bool

// ExposeInternalDetail controls whether internal error causes are echoed in
// error envelopes. Set once at startup from the development-mode flag;
// production leaves it off so internal detail stays suppressed.
func ExposeInternalDetail(on bool) {
	exposeInternalDetail.Store(on)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates a domain error into the uniform error envelope.
// Internal errors never leak detail to clients outside development mode;
// callers log the cause.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	message := dErrors.MessageOf(err)
	if code == dErrors.CodeInternal && exposeInternalDetail.Load() {
		message = err.Error()
	}
	WriteJSON(w, dErrors.HTTPStatus(code), errorEnvelope{
		Error: errorBody{
			Code:    string(code),
			Message: message,
		},
	})
}
