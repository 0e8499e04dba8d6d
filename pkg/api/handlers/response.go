package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/onchainfs/ledgerfs/pkg/apperr"
)

// writeJSON writes data as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"status":"error","error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

// errorBody is the JSON shape every non-2xx storage-API response carries: a
// stable machine code plus a human message, never an internal error object
// or stack trace.
type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// writeError maps err to its apperr.Code and HTTP status and writes the
// standard error body. Errors that aren't an *apperr.Error are reported as
// CodeInternal without leaking their text.
func writeError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	status := apperr.HTTPStatus(code)

	body := errorBody{}
	body.Error.Code = string(code)
	if code == apperr.CodeInternal {
		body.Error.Message = "internal error"
	} else {
		body.Error.Message = err.Error()
	}
	writeJSON(w, status, body)
}
