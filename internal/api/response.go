package api

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is returned for any failed API request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

const (
	codeBadRequest     = "BAD_REQUEST"
	codeValidation     = "VALIDATION_ERROR"
	codeNotFound       = "NOT_FOUND"
	codeNotConfigured  = "NOT_CONFIGURED"
	codeInternal       = "INTERNAL_ERROR"
	codeStorageFailure = "STORAGE_ERROR"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}
