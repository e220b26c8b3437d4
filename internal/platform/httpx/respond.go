// Package httpx provides the JSON response envelope shared by every API
// handler.
package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/warungbooks/warungbooks/internal/shared"
)

// ErrorBody is the error half of the response envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Envelope is the uniform response shape: exactly one of Error and Data is
// set.
type Envelope struct {
	Error   *ErrorBody `json:"error"`
	Data    any        `json:"data"`
	Message string     `json:"message"`
	Status  int        `json:"status"`
}

// JSON writes data wrapped in the envelope with the given status code.
func JSON(w http.ResponseWriter, status int, data any, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{Data: data, Message: message, Status: status})
}

// Created writes a 201 envelope.
func Created(w http.ResponseWriter, data any, message string) {
	JSON(w, http.StatusCreated, data, message)
}

// OK writes a 200 envelope.
func OK(w http.ResponseWriter, data any, message string) {
	JSON(w, http.StatusOK, data, message)
}

// Error writes an error envelope using the explicit code and status.
func Error(w http.ResponseWriter, status int, code shared.Code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Envelope{
		Error:   &ErrorBody{Code: string(code), Message: message},
		Message: message,
		Status:  status,
	})
}

// DecodeJSON decodes the request body into target.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}
