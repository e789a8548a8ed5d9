package models

import (
	"encoding/json"
	"net/http"
)

// Response is the JSON body of every control API reply that is not a
// status record.
type Response struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

func NewResponse(message string) *Response {
	return &Response{
		Message: message,
	}
}

// WithCode tags the response with a machine readable error code.
func (r *Response) WithCode(code string) *Response {
	r.Code = code
	return r
}

func (r *Response) WithHint(hint string) *Response {
	r.Hint = hint
	return r
}

func (r *Response) WriteError(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(r)
}

// WriteJSON writes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
