package api

import "encoding/json"

// envelope is the wrapper every game server response uses.
type envelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []ErrorDetail   `json:"errors,omitempty"`
}

// ErrorDetail is one entry of a response's errors array.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// MoveRequest is the body of POST /games/{id}/move.
type MoveRequest struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// ListOptions are the pagination parameters of list endpoints.
type ListOptions struct {
	Limit  int
	Offset int
}
