package httpserver

import (
	"encoding/json"
	"net/http"

	"garnix-insights/src/failure"
)

// ErrorDetail is the error object of every non-2xx JSON response.
type ErrorDetail struct {
	Class   failure.Class `json:"class"`
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Field   string        `json:"field,omitempty"`
	Hint    string        `json:"hint,omitempty"`
}

// ErrorResponse wraps ErrorDetail with the request id.
type ErrorResponse struct {
	Error     ErrorDetail `json:"error"`
	RequestID string      `json:"request_id,omitempty"`
}

// StatusCode maps an error class to its HTTP status.
func StatusCode(class failure.Class) int {
	switch class {
	case failure.InvalidRequest:
		return http.StatusBadRequest
	case failure.MissingCredential, failure.AuthRejected:
		return http.StatusUnauthorized
	case failure.NotFound:
		return http.StatusNotFound
	case failure.NetworkTransient:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NewErrorResponse encodes a classified error for the wire.
func NewErrorResponse(err error, requestID string) ErrorResponse {
	fe := failure.As(err)
	return ErrorResponse{
		Error: ErrorDetail{
			Class:   fe.Class,
			Code:    failure.Code(fe.Class),
			Message: fe.Error(),
			Field:   fe.Field,
			Hint:    failure.Hint(fe.Class),
		},
		RequestID: requestID,
	}
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// WriteError writes err as a JSON error response.
func WriteError(w http.ResponseWriter, err error, requestID string) {
	WriteJSON(w, StatusCode(failure.ClassOf(err)), NewErrorResponse(err, requestID))
}
