package webhook

import "net/http"

// HookError is a request failure that maps directly onto an HTTP response.
type HookError struct {
	Status  int
	Message string
}

func (e *HookError) Error() string {
	return e.Message
}

var (
	ErrRepositoryNotFound = &HookError{Status: http.StatusNotFound, Message: "Repository not found"}
	ErrMissingSignature   = &HookError{Status: http.StatusBadRequest, Message: "Missing signature header"}
	ErrInvalidSignature   = &HookError{Status: http.StatusUnauthorized, Message: "Invalid signature header"}
	ErrInvalidPayload     = &HookError{Status: http.StatusBadRequest, Message: "Invalid JSON payload"}
	ErrPayloadTooLarge    = &HookError{Status: http.StatusRequestEntityTooLarge, Message: "Payload Too Large"}
	ErrNotFound           = &HookError{Status: http.StatusNotFound, Message: "Not Found"}

	errInternal = &HookError{Status: http.StatusInternalServerError, Message: "Internal Server Error"}
)
