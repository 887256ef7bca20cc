package app

import "fmt"

// DomainError is a portal-level failure that maps directly onto the API
// error envelope: Status becomes the HTTP code, Code the machine-readable
// string (VALIDATION_ERROR, PENDING_TASKS, RESTRICTED, ...), and Details
// carries structured context such as the pending-task count on an
// unconfirmed project completion.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}
