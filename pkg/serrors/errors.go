package serrors

import "fmt"

// Base is a machine-readable error carrying a stable code alongside the
// human-readable message.
type Base struct {
	Code    string
	Message string
}

func (e *Base) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewError(code, message string) *Base {
	return &Base{Code: code, Message: message}
}
