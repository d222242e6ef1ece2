package domain

import "fmt"

// AppError is the base domain error type. Code and Status map directly to
// the wire error shape {success:false, error:<message>, code:<code>}.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// Standard domain error constructors.

func ErrSignatureInvalid() *AppError {
	return &AppError{Code: "SIGNATURE_INVALID", Message: "invalid request signature", Status: 401}
}

func ErrInvalidSession() *AppError {
	return &AppError{Code: "INVALID_SESSION", Message: "session not found or inactive", Status: 401}
}

func ErrInvalidAmount(msg string) *AppError {
	return &AppError{Code: "INVALID_AMOUNT", Message: msg, Status: 400}
}

func ErrInsufficientFunds() *AppError {
	return &AppError{Code: "INSUFFICIENT_FUNDS", Message: "insufficient funds", Status: 400}
}

func ErrCannotRollbackPayout() *AppError {
	return &AppError{Code: "CANNOT_ROLLBACK_PAYOUT", Message: "payout transactions cannot be rolled back", Status: 400}
}

func ErrUserNotFound(id string) *AppError {
	return &AppError{Code: "USER_NOT_FOUND", Message: fmt.Sprintf("user %s not found", id), Status: 404}
}

func ErrGameNotFound(id string) *AppError {
	return &AppError{Code: "GAME_NOT_FOUND", Message: fmt.Sprintf("game %s not found", id), Status: 404}
}

func ErrProviderNotFound(id string) *AppError {
	return &AppError{Code: "PROVIDER_NOT_FOUND", Message: fmt.Sprintf("provider %s not found", id), Status: 404}
}

func ErrValidation(msg string) *AppError {
	return &AppError{Code: "VALIDATION_ERROR", Message: msg, Status: 400}
}

func ErrUnauthorized(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Message: msg, Status: 401}
}

func ErrCasinoAPI(msg string, cause error) *AppError {
	return &AppError{Code: "CASINO_API_ERROR", Message: msg, Status: 502, Cause: cause}
}

func ErrInternal(msg string, cause error) *AppError {
	return &AppError{Code: "INTERNAL_ERROR", Message: msg, Status: 500, Cause: cause}
}
