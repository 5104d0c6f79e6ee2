package domain

import "errors"

// Ledger error taxonomy. Callers match with errors.Is.
var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrRemoteUnavailable  = errors.New("remote unavailable")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrNotFound           = errors.New("not found")

	// ErrTxConflict signals a concurrent write; stores retry on it
	ErrTxConflict = errors.New("transaction conflict")
)

// UserMessage maps an error to a short human-readable message
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientFunds):
		return "Insufficient funds"
	case errors.Is(err, ErrInsufficientShares):
		return "Insufficient shares"
	case errors.Is(err, ErrNotAuthenticated):
		return "Please sign in first"
	case errors.Is(err, ErrRemoteUnavailable), errors.Is(err, ErrTxConflict):
		return "Service unavailable, try again later"
	case errors.Is(err, ErrInvalidArgument):
		return "Invalid request"
	case errors.Is(err, ErrNotFound):
		return "Not found"
	default:
		return "Something went wrong"
	}
}
