package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrConflict         = errors.New("state precondition mismatch")
	ErrInsufficientData = errors.New("insufficient quote data")
	ErrInvalidParams    = errors.New("invalid parameters")
	ErrRateLimited      = errors.New("rate limited")
	ErrLockHeld         = errors.New("lock already held")
	ErrRejected         = errors.New("exchange rejected instruction")
)

// Rejection is a terminal business rejection reported by the exchange, such
// as invalid odds or insufficient funds. It is never retried.
type Rejection struct {
	Code   string
	Reason string
}

func (r *Rejection) Error() string {
	if r.Code == "" {
		return "exchange rejected instruction: " + r.Reason
	}
	return "exchange rejected instruction [" + r.Code + "]: " + r.Reason
}

// Is lets errors.Is(err, ErrRejected) match any Rejection.
func (r *Rejection) Is(target error) bool {
	return target == ErrRejected
}
