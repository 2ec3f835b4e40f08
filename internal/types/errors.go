// README: Engine error taxonomy; transport layers map these with errors.Is/As.
package types

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrIllegalTransition        = errors.New("illegal tour transition")
	ErrIllegalBookingTransition = errors.New("illegal booking transition")
	ErrPreconditionFailed       = errors.New("precondition failed")
	ErrInsufficientCapacity     = errors.New("insufficient capacity")
	ErrForbidden                = errors.New("forbidden")
	ErrNotFound                 = errors.New("not found")
	ErrConsistencyViolation     = errors.New("consistency violation")
	ErrBadRequest               = errors.New("bad request")
	ErrDuplicateBooking         = errors.New("user already holds an active booking on this tour")
	ErrConflict                 = errors.New("state conflict")
)

// PreconditionError reports a guard rejection together with the bookings that caused it.
type PreconditionError struct {
	Reason     string
	BookingIDs []int64
}

func (e *PreconditionError) Error() string {
	if len(e.BookingIDs) == 0 {
		return fmt.Sprintf("%s: %s", ErrPreconditionFailed, e.Reason)
	}
	ids := make([]string, len(e.BookingIDs))
	for i, id := range e.BookingIDs {
		ids[i] = fmt.Sprint(id)
	}
	return fmt.Sprintf("%s: %s (bookings %s)", ErrPreconditionFailed, e.Reason, strings.Join(ids, ", "))
}

func (e *PreconditionError) Unwrap() error {
	return ErrPreconditionFailed
}
