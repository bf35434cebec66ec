package types

import (
	"errors"
	"fmt"
	"net/http"

	"gorm.io/gorm"
)

var (
	ErrEventNotFound  = errors.New("event not found")
	ErrTicketNotFound = errors.New("ticket not found")
)

type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// InvalidTicketTypeError names the line item that did not match any ticket
// type on the target event.
type InvalidTicketTypeError struct {
	Name string
}

func (e *InvalidTicketTypeError) Error() string {
	return fmt.Sprintf("event has no ticket type named %q", e.Name)
}

// SoldOutError names the ticket type whose remaining inventory could not
// cover the requested quantity.
type SoldOutError struct {
	Name string
}

func (e *SoldOutError) Error() string {
	return fmt.Sprintf("ticket type %q is sold out", e.Name)
}

// HTTPStatus maps domain errors to response codes at the handler boundary.
// Anything unrecognized is treated as a storage/infra failure.
func HTTPStatus(err error) int {
	var validationErr *ValidationError
	var invalidTypeErr *InvalidTicketTypeError
	var soldOutErr *SoldOutError
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.Is(err, ErrEventNotFound),
		errors.Is(err, ErrTicketNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.As(err, &invalidTypeErr), errors.As(err, &soldOutErr):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
