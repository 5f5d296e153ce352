package domain

import (
	"errors"
	"fmt"
)

var (
	ErrQuotaExceeded   = errors.New("quota exceeded")
	ErrDeliveryFailure = errors.New("delivery failure")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func Invalid(field, reason string) ValidationError {
	return ValidationError{Field: field, Reason: reason}
}

type NotFoundError struct {
	Type string
	Name string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Type, e.Name)
}

func NotFound(t, name string) NotFoundError {
	return NotFoundError{Type: t, Name: name}
}

// QuotaExceededError reports a rejected consumption. The ledger is unchanged.
type QuotaExceededError struct {
	MeterID      string
	RequestedKWh float64
	AvailableKWh float64
}

func (e QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for meter %s: requested %.3f kWh, available %.3f kWh",
		e.MeterID, e.RequestedKWh, e.AvailableKWh)
}

func (e QuotaExceededError) Unwrap() error { return ErrQuotaExceeded }
