package order

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationErrorCode categorizes rejected drafts.
type ValidationErrorCode string

const (
	// ErrCodeEmptyCart indicates a draft with no line items.
	ErrCodeEmptyCart ValidationErrorCode = "EMPTY_CART"

	// ErrCodeNonFiniteTotal indicates a NaN or infinite amount.
	ErrCodeNonFiniteTotal ValidationErrorCode = "NON_FINITE_TOTAL"

	// ErrCodeMissingTenant indicates no tenant context is configured.
	ErrCodeMissingTenant ValidationErrorCode = "MISSING_TENANT"
)

// ValidationError is returned for drafts that must never be queued or sent.
// It signals a caller or programming error, never a network failure.
type ValidationError struct {
	Code    ValidationErrorCode
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsValidationError returns true if err is or wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validate checks a draft before it enters the engine.
func Validate(d Draft, tenantID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return &ValidationError{Code: ErrCodeMissingTenant, Message: "tenant id is required"}
	}
	if len(d.Items) == 0 {
		return &ValidationError{Code: ErrCodeEmptyCart, Message: "order has no items"}
	}
	if !isFinite(d.Total) {
		return &ValidationError{Code: ErrCodeNonFiniteTotal, Message: fmt.Sprintf("total %v is not a finite number", d.Total)}
	}
	for i, item := range d.Items {
		if !isFinite(item.UnitPrice) || !isFinite(item.LineTotal) {
			return &ValidationError{
				Code:    ErrCodeNonFiniteTotal,
				Message: fmt.Sprintf("item %d (%s) has a non-finite amount", i, item.ProductID),
			}
		}
	}
	return nil
}
