package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration      = errors.New("payment is not configured for this checkout")
	ErrSubmitInProgress   = errors.New("a payment submission is already in progress")
	ErrNoPaymentMethod    = errors.New("no payment method selected")
	ErrUnknownMethod      = errors.New("unknown payment method")
	ErrExpressViaWidget   = errors.New("express methods complete through the wallet widget")
	ErrOrderAlreadyPlaced = errors.New("an order was already placed for this payment session")
)

// GenericRetryMessage is shown for faults the buyer cannot correct.
const GenericRetryMessage = "An error occurred, please try again."

// RedirectError signals a navigation in progress. It is never a failure and must be
// propagated unchanged by every caller.
type RedirectError struct {
	Location   string
	StatusCode int
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("redirect (%d) to %s", e.StatusCode, e.Location)
}

func IsRedirect(err error) bool {
	var r *RedirectError
	return errors.As(err, &r)
}

// AsRedirect returns the redirect carried by err, if any.
func AsRedirect(err error) (*RedirectError, bool) {
	var r *RedirectError
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

type FieldIssue struct {
	Field   FieldName `json:"field"`
	Message string    `json:"message"`
}

// ValidationError is raised by the field gate before any network call.
type ValidationError struct {
	Issues []FieldIssue
}

func (e *ValidationError) Error() string {
	names := make([]string, len(e.Issues))
	for i, is := range e.Issues {
		names[i] = string(is.Field)
	}
	return "invalid checkout fields: " + strings.Join(names, ", ")
}

// Fields returns the offending fields in report order.
func (e *ValidationError) Fields() []FieldName {
	out := make([]FieldName, len(e.Issues))
	for i, is := range e.Issues {
		out[i] = is.Field
	}
	return out
}

// ProviderDeclinedError is returned when the provider answered and refused the payment.
// IntentStatus carries the state of the underlying intent when the provider reported it.
type ProviderDeclinedError struct {
	Code         string
	Message      string
	IntentStatus IntentStatus
}

func (e *ProviderDeclinedError) Error() string {
	if e.Code == "" {
		return "payment declined: " + e.Message
	}
	return fmt.Sprintf("payment declined (%s): %s", e.Code, e.Message)
}

// UserMessage renders the submission-level message shown near the submit control.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var declined *ProviderDeclinedError
	var invalid *ValidationError
	switch {
	case errors.As(err, &declined):
		if declined.Message != "" {
			return declined.Message
		}
		return "Your payment was declined."
	case errors.As(err, &invalid):
		return "Please complete the highlighted fields."
	case errors.Is(err, ErrNoPaymentMethod):
		return "Please select a payment method."
	case errors.Is(err, ErrSubmitInProgress):
		return "Your payment is being processed."
	case errors.Is(err, ErrOrderAlreadyPlaced):
		return "This order has already been placed."
	}
	return GenericRetryMessage
}
