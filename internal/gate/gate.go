// Package gate blocks payment confirmation until every required checkout field is valid.
package gate

import (
	"github.com/fjod/storefront-checkout/domain"
	"github.com/fjod/storefront-checkout/internal/validator"
)

// Reporter is the view side of the gate. The HTTP layer turns these calls into
// directives for the browser.
type Reporter interface {
	ScrollToTop()
	ReportValidity(field domain.FieldName, message string)
	Focus(field domain.FieldName)
}

type Gate struct {
	validator *validator.Validator
}

func New(v *validator.Validator) *Gate {
	return &Gate{validator: v}
}

// Check returns the invalid fields in report order: shipping address, contact
// email, then the billing address when the cart has one.
func (g *Gate) Check(cart *domain.Cart) []domain.FieldIssue {
	var issues []domain.FieldIssue
	issues = append(issues, g.validator.CheckAddress(domain.ShippingAddress, cart.Address(domain.ShippingAddress))...)

	var email string
	if cart != nil {
		email = cart.Email
	}
	issues = append(issues, g.validator.CheckEmail(email)...)

	if billing := cart.Address(domain.BillingAddress); billing != nil {
		issues = append(issues, g.validator.CheckAddress(domain.BillingAddress, billing)...)
	}
	return issues
}

// Run checks the cart and, when something is missing, drives the reporter and
// returns a *domain.ValidationError. A nil reporter only skips the view calls.
func (g *Gate) Run(cart *domain.Cart, reporter Reporter) error {
	issues := g.Check(cart)
	if len(issues) == 0 {
		return nil
	}
	if reporter != nil {
		reporter.ScrollToTop()
		for _, is := range issues {
			reporter.ReportValidity(is.Field, is.Message)
		}
		reporter.Focus(issues[0].Field)
	}
	return &domain.ValidationError{Issues: issues}
}

// Directives records reporter calls so they can be sent to the browser.
type Directives struct {
	ScrolledToTop bool                `json:"scroll_to_top"`
	Invalid       []domain.FieldIssue `json:"invalid"`
	Focused       domain.FieldName    `json:"focus,omitempty"`
}

func (d *Directives) ScrollToTop() {
	d.ScrolledToTop = true
}

func (d *Directives) ReportValidity(field domain.FieldName, message string) {
	d.Invalid = append(d.Invalid, domain.FieldIssue{Field: field, Message: message})
}

func (d *Directives) Focus(field domain.FieldName) {
	if d.Focused == "" {
		d.Focused = field
	}
}
