package domain

import "time"

type ShippingMethod struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Amount int64  `json:"amount"`
}

// Cart is the server-owned snapshot of the in-progress order.
type Cart struct {
	ID                string             `json:"id"`
	Email             string             `json:"email"`
	CurrencyCode      string             `json:"currency_code"`
	ShippingAddress   *Address           `json:"shipping_address,omitempty"`
	BillingAddress    *Address           `json:"billing_address,omitempty"`
	ShippingMethods   []ShippingMethod   `json:"shipping_methods"`
	Subtotal          int64              `json:"subtotal"`
	ShippingTotal     int64              `json:"shipping_total"`
	TaxTotal          *int64             `json:"tax_total"`
	Total             int64              `json:"total"`
	PaymentCollection *PaymentCollection `json:"payment_collection,omitempty"`
	CompletedAt       *time.Time         `json:"completed_at,omitempty"`
}

// Tax returns the computed tax total and whether the backend has computed one.
func (c *Cart) Tax() (int64, bool) {
	if c == nil || c.TaxTotal == nil {
		return 0, false
	}
	return *c.TaxTotal, true
}

// IsPaymentAuthorized reports whether the payment collection reached the authorized state.
func (c *Cart) IsPaymentAuthorized() bool {
	return c != nil && c.PaymentCollection != nil &&
		c.PaymentCollection.Status == PaymentCollectionAuthorized
}

func (c *Cart) IsCompleted() bool {
	return c != nil && c.CompletedAt != nil
}

// Address returns the address of the given kind, nil when absent.
func (c *Cart) Address(kind AddressKind) *Address {
	if c == nil {
		return nil
	}
	if kind == BillingAddress {
		return c.BillingAddress
	}
	return c.ShippingAddress
}

// ActiveSession returns the session that payment confirmation should use.
func (c *Cart) ActiveSession() *PaymentSession {
	if c == nil || c.PaymentCollection == nil {
		return nil
	}
	return c.PaymentCollection.ActiveSession()
}
