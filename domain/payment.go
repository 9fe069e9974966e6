package domain

import "strings"

// PaymentMethod names the buyer's chosen method. The zero value means no method chosen.
type PaymentMethod string

const (
	MethodCard             PaymentMethod = "card"
	MethodKlarna           PaymentMethod = "klarna"
	MethodAfterpayClearpay PaymentMethod = "afterpay_clearpay"
	MethodApplePay         PaymentMethod = "apple_pay"
	MethodGooglePay        PaymentMethod = "google_pay"
	MethodIdeal            PaymentMethod = "ideal"
	MethodBancontact       PaymentMethod = "bancontact"
)

// MethodFamily groups methods that share one confirmation protocol.
type MethodFamily int

const (
	FamilyUnknown MethodFamily = iota
	FamilyInline
	FamilyRedirect
	FamilyExpress
)

func (f MethodFamily) String() string {
	switch f {
	case FamilyInline:
		return "inline"
	case FamilyRedirect:
		return "redirect"
	case FamilyExpress:
		return "express"
	}
	return "unknown"
}

var methodFamilies = map[PaymentMethod]MethodFamily{
	MethodCard:             FamilyInline,
	MethodKlarna:           FamilyRedirect,
	MethodAfterpayClearpay: FamilyRedirect,
	MethodApplePay:         FamilyExpress,
	MethodGooglePay:        FamilyExpress,
	MethodIdeal:            FamilyExpress,
	MethodBancontact:       FamilyExpress,
}

func (m PaymentMethod) Family() MethodFamily {
	return methodFamilies[m]
}

func (m PaymentMethod) Valid() bool {
	_, ok := methodFamilies[m]
	return ok
}

// ProviderID is the commerce backend's payment provider identifier for the method.
func (m PaymentMethod) ProviderID() string {
	// device wallets confirm against the card provider's intent
	switch m {
	case MethodCard, MethodApplePay, MethodGooglePay:
		return "pp_stripe_stripe"
	}
	if !m.Valid() {
		return ""
	}
	return "pp_stripe-" + strings.ReplaceAll(string(m), "_", "-") + "_stripe"
}

// ParseMethods converts configuration strings, skipping unknown names.
func ParseMethods(names []string) []PaymentMethod {
	out := make([]PaymentMethod, 0, len(names))
	for _, n := range names {
		m := PaymentMethod(strings.TrimSpace(n))
		if m.Valid() {
			out = append(out, m)
		}
	}
	return out
}

type PaymentSessionStatus string

const (
	SessionPending      PaymentSessionStatus = "pending"
	SessionAuthorized   PaymentSessionStatus = "authorized"
	SessionRequiresMore PaymentSessionStatus = "requires_more"
	SessionError        PaymentSessionStatus = "error"
	SessionCanceled     PaymentSessionStatus = "canceled"
)

type PaymentSession struct {
	ID         string               `json:"id"`
	ProviderID string               `json:"provider_id"`
	Status     PaymentSessionStatus `json:"status"`
	Amount     int64                `json:"amount"`
	Data       map[string]any       `json:"data,omitempty"`
}

// ClientSecret returns the provider client secret stored in the session data.
func (s *PaymentSession) ClientSecret() string {
	if s == nil || s.Data == nil {
		return ""
	}
	secret, _ := s.Data["client_secret"].(string)
	return secret
}

type PaymentCollectionStatus string

const (
	PaymentCollectionNotPaid    PaymentCollectionStatus = "not_paid"
	PaymentCollectionAwaiting   PaymentCollectionStatus = "awaiting"
	PaymentCollectionAuthorized PaymentCollectionStatus = "authorized"
	PaymentCollectionCanceled   PaymentCollectionStatus = "canceled"
)

type PaymentCollection struct {
	ID              string                  `json:"id"`
	Status          PaymentCollectionStatus `json:"status"`
	PaymentSessions []PaymentSession        `json:"payment_sessions"`
}

// ActiveSession picks the first pending session, else the first one not canceled, else nil.
func (c *PaymentCollection) ActiveSession() *PaymentSession {
	if c == nil {
		return nil
	}
	for i := range c.PaymentSessions {
		if c.PaymentSessions[i].Status == SessionPending {
			return &c.PaymentSessions[i]
		}
	}
	for i := range c.PaymentSessions {
		if c.PaymentSessions[i].Status != SessionCanceled {
			return &c.PaymentSessions[i]
		}
	}
	return nil
}

// IntentStatus mirrors the provider's payment intent lifecycle.
type IntentStatus string

const (
	IntentSucceeded             IntentStatus = "succeeded"
	IntentRequiresCapture       IntentStatus = "requires_capture"
	IntentRequiresAction        IntentStatus = "requires_action"
	IntentProcessing            IntentStatus = "processing"
	IntentRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentRequiresConfirmation  IntentStatus = "requires_confirmation"
	IntentCanceled              IntentStatus = "canceled"
)

// Secured reports whether funds are captured or authorized for capture.
func (s IntentStatus) Secured() bool {
	return s == IntentSucceeded || s == IntentRequiresCapture
}

type PaymentIntent struct {
	ID          string       `json:"id"`
	Status      IntentStatus `json:"status"`
	RedirectURL string       `json:"redirect_url,omitempty"`
}

// MethodForProvider maps a backend provider ID back to a payment method. The shared
// card provider maps to MethodCard.
func MethodForProvider(providerID string) (PaymentMethod, bool) {
	if providerID == MethodCard.ProviderID() {
		return MethodCard, true
	}
	for m := range methodFamilies {
		if m.ProviderID() == providerID {
			return m, true
		}
	}
	return "", false
}
