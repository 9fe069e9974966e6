package checkout

import (
	"github.com/fjod/storefront-checkout/domain"
	"github.com/fjod/storefront-checkout/internal/payment"
)

// View is what the browser renders for one page.
type View struct {
	SessionID      string                                             `json:"session_id"`
	Cart           *domain.Cart                                       `json:"cart"`
	Fields         map[domain.AddressKind]map[domain.FieldName]string `json:"fields"`
	FieldErrors    domain.FieldErrors                                 `json:"field_errors"`
	Calculating    bool                                               `json:"calculating"`
	SelectedMethod domain.PaymentMethod                               `json:"selected_method,omitempty"`
	Submitting     bool                                               `json:"submitting"`
	SubmitError    string                                             `json:"submit_error,omitempty"`
	RedirectURL    string                                             `json:"redirect_url,omitempty"`
	Outcome        *payment.Outcome                                   `json:"outcome,omitempty"`
}

func (p *Page) State() View {
	v := View{
		SessionID:   p.sessionID,
		Cart:        p.Cart(),
		Fields:      make(map[domain.AddressKind]map[domain.FieldName]string, len(p.forms)),
		FieldErrors: make(domain.FieldErrors),
		Calculating: p.coordinator.IsCalculating(),
		Submitting:  p.engine.Submitting(),
	}
	for kind, form := range p.forms {
		v.Fields[kind] = form.Fields()
		for field, msg := range form.Errors() {
			v.FieldErrors.Set(field, msg)
		}
	}
	if m, ok := p.selector.Selected(); ok {
		v.SelectedMethod = m
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.submitErr != nil {
		v.SubmitError = domain.UserMessage(p.submitErr)
	}
	if p.redirect != nil {
		v.RedirectURL = p.redirect.Location
	}
	v.Outcome = p.outcome
	return v
}
