package autosave

import (
	"errors"
	"sync"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/fjod/storefront-checkout/internal/validator"
)

var ErrUnknownField = errors.New("field does not belong to this form")

// AddressForm is the local, editable mirror of one cart address. Once the buyer
// has edited it, cart refreshes no longer overwrite its values.
type AddressForm struct {
	mu            sync.Mutex
	kind          domain.AddressKind
	validator     *validator.Validator
	fields        map[domain.FieldName]string
	errors        domain.FieldErrors
	hasUserEdited bool
}

// NewAddressForm builds an empty form. The shipping form also carries the contact email.
func NewAddressForm(kind domain.AddressKind, v *validator.Validator) *AddressForm {
	f := &AddressForm{
		kind:      kind,
		validator: v,
		fields:    make(map[domain.FieldName]string),
		errors:    make(domain.FieldErrors),
	}
	for _, name := range f.names() {
		f.fields[name] = ""
	}
	return f
}

func (f *AddressForm) Kind() domain.AddressKind {
	return f.kind
}

func (f *AddressForm) names() []domain.FieldName {
	names := make([]domain.FieldName, 0, len(domain.AddressFields)+1)
	for _, base := range domain.AddressFields {
		names = append(names, f.kind.Field(base))
	}
	if f.kind == domain.ShippingAddress {
		names = append(names, domain.FieldEmail)
	}
	return names
}

// Owns reports whether field is one of this form's inputs.
func (f *AddressForm) Owns(field domain.FieldName) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.fields[field]
	return ok
}

// Load copies the cart's address into the form. It reports false and changes
// nothing once the buyer has edited the form.
func (f *AddressForm) Load(cart *domain.Cart) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hasUserEdited {
		return false
	}
	addr := cart.Address(f.kind)
	for _, base := range domain.AddressFields {
		f.fields[f.kind.Field(base)] = addr.Get(base)
	}
	if f.kind == domain.ShippingAddress && cart != nil {
		f.fields[domain.FieldEmail] = cart.Email
	}
	return true
}

// Edit records a keystroke or selection and returns the full field map to save.
func (f *AddressForm) Edit(field domain.FieldName, value string) (map[domain.FieldName]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.fields[field]; !ok {
		return nil, ErrUnknownField
	}
	f.fields[field] = value
	f.hasUserEdited = true
	f.errors.Clear(field)
	return f.copyFields(), nil
}

// Blur validates the field the buyer just left and records the result.
func (f *AddressForm) Blur(field domain.FieldName) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.fields[field]
	if !ok {
		return "", false, ErrUnknownField
	}
	msg, valid := f.validator.ValidateField(field, value)
	if valid {
		f.errors.Clear(field)
	} else {
		f.errors.Set(field, msg)
	}
	return msg, valid, nil
}

// ReportInvalid records a message coming from the browser's native invalid event.
func (f *AddressForm) ReportInvalid(field domain.FieldName, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.fields[field]; !ok {
		return ErrUnknownField
	}
	f.errors.Set(field, message)
	return nil
}

func (f *AddressForm) Fields() map[domain.FieldName]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.copyFields()
}

func (f *AddressForm) Errors() domain.FieldErrors {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errors.Clone()
}

func (f *AddressForm) HasUserEdited() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasUserEdited
}

func (f *AddressForm) copyFields() map[domain.FieldName]string {
	out := make(map[domain.FieldName]string, len(f.fields))
	for k, v := range f.fields {
		out[k] = v
	}
	return out
}
