// Package selector holds the buyer's chosen payment method for one checkout page.
package selector

import (
	"github.com/fjod/storefront-checkout/domain"
	"github.com/fjod/storefront-checkout/internal/observable"
)

// Selector is shared by the method list, the submit control and the express widget.
// It starts with no method selected.
type Selector struct {
	value *observable.Value[domain.PaymentMethod]
}

func New() *Selector {
	return &Selector{value: observable.New[domain.PaymentMethod]("")}
}

// Select changes the chosen method. Unknown methods are rejected.
func (s *Selector) Select(m domain.PaymentMethod) error {
	if !m.Valid() {
		return domain.ErrUnknownMethod
	}
	s.value.Set(m)
	return nil
}

func (s *Selector) Clear() {
	s.value.Set("")
}

// Selected returns the chosen method and whether one is chosen.
func (s *Selector) Selected() (domain.PaymentMethod, bool) {
	m := s.value.Get()
	return m, m != ""
}

func (s *Selector) Subscribe(fn func(domain.PaymentMethod)) (unsubscribe func()) {
	return s.value.Subscribe(fn)
}
