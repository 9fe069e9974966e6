package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/go-playground/validator/v10"
)

const (
	tagRequired = "required"
	tagEmail    = "checkout_email"
	tagPhone    = "checkout_phone"

	minPhoneDigits = 8
	maxPhoneDigits = 13
)

var (
	emailPattern   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	digitsPattern  = regexp.MustCompile(`^[0-9]+$`)
	phoneSeparator = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
)

var labels = map[domain.FieldName]string{
	domain.FieldFirstName:   "First name",
	domain.FieldLastName:    "Last name",
	domain.FieldAddress1:    "Address",
	domain.FieldCity:        "City",
	domain.FieldProvince:    "State / Province",
	domain.FieldPostalCode:  "Postal code",
	domain.FieldCountryCode: "Country",
	domain.FieldPhone:       "Phone",
	domain.FieldEmail:       "Email",
}

// Validator checks checkout form values. It holds no UI state and is safe for concurrent use.
type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New()
	// registration only fails for empty tags or nil funcs
	_ = v.RegisterValidation(tagEmail, func(fl validator.FieldLevel) bool {
		return IsEmail(fl.Field().String())
	})
	_ = v.RegisterValidation(tagPhone, func(fl validator.FieldLevel) bool {
		return IsPhone(fl.Field().String())
	})
	return &Validator{v: v}
}

// IsEmail reports whether s has the local@domain.tld shape.
func IsEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// IsPhone reports whether s reduces to 8-13 digits once separators and a leading + are removed.
func IsPhone(s string) bool {
	digits := phoneSeparator.Replace(strings.TrimSpace(s))
	digits = strings.TrimPrefix(digits, "+")
	return len(digits) >= minPhoneDigits && len(digits) <= maxPhoneDigits && digitsPattern.MatchString(digits)
}

func rulesFor(field domain.FieldName) string {
	base := field.Base()
	switch base {
	case domain.FieldEmail:
		return tagRequired + "," + tagEmail
	case domain.FieldPhone:
		if field.Kind() == domain.BillingAddress {
			return "omitempty," + tagPhone
		}
		return tagRequired + "," + tagPhone
	}
	for _, f := range domain.RequiredAddressFields {
		if f == base {
			return tagRequired
		}
	}
	return ""
}

// ValidateField returns ("", true) for a valid value, otherwise the message to show.
func (v *Validator) ValidateField(field domain.FieldName, value string) (string, bool) {
	rules := rulesFor(field)
	if rules == "" {
		return "", true
	}
	err := v.v.Var(strings.TrimSpace(value), rules)
	if err == nil {
		return "", true
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return message(field, verrs[0].Tag()), false
	}
	return message(field, tagRequired), false
}

func message(field domain.FieldName, tag string) string {
	switch tag {
	case tagEmail:
		return "Enter a valid email address"
	case tagPhone:
		return fmt.Sprintf("Enter a valid phone number (%d to %d digits)", minPhoneDigits, maxPhoneDigits)
	}
	label, ok := labels[field.Base()]
	if !ok {
		label = string(field.Base())
	}
	return label + " is required"
}

// CheckAddress validates one address and returns the issues in report order:
// required fields first, then the phone. Billing addresses skip the phone.
func (v *Validator) CheckAddress(kind domain.AddressKind, addr *domain.Address) []domain.FieldIssue {
	var issues []domain.FieldIssue
	for _, f := range domain.RequiredAddressFields {
		field := kind.Field(f)
		if msg, ok := v.ValidateField(field, addr.Get(f)); !ok {
			issues = append(issues, domain.FieldIssue{Field: field, Message: msg})
		}
	}
	if kind == domain.ShippingAddress {
		field := kind.Field(domain.FieldPhone)
		if msg, ok := v.ValidateField(field, addr.Get(domain.FieldPhone)); !ok {
			issues = append(issues, domain.FieldIssue{Field: field, Message: msg})
		}
	}
	return issues
}

// CheckEmail validates the contact email.
func (v *Validator) CheckEmail(email string) []domain.FieldIssue {
	if msg, ok := v.ValidateField(domain.FieldEmail, email); !ok {
		return []domain.FieldIssue{{Field: domain.FieldEmail, Message: msg}}
	}
	return nil
}
