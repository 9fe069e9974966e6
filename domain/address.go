package domain

import "strings"

type Address struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Company     string `json:"company,omitempty"`
	Address1    string `json:"address_1"`
	Address2    string `json:"address_2,omitempty"`
	City        string `json:"city"`
	Province    string `json:"province"`
	PostalCode  string `json:"postal_code"`
	CountryCode string `json:"country_code"`
	Phone       string `json:"phone"`
}

// FieldName identifies a checkout form input, e.g. "shipping_address.city" or "email".
type FieldName string

const (
	FieldFirstName   FieldName = "first_name"
	FieldLastName    FieldName = "last_name"
	FieldCompany     FieldName = "company"
	FieldAddress1    FieldName = "address_1"
	FieldAddress2    FieldName = "address_2"
	FieldCity        FieldName = "city"
	FieldProvince    FieldName = "province"
	FieldPostalCode  FieldName = "postal_code"
	FieldCountryCode FieldName = "country_code"
	FieldPhone       FieldName = "phone"
	FieldEmail       FieldName = "email"
)

// RequiredAddressFields lists the address fields that must be non-empty, in report order.
var RequiredAddressFields = []FieldName{
	FieldFirstName,
	FieldLastName,
	FieldAddress1,
	FieldCity,
	FieldProvince,
	FieldPostalCode,
	FieldCountryCode,
}

// TaxAffectingFields are the address fields whose change may alter the computed tax.
var TaxAffectingFields = []FieldName{
	FieldCountryCode,
	FieldProvince,
	FieldPostalCode,
	FieldCity,
}

type AddressKind string

const (
	ShippingAddress AddressKind = "shipping_address"
	BillingAddress  AddressKind = "billing_address"
)

func (k AddressKind) Valid() bool {
	return k == ShippingAddress || k == BillingAddress
}

// Field qualifies a base field name with the address prefix.
func (k AddressKind) Field(f FieldName) FieldName {
	return FieldName(string(k) + "." + string(f))
}

// Base strips the address prefix, if any.
func (f FieldName) Base() FieldName {
	if i := strings.LastIndexByte(string(f), '.'); i >= 0 {
		return f[i+1:]
	}
	return f
}

// Kind returns the address prefix of the field, or "" for unprefixed fields such as email.
func (f FieldName) Kind() AddressKind {
	if i := strings.LastIndexByte(string(f), '.'); i >= 0 {
		return AddressKind(f[:i])
	}
	return ""
}

// Get returns the value of a base field.
func (a *Address) Get(f FieldName) string {
	if a == nil {
		return ""
	}
	switch f.Base() {
	case FieldFirstName:
		return a.FirstName
	case FieldLastName:
		return a.LastName
	case FieldCompany:
		return a.Company
	case FieldAddress1:
		return a.Address1
	case FieldAddress2:
		return a.Address2
	case FieldCity:
		return a.City
	case FieldProvince:
		return a.Province
	case FieldPostalCode:
		return a.PostalCode
	case FieldCountryCode:
		return a.CountryCode
	case FieldPhone:
		return a.Phone
	}
	return ""
}

// Set assigns a base field. Unknown fields are ignored.
func (a *Address) Set(f FieldName, value string) {
	switch f.Base() {
	case FieldFirstName:
		a.FirstName = value
	case FieldLastName:
		a.LastName = value
	case FieldCompany:
		a.Company = value
	case FieldAddress1:
		a.Address1 = value
	case FieldAddress2:
		a.Address2 = value
	case FieldCity:
		a.City = value
	case FieldProvince:
		a.Province = value
	case FieldPostalCode:
		a.PostalCode = value
	case FieldCountryCode:
		a.CountryCode = value
	case FieldPhone:
		a.Phone = value
	}
}

// AddressFields lists every base field an address form carries.
var AddressFields = []FieldName{
	FieldFirstName,
	FieldLastName,
	FieldCompany,
	FieldAddress1,
	FieldAddress2,
	FieldCity,
	FieldProvince,
	FieldPostalCode,
	FieldCountryCode,
	FieldPhone,
}
