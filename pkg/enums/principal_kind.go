package enums

import "fmt"

// PrincipalKind distinguishes who a bearer token was minted for.
type PrincipalKind string

const (
	PrincipalKindAccount  PrincipalKind = "account"
	PrincipalKindOperator PrincipalKind = "operator"
)

var validPrincipalKinds = []PrincipalKind{
	PrincipalKindAccount,
	PrincipalKindOperator,
}

// String implements fmt.Stringer.
func (k PrincipalKind) String() string {
	return string(k)
}

// IsValid reports whether the value is known.
func (k PrincipalKind) IsValid() bool {
	for _, candidate := range validPrincipalKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParsePrincipalKind converts raw input into a PrincipalKind.
func ParsePrincipalKind(value string) (PrincipalKind, error) {
	for _, candidate := range validPrincipalKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid principal kind %q", value)
}
