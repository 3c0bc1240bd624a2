package password

import "strings"

const policySymbols = "!@#$%^&*()_+-=[]{}|;:,.<>?"

const minPolicyLength = 8

// PolicyViolation names the first policy rule a candidate password
// breaks, or is empty when the password is acceptable.
type PolicyViolation string

const (
	// ViolationTooShort means the password is under eight characters.
	ViolationTooShort PolicyViolation = "too_short"
	// ViolationNoUpper means no uppercase letter is present.
	ViolationNoUpper PolicyViolation = "no_uppercase"
	// ViolationNoLower means no lowercase letter is present.
	ViolationNoLower PolicyViolation = "no_lowercase"
	// ViolationNoDigit means no digit is present.
	ViolationNoDigit PolicyViolation = "no_digit"
	// ViolationNoSymbol means no accepted symbol is present.
	ViolationNoSymbol PolicyViolation = "no_symbol"
)

// CheckPolicy evaluates the strength rules in order and returns the
// first violation. Rules: at least eight characters, one uppercase, one
// lowercase, one digit, and one symbol from the accepted set.
func CheckPolicy(candidate string) (PolicyViolation, bool) {
	if len(candidate) < minPolicyLength {
		return ViolationTooShort, false
	}

	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range candidate {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		case strings.ContainsRune(policySymbols, r):
			hasSymbol = true
		}
	}

	switch {
	case !hasUpper:
		return ViolationNoUpper, false
	case !hasLower:
		return ViolationNoLower, false
	case !hasDigit:
		return ViolationNoDigit, false
	case !hasSymbol:
		return ViolationNoSymbol, false
	}

	return "", true
}
