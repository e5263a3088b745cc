package epcis

import (
	"regexp"
	"strings"
)

// EPC URN patterns by scheme. SGTIN serials are 1-20 alphanumeric
// characters (SGTIN-198). The capture groups feed the scheme-specific
// post-checks below.
var epcPatterns = map[string]*regexp.Regexp{
	"sgtin": regexp.MustCompile(`^urn:epc:id:sgtin:(\d+)\.(\d+)\.([A-Za-z0-9]{1,20})$`),
	"sscc":  regexp.MustCompile(`^urn:epc:id:sscc:(\d+)\.(\d+)$`),
	"sgln":  regexp.MustCompile(`^urn:epc:id:sgln:(\d+)\.(\d+)$`),
	"grai":  regexp.MustCompile(`^urn:epc:id:grai:(\d+)\.(\d+)$`),
	"giai":  regexp.MustCompile(`^urn:epc:id:giai:(\d+)\.(\d+)$`),
}

// Scheme-specific checks applied after the pattern match. An SSCC packs
// exactly 17 digits before its check digit; an SGLN's company prefix and
// location reference together must carry a valid GS1 check digit.
var epcPostChecks = map[string]func(groups []string) bool{
	"sscc": func(g []string) bool {
		return len(g[1])+len(g[2]) == 17
	},
	"sgln": func(g []string) bool {
		return ValidateGS1CheckDigit(g[1] + g[2])
	},
}

// CalculateGS1CheckDigit calculates the GS1 check digit for a numeric string.
// The input should be the base identifier without the check digit.
// Returns the check digit as a single character string (0-9).
func CalculateGS1CheckDigit(base string) string {
	if base == "" {
		return ""
	}

	// GS1 check digit algorithm:
	// 1. Starting from the rightmost digit, alternate multipliers of 3 and 1
	// 2. Sum all products
	// 3. Check digit = (10 - (sum mod 10)) mod 10
	sum := 0
	for i := len(base) - 1; i >= 0; i-- {
		digit := int(base[i] - '0')
		if digit < 0 || digit > 9 {
			// Non-digit character, skip
			continue
		}
		posFromRight := len(base) - 1 - i
		if posFromRight%2 == 0 {
			sum += digit * 3
		} else {
			sum += digit
		}
	}

	checkDigit := (10 - (sum % 10)) % 10
	return string(rune('0' + checkDigit))
}

// ValidateGS1CheckDigit verifies the trailing check digit of a complete
// GS1 number. Non-numeric input fails.
func ValidateGS1CheckDigit(fullNumber string) bool {
	if len(fullNumber) < 2 {
		return false
	}
	for _, r := range fullNumber {
		if r < '0' || r > '9' {
			return false
		}
	}

	body := fullNumber[:len(fullNumber)-1]
	checkDigit := fullNumber[len(fullNumber)-1:]

	return CalculateGS1CheckDigit(body) == checkDigit
}

// ValidateEPCFormat reports whether an EPC matches a known URN pattern and
// passes its scheme-specific post-check.
func ValidateEPCFormat(epc string) bool {
	return GetEPCType(epc) != ""
}

// GetEPCType returns the scheme name (sgtin, sscc, ...) for a valid EPC,
// or the empty string if the EPC matches no pattern.
func GetEPCType(epc string) string {
	if epc == "" {
		return ""
	}

	for scheme, pattern := range epcPatterns {
		groups := pattern.FindStringSubmatch(epc)
		if groups == nil {
			continue
		}
		if check, ok := epcPostChecks[scheme]; ok && !check(groups) {
			return ""
		}
		return scheme
	}
	return ""
}

// ExtractCompanyPrefix extracts the GS1 company prefix from an EPC URN:
// the leftmost dot segment of the fifth colon-separated field.
// Returns the empty string when the EPC has no such field.
func ExtractCompanyPrefix(epc string) string {
	if epc == "" {
		return ""
	}

	parts := strings.Split(epc, ":")
	if len(parts) < 5 {
		return ""
	}
	return strings.SplitN(parts[4], ".", 2)[0]
}

// ValidateCompanyPrefix reports whether the EPC's company prefix is in the
// authorized set.
func ValidateCompanyPrefix(epc string, authorized map[string]bool) bool {
	prefix := ExtractCompanyPrefix(epc)
	if prefix == "" {
		return false
	}
	return authorized[prefix]
}
