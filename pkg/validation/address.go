package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// Addresses are base32 encoded, 40 characters, optionally grouped with dashes
// (e.g. TDGIMR-E2WN6W-2C6QTT-K4BWMM-NQZJBW-XD4YHH-W6HT).
var addressPattern = regexp.MustCompile(`^[A-Z2-7]{40}$`)

// Invoice numbers are an alphanumeric prefix followed by a decimal counter.
var invoiceNumberPattern = regexp.MustCompile(`^[A-Z0-9]+[0-9]+$`)

// ValidateAddress validates a chain account address format.
func ValidateAddress(addr string) error {
	if addr == "" {
		return fmt.Errorf("address cannot be empty")
	}

	normalized := NormalizeAddress(addr)
	if len(normalized) != 40 {
		return fmt.Errorf("invalid address length: expected 40 characters (without dashes), got %d", len(normalized))
	}
	if !addressPattern.MatchString(normalized) {
		return fmt.Errorf("invalid base32 address: %s", addr)
	}

	return nil
}

// NormalizeAddress converts an address to its canonical uppercase form
// without dash grouping.
func NormalizeAddress(addr string) string {
	addr = strings.ReplaceAll(addr, "-", "")
	return strings.ToUpper(strings.TrimSpace(addr))
}

// ValidateAndNormalizeAddress validates an address and returns its normalized form.
func ValidateAndNormalizeAddress(addr string) (string, error) {
	if err := ValidateAddress(addr); err != nil {
		return "", err
	}
	return NormalizeAddress(addr), nil
}

// NormalizeInvoiceNumber uppercases and trims an invoice number. Matching
// against transaction messages is case-insensitive everywhere.
func NormalizeInvoiceNumber(number string) string {
	return strings.ToUpper(strings.TrimSpace(number))
}

// ValidateInvoiceNumber checks the prefix+counter invoice number format.
func ValidateInvoiceNumber(number string) error {
	if number == "" {
		return fmt.Errorf("invoice number cannot be empty")
	}
	if !invoiceNumberPattern.MatchString(NormalizeInvoiceNumber(number)) {
		return fmt.Errorf("invalid invoice number format: %s", number)
	}
	return nil
}
