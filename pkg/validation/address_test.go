package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{"plain", "TDGIMRE2WN6W2C6QTTK4BWMMNQZJBWXD4YHHW6HT", false},
		{"dash grouped", "TDGIMR-E2WN6W-2C6QTT-K4BWMM-NQZJBW-XD4YHH-W6HT", false},
		{"lowercase", "tdgimre2wn6w2c6qttk4bwmmnqzjbwxd4yhhw6ht", false},
		{"empty", "", true},
		{"too short", "TDGIMRE2WN6W", true},
		{"non base32 characters", "TDGIMRE2WN6W2C6QTTK4BWMMNQZJBWXD4YHHW018", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddress(tt.addr)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateAndNormalizeAddress(t *testing.T) {
	got, err := ValidateAndNormalizeAddress("tdgimr-e2wn6w-2c6qtt-k4bwmm-nqzjbw-xd4yhh-w6ht")
	assert.NoError(t, err)
	assert.Equal(t, "TDGIMRE2WN6W2C6QTTK4BWMMNQZJBWXD4YHHW6HT", got)
}

func TestNormalizeInvoiceNumber(t *testing.T) {
	assert.Equal(t, "INV42", NormalizeInvoiceNumber("  inv42 "))
}

func TestValidateInvoiceNumber(t *testing.T) {
	assert.NoError(t, ValidateInvoiceNumber("INV42"))
	assert.NoError(t, ValidateInvoiceNumber("inv42"))
	assert.Error(t, ValidateInvoiceNumber(""))
	assert.Error(t, ValidateInvoiceNumber("INV"))
	assert.Error(t, ValidateInvoiceNumber("42!"))
}
