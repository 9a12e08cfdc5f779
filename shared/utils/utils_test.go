package utils

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateID(t *testing.T) {
	a := GenerateID("usr")
	b := GenerateID("usr")
	assert.True(t, strings.HasPrefix(a, "usr-"))
	assert.Len(t, a, len("usr-")+12)
	assert.NotEqual(t, a, b)
	assert.True(t, ValidateUserID(a))
	assert.False(t, ValidateUserID("acc-123"))
	assert.False(t, ValidateUserID("usr-"))
	assert.False(t, ValidateUserID("usrx-123"))
}

func TestPasswords(t *testing.T) {
	hash, err := HashPassword("password123")
	require.NoError(t, err)
	assert.NotEqual(t, "password123", hash)
	assert.True(t, CheckPassword("password123", hash))
	assert.False(t, CheckPassword("password124", hash))
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "dep1@example.com", NormalizeEmail("  Dep1@Example.COM "))
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr error
	}{
		{in: "50000", want: "50000"},
		{in: " 50,000.00 ", want: "50000"},
		{in: "₹1,50,000.5", want: "150000.5"},
		{in: "10.005", want: "10.01"},
		{in: "999999999999.994", want: "999999999999.99"},
		{in: "1.5e3", want: "1500"},
		{in: "-5", wantErr: ErrAmountNotPositive},
		{in: "0", wantErr: ErrAmountNotPositive},
		{in: "0.001", wantErr: ErrAmountNotPositive},
		{in: "0e999999999", wantErr: ErrAmountNotPositive},
		{in: "999999999999.995", wantErr: ErrAmountTooLarge},
		{in: "1e13", wantErr: ErrAmountTooLarge},
		{in: "1e200000000", wantErr: ErrAmountTooLarge},
		{in: "1e-200000000", wantErr: ErrAmountPrecision},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestParseAmountRejectsMalformedInput(t *testing.T) {
	for _, in := range []string{"", "₹", "fifty", "1e"} {
		_, err := ParseAmount(in)
		assert.Error(t, err, in)
	}
}

func TestFormatINR(t *testing.T) {
	out := FormatINR(decimal.NewFromInt(50000))
	assert.Contains(t, out, "50,000")
	assert.Contains(t, out, "₹")
}
