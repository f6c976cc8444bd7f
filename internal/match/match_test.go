package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchesExact(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		value   string
		want    bool
	}{
		{"equal", "receipts@store.com", "receipts@store.com", true},
		{"case insensitive", "Receipts@Store.COM", "receipts@store.com", true},
		{"whitespace trimmed", "  receipts@store.com ", "receipts@store.com", true},
		{"substring is not exact", "store.com", "receipts@store.com", false},
		{"empty pattern never matches", "", "anything", false},
		{"empty pattern vs empty value", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.pattern, tt.value))
		})
	}
}

func TestMatchesWildcard(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		value   string
		want    bool
	}{
		{"suffix", "*@store.com", "receipts@store.com", true},
		{"suffix mismatch", "*@store.com", "receipts@shop.com", false},
		{"prefix", "order*", "order confirmation #123", true},
		{"prefix mismatch", "order*", "your order shipped", false},
		{"contains", "*uber*", "noreply@uber.com", true},
		{"contains mid-word", "*uber*", "receipts@ubereats.com", true},
		{"contains mismatch", "*uber*", "receipts@lyft.com", false},
		{"two segments", "receipt*store.com", "receipts@store.com", true},
		{"segments out of order", "store.com*receipt", "receipts@store.com", false},
		{"lone star matches everything", "*", "anything at all", true},
		{"case folded", "*UBER*", "Noreply@Uber.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Matches(tt.pattern, tt.value))
		})
	}
}

func TestContains(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		value   string
		want    bool
	}{
		{"plain substring", "amazon", "order-update@amazon.com", true},
		{"case insensitive", "AMAZON", "order-update@amazon.com", true},
		{"absent", "uber", "order-update@amazon.com", false},
		{"wildcard stays anchored", "*@store.com", "receipts@store.com", true},
		{"wildcard anchored mismatch", "*@store.com", "store.com@evil.net", false},
		{"empty pattern never matches", "", "order-update@amazon.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Contains(tt.pattern, tt.value))
		})
	}
}

func TestContainsAny(t *testing.T) {
	patterns := []string{"uber", "lyft", "*@amazon.com"}

	got, ok := ContainsAny(patterns, "receipts@amazon.com")
	assert.True(t, ok)
	assert.Equal(t, "*@amazon.com", got)

	_, ok = ContainsAny(patterns, "hello@example.com")
	assert.False(t, ok)

	_, ok = ContainsAny(nil, "hello@example.com")
	assert.False(t, ok)
}
