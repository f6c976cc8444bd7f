package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategorize(t *testing.T) {
	c := newTestClassifier()

	tests := []struct {
		name    string
		from    string
		subject string
		want    string
	}{
		{"amazon", "order-update@amazon.com", "", "amazon"},
		{"aws maps to amazon", "billing@aws.amazon.com", "", "amazon"},
		{"uber", "receipts@uber.com", "", "transportation"},
		{"doordash", "no-reply@doordash.com", "", "food-delivery"},
		{"starbucks", "rewards@starbucks.com", "", "restaurants"},
		{"costco", "orders@costco.com", "", "retail"},
		{"netflix", "info@netflix.com", "", "subscriptions"},
		{"paypal", "service@paypal.com", "", "payments"},
		{"verizon", "bill@verizon.com", "", "utilities"},
		{"pharmacy subject trigger", "noreply@healthmail.com", "Your prescription is ready", "healthcare"},
		{"tax subject trigger", "notices@example.com", "tax statement enclosed", "government"},
		{"fallback", "receipts@store.com", "Order Confirmation #123", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Categorize(msg(tt.from, tt.subject, "")))
		})
	}
}

func TestCategorizeFirstMatchWins(t *testing.T) {
	c := newTestClassifier()

	// "ubereats" contains "uber": transportation is earlier in the chain and wins.
	assert.Equal(t, "transportation", c.Categorize(msg("deals@ubereats.com", "", "")))
}

func TestKnownCategory(t *testing.T) {
	assert.True(t, KnownCategory("restaurants"))
	assert.True(t, KnownCategory("Food-Delivery"))
	assert.True(t, KnownCategory("other"))
	assert.False(t, KnownCategory("amazonia"))
	assert.False(t, KnownCategory(""))
}
