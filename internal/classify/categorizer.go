package classify

import (
	"strings"

	"github.com/sentinelshare/sentinel/internal/core"
)

// CategoryOther is the exhaustive fallback category; it is never a failure.
const CategoryOther = "other"

// categoryChain is the ordered sender-substring chain; the first matching
// entry wins. Some categories also trigger on subject fragments.
var categoryChain = []struct {
	category string
	senders  []string
	subjects []string
}{
	{category: "amazon", senders: []string{"amazon", "aws"}},
	{category: "transportation", senders: []string{"uber", "lyft"}},
	{category: "food-delivery", senders: []string{"doordash", "grubhub", "ubereats"}},
	{category: "restaurants", senders: []string{"starbucks", "mcdonalds", "subway"}},
	{category: "retail", senders: []string{"walmart", "target", "costco"}},
	{category: "subscriptions", senders: []string{"netflix", "spotify", "adobe"}},
	{category: "payments", senders: []string{"paypal", "venmo", "square"}},
	{category: "utilities", senders: []string{"att", "verizon", "comcast", "xfinity", "spectrum"}},
	{category: "healthcare", senders: []string{"cvs", "walgreens", "pharmacy"}, subjects: []string{"prescription", "copay"}},
	{category: "government", senders: []string{"irs", "dmv", "gov"}, subjects: []string{"tax", "license"}},
}

// KnownCategory reports whether name is one of the fixed category labels.
// The reply parser uses this to tell "stop restaurants" from "stop amazon".
func KnownCategory(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == CategoryOther {
		return true
	}
	for _, entry := range categoryChain {
		if entry.category == name {
			return true
		}
	}
	return false
}

// Categorize assigns a spending category from the sender address, falling
// back to subject fragments for a few categories and "other" otherwise.
func (c *Classifier) Categorize(msg *core.Message) string {
	sender := strings.ToLower(msg.From)
	subject := strings.ToLower(msg.Subject)

	for _, entry := range categoryChain {
		for _, fragment := range entry.senders {
			if strings.Contains(sender, fragment) {
				return entry.category
			}
		}
		for _, fragment := range entry.subjects {
			if strings.Contains(subject, fragment) {
				return entry.category
			}
		}
	}
	return CategoryOther
}
