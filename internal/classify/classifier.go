// Package classify decides whether a message is a purchase receipt and which
// spending category it belongs to. The receipt check is a logical OR of four
// independent signals and is deliberately permissive: a false positive is
// caught downstream by the rule evaluator, a false negative silently loses a
// receipt.
package classify

import (
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sentinelshare/sentinel/internal/core"
)

// receiptKeywords classify a message as a receipt when found in subject or body.
var receiptKeywords = []string{
	"receipt",
	"invoice",
	"order confirmation",
	"payment received",
	"payment confirmation",
	"purchase confirmation",
	"your order",
	"thank you for your purchase",
	"billing statement",
	"transaction receipt",
	"e-receipt",
}

// knownMerchants are sender fragments of merchants that reliably send receipts.
var knownMerchants = []string{
	"amazon", "uber", "lyft", "doordash", "grubhub", "ubereats",
	"starbucks", "mcdonalds", "walmart", "target", "costco",
	"netflix", "spotify", "adobe", "paypal", "venmo", "square",
	"apple", "ebay", "etsy",
}

var (
	orderNumberRe   = regexp.MustCompile(`order[\s#]+\d+`)
	invoiceNumberRe = regexp.MustCompile(`invoice[\s#]+\d+`)
	amountRe        = regexp.MustCompile(`\$(\d+\.\d{2})`)
)

// Classifier is the heuristic receipt classifier.
type Classifier struct {
	keywords  []string
	merchants []string
	logger    *zap.Logger
}

// New creates a classifier. Extra keywords and merchant fragments from
// configuration are appended to the built-in lists.
func New(extraKeywords, extraMerchants []string, logger *zap.Logger) *Classifier {
	c := &Classifier{
		keywords:  append(append([]string(nil), receiptKeywords...), extraKeywords...),
		merchants: append(append([]string(nil), knownMerchants...), extraMerchants...),
		logger:    logger,
	}
	if logger != nil && (len(extraKeywords) > 0 || len(extraMerchants) > 0) {
		logger.Info("Extended classifier lists",
			zap.Int("extra_keywords", len(extraKeywords)),
			zap.Int("extra_merchants", len(extraMerchants)))
	}
	return c
}

// IsReceipt reports whether the message looks like a purchase receipt. Any
// one of the four signals is sufficient.
func (c *Classifier) IsReceipt(msg *core.Message) bool {
	subject := strings.ToLower(msg.Subject)
	body := strings.ToLower(msg.Body)
	sender := strings.ToLower(msg.From)
	text := subject + "\n" + body

	if c.hasReceiptKeyword(text) {
		return true
	}
	if c.isKnownMerchant(sender) {
		return true
	}
	if orderNumberRe.MatchString(text) && amountRe.MatchString(text) {
		return true
	}
	return invoiceNumberRe.MatchString(text)
}

// Confidence scores how receipt-like the message is on a 0-100 scale. The
// score seeds learning-candidate confidence and is recorded for reporting; it
// never overrides the boolean IsReceipt decision.
func (c *Classifier) Confidence(msg *core.Message) int {
	subject := strings.ToLower(msg.Subject)
	body := strings.ToLower(msg.Body)
	sender := strings.ToLower(msg.From)
	text := subject + "\n" + body

	confidence := 0
	if c.hasReceiptKeyword(text) {
		confidence += 40
	}
	if orderNumberRe.MatchString(text) && amountRe.MatchString(text) {
		confidence += 30
	}
	if c.isKnownMerchant(sender) {
		confidence += 20
	}
	if invoiceNumberRe.MatchString(text) {
		confidence += 10
	}
	if confidence > 100 {
		confidence = 100
	}
	return confidence
}

// ExtractAmount returns the first currency amount found in subject or body,
// or 0 if none is present.
func (c *Classifier) ExtractAmount(msg *core.Message) float64 {
	m := amountRe.FindStringSubmatch(msg.Subject + "\n" + msg.Body)
	if m == nil {
		return 0
	}
	amount, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	return amount
}

func (c *Classifier) hasReceiptKeyword(text string) bool {
	for _, kw := range c.keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func (c *Classifier) isKnownMerchant(sender string) bool {
	for _, merchant := range c.merchants {
		if strings.Contains(sender, merchant) {
			return true
		}
	}
	return false
}

// KnownMerchant reports whether name is one of the built-in merchant
// fragments. Categories named after a merchant ("amazon") are ambiguous in
// replies; merchant identity wins, so "stop amazon" targets the sender.
func KnownMerchant(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, merchant := range knownMerchants {
		if merchant == name {
			return true
		}
	}
	return false
}
