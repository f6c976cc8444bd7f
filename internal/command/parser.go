// Package command extracts structured commands from free-text human replies
// and applies them to rule state. The textual footer appended to forwarded
// mail ("reply STOP <target> / MORE <target> / SETTINGS / NEVERMIND") is the
// wire contract this parser stays in lockstep with.
package command

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/sentinelshare/sentinel/internal/classify"
	"github.com/sentinelshare/sentinel/internal/core"
)

var reserved = map[string]bool{
	"stop":      true,
	"more":      true,
	"start":     true,
	"nevermind": true,
	"settings":  true,
}

// filler words are skipped between commands so "more starbucks and stop
// restaurants" parses as two commands.
var filler = map[string]bool{
	"and":    true,
	"please": true,
	"also":   true,
	"the":    true,
}

var senderLineRe = regexp.MustCompile(`(?im)^\s*>*\s*(?:from|sender)\s*:.*?([a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,})`)

// Parser turns reply bodies into command lists.
type Parser struct {
	logger *zap.Logger
}

// NewParser creates a reply command parser.
func NewParser(logger *zap.Logger) *Parser {
	return &Parser{logger: logger}
}

// Parse extracts all commands present in the reply, in textual order.
// Duplicates are preserved; applying them idempotently is the caller's
// responsibility. Quoted original text is excluded from command scanning.
func (p *Parser) Parse(replyBody string) []core.Command {
	words := strings.Fields(strings.ToLower(commandPortion(replyBody)))

	var commands []core.Command
	for i := 0; i < len(words); i++ {
		switch words[i] {
		case "stop":
			value, ok := resolveValue(words, i+1)
			if !ok {
				// Ambiguity-safe default: a bare or unresolvable "stop"
				// becomes a generic stop for the clarification sub-flow.
				commands = append(commands, core.GenericStopCommand{})
				continue
			}
			i++
			if isCategoryTarget(value) {
				commands = append(commands, core.BlockCommand{Kind: core.KindCategories, Value: value})
			} else {
				commands = append(commands, core.BlockCommand{Kind: core.KindSenders, Value: value})
			}
		case "more":
			value, ok := resolveValue(words, i+1)
			if !ok {
				continue
			}
			i++
			commands = append(commands, core.WhitelistCommand{Value: value})
		case "start":
			value, ok := resolveValue(words, i+1)
			if !ok {
				continue
			}
			i++
			if isCategoryTarget(value) {
				commands = append(commands, core.UnblockCommand{Kind: core.KindCategories, Value: value})
			} else {
				commands = append(commands, core.UnblockCommand{Kind: core.KindSenders, Value: value})
			}
		case "nevermind":
			commands = append(commands, core.CancelBlockCommand{})
		case "settings":
			commands = append(commands, core.SettingsCommand{})
		}
	}

	if len(commands) > 0 {
		p.logger.Debug("Parsed reply commands", zap.Int("count", len(commands)))
	}
	return commands
}

// ExtractOriginalSender pulls the original sender address out of the quoted
// forwarded-message context embedded in the reply. Best effort: multi-hop
// replies and non-standard clients may defeat it, in which case ok is false
// and the caller drops the command.
func ExtractOriginalSender(replyBody string) (string, bool) {
	m := senderLineRe.FindStringSubmatch(strings.ToLower(replyBody))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// isCategoryTarget decides whether a command value names a category rather
// than a sender. Merchant names win the tie ("stop amazon" blocks the sender,
// not the amazon category).
func isCategoryTarget(value string) bool {
	return classify.KnownCategory(value) && !classify.KnownMerchant(value)
}

// commandPortion strips quoted reply context: everything from the first
// quote marker or "On ... wrote:" attribution line onward.
func commandPortion(body string) string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		if strings.HasPrefix(trimmed, ">") ||
			(strings.HasPrefix(lower, "on ") && strings.HasSuffix(lower, "wrote:")) {
			return strings.Join(lines[:i], "\n")
		}
	}
	return body
}

// resolveValue returns the word at position i as a command target, skipping
// filler. Reserved keywords and punctuation-only tokens do not resolve.
func resolveValue(words []string, i int) (string, bool) {
	for ; i < len(words); i++ {
		word := strings.Trim(words[i], ".,!?:;\"'()")
		if filler[word] {
			continue
		}
		if word == "" || reserved[word] {
			return "", false
		}
		return word, true
	}
	return "", false
}
