package command

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sentinelshare/sentinel/internal/core"
	"github.com/sentinelshare/sentinel/internal/rules"
)

// clarificationReason marks temporary blocks created while a generic stop
// awaits a precise follow-up command.
const clarificationReason = "awaiting clarification"

// Applier applies parsed commands to preference and block state. Mutations
// are persisted before Apply returns, so decisions later in the same run see
// them.
type Applier struct {
	prefs     core.PreferenceStore
	blocks    *rules.BlockManager
	mailer    core.MailSender
	recipient string
	logger    *zap.Logger
}

// NewApplier creates a command applier. recipient is the human who receives
// clarification and settings mail.
func NewApplier(
	prefs core.PreferenceStore,
	blocks *rules.BlockManager,
	mailer core.MailSender,
	recipient string,
	logger *zap.Logger,
) *Applier {
	return &Applier{
		prefs:     prefs,
		blocks:    blocks,
		mailer:    mailer,
		recipient: recipient,
		logger:    logger,
	}
}

// Apply executes every command against the global preference scope.
// replyBody is kept for the clarification sub-flow, which extracts the
// original sender from the quoted context. Re-applying a command is a no-op.
func (a *Applier) Apply(ctx context.Context, replyBody string, commands []core.Command) error {
	if len(commands) == 0 {
		return nil
	}

	prefs, err := a.prefs.Preferences(ctx, core.GlobalScope)
	if err != nil {
		return fmt.Errorf("failed to load preferences: %w", err)
	}

	changed := false
	for _, cmd := range commands {
		switch c := cmd.(type) {
		case core.BlockCommand:
			changed = a.applyBlock(prefs, c) || changed
		case core.UnblockCommand:
			changed = a.applyUnblock(prefs, c) || changed
		case core.WhitelistCommand:
			if prefs.AddWhitelist(c.Value) {
				changed = true
				a.logger.Info("Sender whitelisted by reply", zap.String("value", c.Value))
			}
			// Whitelisting also lifts a direct sender block for the same value.
			if prefs.RemoveSender(c.Value) {
				changed = true
			}
		case core.GenericStopCommand:
			if err := a.applyGenericStop(ctx, replyBody); err != nil {
				return err
			}
		case core.CancelBlockCommand:
			if err := a.applyCancelBlock(ctx, replyBody); err != nil {
				return err
			}
		case core.SettingsCommand:
			if err := a.sendSettings(ctx, prefs); err != nil {
				return err
			}
		}
	}

	if changed {
		if err := a.prefs.SavePreferences(ctx, prefs); err != nil {
			return fmt.Errorf("failed to persist preferences: %w", err)
		}
	}
	return nil
}

func (a *Applier) applyBlock(prefs *core.PreferenceSet, c core.BlockCommand) bool {
	switch c.Kind {
	case core.KindCategories:
		if prefs.AddCategory(c.Value) {
			a.logger.Info("Category blocked by reply", zap.String("category", c.Value))
			return true
		}
	case core.KindKeywords:
		if prefs.AddKeyword(c.Value) {
			a.logger.Info("Keyword blocked by reply", zap.String("keyword", c.Value))
			return true
		}
	default:
		if prefs.AddSender(c.Value) {
			a.logger.Info("Sender blocked by reply", zap.String("sender", c.Value))
			return true
		}
	}
	return false
}

func (a *Applier) applyUnblock(prefs *core.PreferenceSet, c core.UnblockCommand) bool {
	switch c.Kind {
	case core.KindCategories:
		return prefs.RemoveCategory(c.Value)
	default:
		return prefs.RemoveSender(c.Value)
	}
}

// applyGenericStop handles an ambiguous stop: temporarily block the original
// sender and ask the human for a precise command. Extraction failure drops
// the command; it never fails the run.
func (a *Applier) applyGenericStop(ctx context.Context, replyBody string) error {
	sender, ok := ExtractOriginalSender(replyBody)
	if !ok {
		a.logger.Warn("Generic stop dropped: could not extract original sender")
		return nil
	}

	if err := a.blocks.Block(ctx, sender, clarificationReason); err != nil {
		return fmt.Errorf("failed to apply clarification block: %w", err)
	}

	subject := fmt.Sprintf("Blocked %s for 24 hours - reply to make it permanent", sender)
	if err := a.mailer.Deliver(ctx, a.recipient, subject, clarificationBody(sender)); err != nil {
		// The block is already in place; a lost clarification mail only
		// costs the explanatory text.
		a.logger.Error("Failed to send clarification message",
			zap.String("sender", sender), zap.Error(err))
	}
	return nil
}

// applyCancelBlock removes the pending temporary block for the sender named
// in the quoted context.
func (a *Applier) applyCancelBlock(ctx context.Context, replyBody string) error {
	sender, ok := ExtractOriginalSender(replyBody)
	if !ok {
		a.logger.Warn("Cancel dropped: could not extract original sender")
		return nil
	}
	return a.blocks.Cancel(ctx, sender)
}

func (a *Applier) sendSettings(ctx context.Context, prefs *core.PreferenceSet) error {
	if err := a.mailer.Deliver(ctx, a.recipient, "Your forwarding settings", settingsBody(prefs)); err != nil {
		return fmt.Errorf("failed to send settings summary: %w", err)
	}
	return nil
}

func clarificationBody(sender string) string {
	var b strings.Builder
	b.WriteString("<p>Got it - mail from <b>" + sender + "</b> is paused for 24 hours.</p>")
	b.WriteString("<p>To be precise, reply with one of:</p><ul>")
	b.WriteString("<li><b>STOP " + sender + "</b> - block this sender permanently</li>")
	b.WriteString("<li><b>STOP &lt;category&gt;</b> - block a whole category instead</li>")
	b.WriteString("<li><b>NEVERMIND</b> - cancel the pause</li>")
	b.WriteString("</ul>")
	return b.String()
}

func settingsBody(prefs *core.PreferenceSet) string {
	section := func(title string, items []string) string {
		if len(items) == 0 {
			return "<p><b>" + title + ":</b> none</p>"
		}
		return "<p><b>" + title + ":</b> " + strings.Join(items, ", ") + "</p>"
	}

	var b strings.Builder
	b.WriteString("<p>Current forwarding settings:</p>")
	b.WriteString(section("Blocked senders", prefs.Senders))
	b.WriteString(section("Blocked categories", prefs.Categories))
	b.WriteString(section("Blocked keywords", prefs.Keywords))
	b.WriteString(section("Always forwarded", prefs.Whitelist))
	b.WriteString("<p>Reply STOP &lt;target&gt;, MORE &lt;target&gt; or NEVERMIND to change them.</p>")
	return b.String()
}
