package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sentinelshare/sentinel/internal/core"
)

func TestParseStopSender(t *testing.T) {
	p := NewParser(zap.NewNop())

	commands := p.Parse("stop amazon")

	require.Len(t, commands, 1)
	assert.Equal(t, core.BlockCommand{Kind: core.KindSenders, Value: "amazon"}, commands[0])
}

func TestParseStopKnownCategory(t *testing.T) {
	p := NewParser(zap.NewNop())

	commands := p.Parse("STOP restaurants")

	require.Len(t, commands, 1)
	assert.Equal(t, core.BlockCommand{Kind: core.KindCategories, Value: "restaurants"}, commands[0])
}

func TestParseBareStopIsGeneric(t *testing.T) {
	p := NewParser(zap.NewNop())

	commands := p.Parse("stop")

	require.Len(t, commands, 1)
	assert.Equal(t, core.GenericStopCommand{}, commands[0])
}

func TestParseMultipleCommands(t *testing.T) {
	p := NewParser(zap.NewNop())

	commands := p.Parse("more starbucks and stop restaurants")

	require.Len(t, commands, 2)
	assert.Equal(t, core.WhitelistCommand{Value: "starbucks"}, commands[0])
	assert.Equal(t, core.BlockCommand{Kind: core.KindCategories, Value: "restaurants"}, commands[1])
}

func TestParseStopFollowedByKeyword(t *testing.T) {
	p := NewParser(zap.NewNop())

	// "stop" with a reserved word after it stays generic; the trailing
	// keyword is then parsed on its own.
	commands := p.Parse("stop settings")

	require.Len(t, commands, 2)
	assert.Equal(t, core.GenericStopCommand{}, commands[0])
	assert.Equal(t, core.SettingsCommand{}, commands[1])
}

func TestParseStartUnblocks(t *testing.T) {
	p := NewParser(zap.NewNop())

	commands := p.Parse("start amazon")

	require.Len(t, commands, 1)
	assert.Equal(t, core.UnblockCommand{Kind: core.KindSenders, Value: "amazon"}, commands[0])
}

func TestParseNevermindAndSettings(t *testing.T) {
	p := NewParser(zap.NewNop())

	assert.Equal(t, []core.Command{core.CancelBlockCommand{}}, p.Parse("NEVERMIND"))
	assert.Equal(t, []core.Command{core.SettingsCommand{}}, p.Parse("settings please"))
}

func TestParseIgnoresFillerAndPunctuation(t *testing.T) {
	p := NewParser(zap.NewNop())

	commands := p.Parse("please stop the amazon!")

	require.Len(t, commands, 1)
	assert.Equal(t, core.BlockCommand{Kind: core.KindSenders, Value: "amazon"}, commands[0])
}

func TestParseSkipsPunctuatedFiller(t *testing.T) {
	p := NewParser(zap.NewNop())

	commands := p.Parse("stop and, amazon")

	require.Len(t, commands, 1)
	assert.Equal(t, core.BlockCommand{Kind: core.KindSenders, Value: "amazon"}, commands[0])
}

func TestParseNoCommands(t *testing.T) {
	p := NewParser(zap.NewNop())
	assert.Empty(t, p.Parse("thanks, looks good"))
	assert.Empty(t, p.Parse(""))
}

func TestParseSkipsQuotedContext(t *testing.T) {
	p := NewParser(zap.NewNop())

	body := "stop amazon\n\nOn Mon, Aug 4, 2025 at 9:12 AM Sentinel wrote:\n> reply STOP uber to block uber"
	commands := p.Parse(body)

	require.Len(t, commands, 1)
	assert.Equal(t, core.BlockCommand{Kind: core.KindSenders, Value: "amazon"}, commands[0])
}

func TestExtractOriginalSender(t *testing.T) {
	body := "stop\n\n> ---------- Forwarded message ----------\n> From: Uber Receipts <noreply@uber.com>\n> Subject: Your trip receipt"

	sender, ok := ExtractOriginalSender(body)
	require.True(t, ok)
	assert.Equal(t, "noreply@uber.com", sender)
}

func TestExtractOriginalSenderMissing(t *testing.T) {
	_, ok := ExtractOriginalSender("stop, no quoted context here")
	assert.False(t, ok)
}
