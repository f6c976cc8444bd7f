package core

// PreferenceKind names one of the preference containers a command targets.
type PreferenceKind string

const (
	KindSenders    PreferenceKind = "senders"
	KindCategories PreferenceKind = "categories"
	KindKeywords   PreferenceKind = "keywords"
)

// Command is a closed tagged variant extracted from a human reply. Each
// variant carries only the fields it needs so the applier can match
// exhaustively.
type Command interface {
	isCommand()
}

// BlockCommand blocks a sender or a category.
type BlockCommand struct {
	Kind  PreferenceKind
	Value string
}

// UnblockCommand removes a previously blocked sender or category.
type UnblockCommand struct {
	Kind  PreferenceKind
	Value string
}

// WhitelistCommand marks a sender as always-forward.
type WhitelistCommand struct {
	Value string
}

// GenericStopCommand is the ambiguity-safe result of a bare or unresolvable
// "stop". It triggers the clarification sub-flow instead of a direct block.
type GenericStopCommand struct{}

// CancelBlockCommand cancels a pending temporary block ("nevermind").
type CancelBlockCommand struct{}

// SettingsCommand requests a summary of the current preference state.
type SettingsCommand struct{}

func (BlockCommand) isCommand()       {}
func (UnblockCommand) isCommand()     {}
func (WhitelistCommand) isCommand()   {}
func (GenericStopCommand) isCommand() {}
func (CancelBlockCommand) isCommand() {}
func (SettingsCommand) isCommand()    {}
