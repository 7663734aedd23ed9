package chat

import "time"

// DefaultTimestampLayout renders a 2-digit hour/minute wall clock, e.g. "03:04 PM".
const DefaultTimestampLayout = "03:04 PM"

// Entry is one row of the conversation log. A user message has an empty BotResponse;
// the matching reply repeats UserInput and Emotion.
type Entry struct {
	UserInput   string `json:"user_input"`
	BotResponse string `json:"bot_response"`
	Emotion     string `json:"emotion"`
	Timestamp   string `json:"timestamp"`
}

// IsUser reports whether the entry is a user message rather than a bot reply.
func (e Entry) IsUser() bool {
	return e.BotResponse == ""
}

// Text returns what a chat widget would display for the entry.
func (e Entry) Text() string {
	if e.IsUser() {
		return e.UserInput
	}
	return e.BotResponse
}

// NewUserEntry builds the entry appended before the reply is known.
func NewUserEntry(input, emotion string, at time.Time, layout string) Entry {
	return Entry{
		UserInput: input,
		Emotion:   emotion,
		Timestamp: FormatTimestamp(at, layout),
	}
}

// NewBotEntry builds the entry appended once the reply arrives.
func NewBotEntry(input, reply, emotion string, at time.Time, layout string) Entry {
	return Entry{
		UserInput:   input,
		BotResponse: reply,
		Emotion:     emotion,
		Timestamp:   FormatTimestamp(at, layout),
	}
}

// FormatTimestamp formats at with layout, falling back to DefaultTimestampLayout.
func FormatTimestamp(at time.Time, layout string) string {
	if layout == "" {
		layout = DefaultTimestampLayout
	}
	return at.Format(layout)
}
