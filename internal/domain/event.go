package domain

// Command is a parsed slash command, e.g. "/recipe vegetarian potato".
type Command struct {
	Name   string
	Args   []string
	UserID int64
	ChatID int64
}

// Callback is an inline keyboard button press.
type Callback struct {
	ID          string
	Data        string
	UserID      int64
	ChatID      int64
	MessageID   int
	MessageText string
	// Inaccessible marks a keyboard message that can no longer be edited.
	Inaccessible bool
}

// Button is one inline keyboard button.
type Button struct {
	Text string
	Data string
}

// Reply is an outbound message with an optional inline keyboard, one slice per row.
type Reply struct {
	Text    string
	Buttons [][]Button
}
