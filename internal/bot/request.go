// Package bot turns chat commands, button presses and free text into ledger
// operations and formatted replies. It knows nothing about the chat platform:
// the transport converts platform updates into Requests and renders Replies.
package bot

// Request is one inbound interaction.
type Request struct {
	ChatID int64
	UserID int64

	// Command is the lower-cased command name without the slash, empty for
	// plain text and button presses.
	Command string
	Args    []string

	// Text is the raw message text for non-command messages.
	Text string

	// Callback is the data attached to a pressed inline button.
	Callback string
}

// Button is an inline keyboard button carrying callback data.
type Button struct {
	Text string
	Data string
}

// Document is a file sent back to the user.
type Document struct {
	Name    string
	Data    []byte
	Caption string
}

// Reply is one outbound message. When Document is set Text is ignored.
type Reply struct {
	Text     string
	Markdown bool
	Buttons  [][]Button
	Document *Document
}

func text(s string) Reply { return Reply{Text: s} }

func markdown(s string) Reply { return Reply{Text: s, Markdown: true} }
