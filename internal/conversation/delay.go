package conversation

import "time"

// Typing-delay bounds. The delay emulates human response latency before each
// outbound send; it is a UX contract, not a correctness concern.
const (
	MinTypingDelay = 800 * time.Millisecond
	MaxTypingDelay = 4 * time.Second
	perRuneDelay   = 35 * time.Millisecond
)

// HumanDelay computes the artificial typing delay for a message: monotone in
// message length and clamped to [MinTypingDelay, MaxTypingDelay].
func HumanDelay(text string) time.Duration {
	d := MinTypingDelay + time.Duration(len([]rune(text)))*perRuneDelay
	if d > MaxTypingDelay {
		return MaxTypingDelay
	}
	return d
}
