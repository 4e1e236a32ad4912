package session

import "fmt"

// Progress is the lifecycle stage of a session. The engine owns the
// four fixed stages; each game adapter owns one or more playing values
// strictly between ProgressStarting and ProgressEnding. Progress only
// ever advances, so a snapshot carrying an earlier stage can never
// regress local state.
type Progress int

const (
	ProgressNotAvailable Progress = 0
	ProgressStarting     Progress = 1
	// Playing values live in (ProgressStarting, ProgressEnding).
	ProgressEnding Progress = 98
	ProgressClosed Progress = 99
)

func (p Progress) String() string {
	switch p {
	case ProgressNotAvailable:
		return "NotAvailable"
	case ProgressStarting:
		return "Starting"
	case ProgressEnding:
		return "Ending"
	case ProgressClosed:
		return "Closed"
	default:
		return fmt.Sprintf("Playing(%d)", int(p))
	}
}

// IsPlaying reports whether p is a game-specific playing stage.
func (p Progress) IsPlaying() bool {
	return p > ProgressStarting && p < ProgressEnding
}

// Terminal reports whether p is the final stage of the lifecycle.
func (p Progress) Terminal() bool {
	return p == ProgressClosed
}
