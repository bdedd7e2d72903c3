package ledger

import "time"

// Entry identifies one streamed document.
type Entry struct {
	DocumentID string
	IngestedAt time.Time
}
