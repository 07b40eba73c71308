package differ

import "github.com/defistate/defistate-amm-go/protocols/amm"

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// StateDiff represents a summary of changes FromSequence to ToSequence.
type StateDiff struct {
	Timestamp    uint64 `json:"timestamp"`
	FromSequence uint64 `json:"fromSequence"`
	ToSequence   uint64 `json:"toSequence"`

	// Schema is the decode contract for Pool and Shares.
	Schema string `json:"schema"`

	// Pool is the new pool view, set only when a reserve, the share total or the fee moved.
	Pool *amm.Pool `json:"pool,omitempty"`

	Shares amm.ShareDiff `json:"shares"`
}

// IsEmpty reports whether the diff carries no change besides the sequence bump.
func (d *StateDiff) IsEmpty() bool {
	return d.Pool == nil && d.Shares.IsEmpty()
}
