package engine

import (
	"math/big"

	"github.com/defistate/defistate-amm-go/protocols/amm"
)

// State is the main data structure broadcast to subscribers: a consistent
// snapshot of one pool taken between two mutations.
type State struct {
	// Sequence is the number of mutations the pool has committed.
	Sequence uint64 `json:"sequence"`

	// Timestamp is the Unix time (seconds) the snapshot was taken.
	Timestamp uint64 `json:"timestamp"`

	// Schema is the decode contract for Pool and Shares.
	Schema string `json:"schema"`

	Pool   amm.Pool    `json:"pool"`
	Shares []amm.Share `json:"shares"`
}

// DeepCopy returns a State that shares no memory with s.
func (s *State) DeepCopy() *State {
	if s == nil {
		return nil
	}
	shares := make([]amm.Share, len(s.Shares))
	for i, share := range s.Shares {
		shares[i] = amm.Share{Account: share.Account}
		if share.Amount != nil {
			shares[i].Amount = new(big.Int).Set(share.Amount)
		}
	}
	return &State{
		Sequence:  s.Sequence,
		Timestamp: s.Timestamp,
		Schema:    s.Schema,
		Pool:      s.Pool.DeepCopy(),
		Shares:    shares,
	}
}
