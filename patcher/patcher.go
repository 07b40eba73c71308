package patcher

import (
	"errors"
	"fmt"

	differ "github.com/defistate/defistate-amm-go/differ"
	engine "github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/protocols/amm"
)

// --- Type Definitions ---

// SharePatcherFunc applies a share-table diff to a previous table.
//
// CONTRACT:
// 1. Immutability: Implementations MUST NOT mutate 'prev'. They must create a copy.
// 2. Unknown holders: updating or deleting an account absent from 'prev' is an error.
type SharePatcherFunc func(prev []amm.Share, diff amm.ShareDiff) ([]amm.Share, error)

// --- Config and Main Struct ---

type StatePatcherConfig struct {
	// SharePatcher defaults to amm.Patcher.
	SharePatcher SharePatcherFunc
	// Schemas lists the schemas this patcher accepts. Empty means amm.Schema only.
	Schemas []string
}

func (c *StatePatcherConfig) validate() error {
	for _, s := range c.Schemas {
		if s == "" {
			return errors.New("patcher: schema cannot be empty")
		}
	}
	return nil
}

// StatePatcher rebuilds a pool State from its predecessor and a StateDiff.
type StatePatcher struct {
	sharePatcher SharePatcherFunc
	schemas      map[string]struct{}
}

// NewStatePatcher constructs a new patcher from a configuration.
func NewStatePatcher(cfg *StatePatcherConfig) (*StatePatcher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	sharePatcher := cfg.SharePatcher
	if sharePatcher == nil {
		sharePatcher = amm.Patcher
	}
	schemas := make(map[string]struct{}, len(cfg.Schemas)+1)
	if len(cfg.Schemas) == 0 {
		schemas[amm.Schema] = struct{}{}
	}
	for _, s := range cfg.Schemas {
		schemas[s] = struct{}{}
	}

	return &StatePatcher{
		sharePatcher: sharePatcher,
		schemas:      schemas,
	}, nil
}

// --- Implementation ---

// Patch creates a new State by applying the diff to the old state. The result
// shares no memory with oldState, which is left untouched.
func (p *StatePatcher) Patch(oldState *engine.State, diff *differ.StateDiff) (*engine.State, error) {
	if oldState == nil || diff == nil {
		return nil, errors.New("patcher: state and diff cannot be nil")
	}

	// 1. Integrity Check
	if oldState.Sequence != diff.FromSequence {
		return nil, fmt.Errorf("patcher: mismatch fromSequence (state=%d, diff=%d)", oldState.Sequence, diff.FromSequence)
	}
	if diff.ToSequence < diff.FromSequence {
		return nil, fmt.Errorf("patcher: diff goes backwards (from=%d, to=%d)", diff.FromSequence, diff.ToSequence)
	}
	if _, ok := p.schemas[diff.Schema]; !ok {
		return nil, fmt.Errorf("patcher: no patcher registered for schema %q", diff.Schema)
	}
	if oldState.Schema != diff.Schema {
		return nil, fmt.Errorf("patcher: schema mismatch (old=%s, diff=%s)", oldState.Schema, diff.Schema)
	}

	// 2. Pool view: replaced wholesale when the diff carries one.
	pool := oldState.Pool.DeepCopy()
	if diff.Pool != nil {
		if diff.Pool.Address != oldState.Pool.Address {
			return nil, fmt.Errorf("patcher: pool mismatch (state=%s, diff=%s)", oldState.Pool.Address.Hex(), diff.Pool.Address.Hex())
		}
		pool = diff.Pool.DeepCopy()
	}

	// 3. Share table
	shares, err := p.sharePatcher(oldState.Shares, diff.Shares)
	if err != nil {
		return nil, fmt.Errorf("patcher: failed to patch shares: %w", err)
	}

	return &engine.State{
		Sequence:  diff.ToSequence,
		Timestamp: diff.Timestamp, // the time the diff was calculated
		Schema:    diff.Schema,
		Pool:      pool,
		Shares:    shares,
	}, nil
}
