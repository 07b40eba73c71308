package differ

import (
	"errors"
	"fmt"
	"time"

	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/protocols/amm"
	"github.com/prometheus/client_golang/prometheus"
)

// --- Config and Main Struct ---

// ShareDiffer computes the share-table diff between two snapshots.
type ShareDiffer func(old, new []amm.Share) amm.ShareDiff

// StateDifferConfig holds the differ functions and dependencies.
type StateDifferConfig struct {
	// ShareDiffer defaults to amm.Differ.
	ShareDiffer ShareDiffer
	Registry    prometheus.Registerer // required for metrics
	Logger      Logger                // required for logging
	Clock       func() time.Time      // optional
}

// validate checks if the configuration is valid, ensuring required dependencies are present.
func (c *StateDifferConfig) validate() error {
	if c.Registry == nil {
		return errors.New("config: Registry cannot be nil")
	}
	if c.Logger == nil {
		return errors.New("config: Logger cannot be nil")
	}
	return nil
}

// StateDiffer compares consecutive pool snapshots.
type StateDiffer struct {
	metrics     *Metrics
	logger      Logger
	shareDiffer ShareDiffer
	clock       func() time.Time
}

// NewStateDiffer constructs a new differ from a configuration, returning an error if the config is invalid.
func NewStateDiffer(cfg *StateDifferConfig) (*StateDiffer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	shareDiffer := cfg.ShareDiffer
	if shareDiffer == nil {
		shareDiffer = amm.Differ
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &StateDiffer{
		metrics:     NewMetrics(cfg.Registry),
		logger:      cfg.Logger,
		shareDiffer: shareDiffer,
		clock:       clock,
	}, nil
}

// Diff describes how to get from old to new. Both states must describe the same
// pool under the same schema, and new must not be older than old.
func (d *StateDiffer) Diff(old, new *engine.State) (diff *StateDiff, err error) {
	totalTimer := prometheus.NewTimer(d.metrics.diffDuration.WithLabelValues())
	defer totalTimer.ObserveDuration()
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		d.metrics.diffsTotal.WithLabelValues(status).Inc()
	}()

	if old == nil || new == nil {
		return nil, errors.New("differ: states cannot be nil")
	}
	if old.Schema != new.Schema {
		return nil, fmt.Errorf("differ: schema mismatch (old=%q, new=%q)", old.Schema, new.Schema)
	}
	if old.Pool.Address != new.Pool.Address {
		return nil, fmt.Errorf("differ: pool mismatch (old=%s, new=%s)", old.Pool.Address.Hex(), new.Pool.Address.Hex())
	}
	if new.Sequence < old.Sequence {
		return nil, fmt.Errorf("differ: new state sequence %d is behind old state sequence %d", new.Sequence, old.Sequence)
	}

	diff = &StateDiff{
		Timestamp:    uint64(d.clock().Unix()),
		FromSequence: old.Sequence,
		ToSequence:   new.Sequence,
		Schema:       new.Schema,
		Shares:       d.shareDiffer(old.Shares, new.Shares),
	}
	if amm.PoolChanged(old.Pool, new.Pool) {
		pool := new.Pool.DeepCopy()
		diff.Pool = &pool
	}

	d.logger.Debug("State diffed",
		"from_sequence", diff.FromSequence,
		"to_sequence", diff.ToSequence,
		"pool_changed", diff.Pool != nil,
		"share_additions", len(diff.Shares.Additions),
		"share_updates", len(diff.Shares.Updates),
		"share_deletions", len(diff.Shares.Deletions),
	)
	return diff, nil
}
