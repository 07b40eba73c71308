package amm

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// ShareDiff lists the share-table changes between two snapshots.
type ShareDiff struct {
	Additions []Share          `json:"additions,omitempty"`
	Updates   []Share          `json:"updates,omitempty"`
	Deletions []common.Address `json:"deletions,omitempty"`
}

// IsEmpty returns true if the diff contains no changes.
func (d ShareDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0 && len(d.Deletions) == 0
}

// Differ calculates the difference between two share tables.
// Both tables are converted into maps keyed by account so each lookup is O(1);
// the new map yields additions and updates, the old map yields deletions.
// Results are sorted by account to keep diffs deterministic on the wire.
func Differ(old, new []Share) ShareDiff {
	oldSharesMap := make(map[common.Address]Share, len(old))
	for _, share := range old {
		oldSharesMap[share.Account] = share
	}

	newSharesMap := make(map[common.Address]Share, len(new))
	for _, share := range new {
		newSharesMap[share.Account] = share
	}

	var additions []Share
	var updates []Share
	var deletions []common.Address

	for account, newShare := range newSharesMap {
		oldShare, exists := oldSharesMap[account]
		if !exists {
			additions = append(additions, newShare)
		} else if cmpBig(oldShare.Amount, newShare.Amount) != 0 {
			updates = append(updates, newShare)
		}
	}

	for account := range oldSharesMap {
		if _, exists := newSharesMap[account]; !exists {
			deletions = append(deletions, account)
		}
	}

	SortShares(additions)
	SortShares(updates)
	sort.Slice(deletions, func(i, j int) bool {
		return bytes.Compare(deletions[i][:], deletions[j][:]) < 0
	})

	return ShareDiff{
		Additions: additions,
		Updates:   updates,
		Deletions: deletions,
	}
}

// SortShares orders shares by account address.
func SortShares(shares []Share) {
	sort.Slice(shares, func(i, j int) bool {
		return bytes.Compare(shares[i].Account[:], shares[j].Account[:]) < 0
	})
}
