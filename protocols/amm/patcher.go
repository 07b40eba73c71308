package amm

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

func deepCopyShare(s Share) Share {
	newShare := s
	if s.Amount != nil {
		newShare.Amount = new(big.Int).Set(s.Amount)
	}
	return newShare
}

// Patcher constructs a new share table by applying a diff to a previous one.
// prevState is never mutated; every returned entry owns its memory.
func Patcher(prevState []Share, diff ShareDiff) ([]Share, error) {
	newStateMap := make(map[common.Address]Share, len(prevState))
	for _, share := range prevState {
		newStateMap[share.Account] = deepCopyShare(share)
	}

	for _, account := range diff.Deletions {
		if _, ok := newStateMap[account]; !ok {
			return nil, fmt.Errorf("cannot delete unknown share holder %s", account.Hex())
		}
		delete(newStateMap, account)
	}

	for _, updated := range diff.Updates {
		if _, ok := newStateMap[updated.Account]; !ok {
			return nil, fmt.Errorf("cannot update unknown share holder %s", updated.Account.Hex())
		}
		newStateMap[updated.Account] = deepCopyShare(updated)
	}

	for _, added := range diff.Additions {
		newStateMap[added.Account] = deepCopyShare(added)
	}

	finalState := make([]Share, 0, len(newStateMap))
	for _, share := range newStateMap {
		finalState = append(finalState, share)
	}
	SortShares(finalState)

	return finalState, nil
}
