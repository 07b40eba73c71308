package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/defistate/defistate-amm-go/differ"
	"github.com/defistate/defistate-amm-go/eventlog"
	"github.com/defistate/defistate-amm-go/ledger"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	EventTypeFull = "full"
	EventTypeDiff = "diff"
)

// SubscriptionEvent is the wrapper object sent to subscribers.
type SubscriptionEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  int64           `json:"sentAt"`
}

// StreamAPI serves amm_subscribeStateStream.
type StreamAPI struct {
	ledger      *ledger.Ledger
	events      *eventlog.Log
	differ      *differ.StateDiffer
	logger      Logger
	bufferSize  int
	subscribers prometheus.Gauge
}

// SubscribeStateStream sends the full pool state once, then a diff each time
// the pool commits a mutation. Mutations committed while a diff is being sent
// are folded into the next diff.
func (api *StreamAPI) SubscribeStateStream(ctx context.Context) (*rpc.Subscription, error) {
	notifier, supported := rpc.NotifierFromContext(ctx)
	if !supported {
		return nil, rpc.ErrNotificationsUnsupported
	}

	// subscribe before the snapshot so no mutation falls between the two
	records, cancel := api.events.Subscribe(api.bufferSize)
	last := api.ledger.Snapshot()

	rpcSub := notifier.CreateSubscription()
	api.subscribers.Inc()
	api.logger.Info("State stream subscriber connected", "subscription", rpcSub.ID, "sequence", last.Sequence)

	go func() {
		defer api.subscribers.Dec()
		defer cancel()

		if err := notify(notifier, rpcSub.ID, EventTypeFull, last); err != nil {
			api.logger.Error("Failed to send full state", "subscription", rpcSub.ID, "error", err)
			return
		}

		for {
			select {
			case rec, ok := <-records:
				if !ok {
					return
				}
				if rec.Sequence <= last.Sequence {
					continue
				}
				next := api.ledger.Snapshot()
				diff, err := api.differ.Diff(last, next)
				if err != nil {
					api.logger.Error("Failed to diff state", "subscription", rpcSub.ID, "error", err)
					return
				}
				if err := notify(notifier, rpcSub.ID, EventTypeDiff, diff); err != nil {
					api.logger.Error("Failed to send diff", "subscription", rpcSub.ID, "error", err)
					return
				}
				last = next
			case err := <-rpcSub.Err():
				api.logger.Info("State stream subscriber gone", "subscription", rpcSub.ID, "error", err)
				return
			}
		}
	}()

	return rpcSub, nil
}

func notify(notifier *rpc.Notifier, id rpc.ID, eventType string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return notifier.Notify(id, &SubscriptionEvent{
		Type:    eventType,
		Payload: raw,
		SentAt:  time.Now().UnixNano(),
	})
}

