// Package eventlog keeps the append-only record of every mutation a pool
// ledger commits and fans new records out to live subscribers.
package eventlog

import (
	"sort"
	"sync"

	"github.com/defistate/defistate-amm-go/ledger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Log is an in-memory ledger.EventSink. Records are kept in sequence order.
// Delivery to subscribers never blocks the publisher: a subscriber whose
// buffer is full misses the record and the drop is counted.
type Log struct {
	mu      sync.RWMutex
	records []ledger.Record
	subs    map[uint64]chan ledger.Record
	nextID  uint64

	logger    Logger
	published prometheus.Counter
	dropped   prometheus.Counter
}

// New creates an empty log. reg may be nil, in which case metrics are not registered.
func New(logger Logger, reg prometheus.Registerer) *Log {
	factory := promauto.With(reg)
	return &Log{
		subs:   make(map[uint64]chan ledger.Record),
		logger: logger,
		published: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "amm",
			Subsystem: "eventlog",
			Name:      "records_total",
			Help:      "Records appended to the event log.",
		}),
		dropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "amm",
			Subsystem: "eventlog",
			Name:      "dropped_deliveries_total",
			Help:      "Records not delivered to a subscriber because its buffer was full.",
		}),
	}
}

var _ ledger.EventSink = (*Log)(nil)

// Publish appends rec and delivers it to every subscriber.
func (l *Log) Publish(rec ledger.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = append(l.records, rec)
	l.published.Inc()

	for id, ch := range l.subs {
		select {
		case ch <- rec:
		default:
			l.dropped.Inc()
			l.logger.Warn("Subscriber buffer full, dropping record", "subscriber", id, "sequence", rec.Sequence)
		}
	}
}

// Records returns every record whose sequence is at least from.
func (l *Log) Records(from uint64) []ledger.Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i := sort.Search(len(l.records), func(i int) bool {
		return l.records[i].Sequence >= from
	})
	out := make([]ledger.Record, len(l.records)-i)
	copy(out, l.records[i:])
	return out
}

// Len returns the number of records in the log.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Subscribe registers a subscriber with the given channel buffer. The returned
// cancel func closes the channel and is safe to call more than once.
func (l *Log) Subscribe(buffer int) (<-chan ledger.Record, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan ledger.Record, buffer)

	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.subs[id] = ch
	l.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			l.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}
