package eventlog

import (
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/defistate/defistate-amm-go/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func swapRecord(seq uint64) ledger.Record {
	return ledger.Record{
		Sequence: seq,
		Swap: &ledger.SwapEvent{
			Trader:   common.HexToAddress("0xe1"),
			AmountIn: big.NewInt(int64(seq)),
		},
	}
}

func newTestLog() *Log {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)), prometheus.NewRegistry())
}

func TestLog_Records(t *testing.T) {
	l := newTestLog()
	for seq := uint64(1); seq <= 5; seq++ {
		l.Publish(swapRecord(seq))
	}

	testCases := []struct {
		name string
		from uint64
		want []uint64
	}{
		{name: "from zero", from: 0, want: []uint64{1, 2, 3, 4, 5}},
		{name: "from middle", from: 3, want: []uint64{3, 4, 5}},
		{name: "from last", from: 5, want: []uint64{5}},
		{name: "past the end", from: 6, want: []uint64{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := l.Records(tc.from)
			seqs := make([]uint64, 0, len(got))
			for _, r := range got {
				seqs = append(seqs, r.Sequence)
			}
			assert.Equal(t, tc.want, seqs)
		})
	}
	assert.Equal(t, 5, l.Len())
	assert.Equal(t, 5.0, testutil.ToFloat64(l.published))
}

func TestLog_RecordsReturnsCopy(t *testing.T) {
	l := newTestLog()
	l.Publish(swapRecord(1))

	got := l.Records(0)
	got[0] = swapRecord(99)
	assert.Equal(t, uint64(1), l.Records(0)[0].Sequence)
}

func TestLog_SubscribeFanOut(t *testing.T) {
	l := newTestLog()
	a, cancelA := l.Subscribe(4)
	b, cancelB := l.Subscribe(4)
	defer cancelB()

	l.Publish(swapRecord(1))
	assert.Equal(t, uint64(1), (<-a).Sequence)
	assert.Equal(t, uint64(1), (<-b).Sequence)

	cancelA()
	cancelA()
	_, open := <-a
	assert.False(t, open)

	l.Publish(swapRecord(2))
	assert.Equal(t, uint64(2), (<-b).Sequence)
}

func TestLog_SlowSubscriberIsSkipped(t *testing.T) {
	l := newTestLog()
	slow, cancel := l.Subscribe(1)
	defer cancel()

	for seq := uint64(1); seq <= 3; seq++ {
		l.Publish(swapRecord(seq))
	}

	require.Len(t, slow, 1)
	assert.Equal(t, uint64(1), (<-slow).Sequence)
	assert.Equal(t, 2.0, testutil.ToFloat64(l.dropped))
	assert.Equal(t, 3, l.Len(), "the log itself keeps every record")
}

func TestLog_NilRegistry(t *testing.T) {
	l := New(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	l.Publish(swapRecord(1))
	assert.Equal(t, 1, l.Len())
}
