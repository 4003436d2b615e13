package metrics

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) StatusCode() int { return int(e) }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Failure
	}{
		{"plain error", errors.New("connection refused"), FailureTransport},
		{"not found", statusErr(404), FailureClient},
		{"wrapped unauthorized", fmt.Errorf("me: %w", statusErr(401)), FailureClient},
		{"bad gateway", statusErr(502), FailureServer},
		{"odd status", statusErr(302), FailureTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestRecordCall(t *testing.T) {
	c := NewCollector()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return at }

	c.RecordCall(OpChat, 30*time.Millisecond, nil)
	c.RecordCall(OpChat, 10*time.Millisecond, statusErr(503))
	c.RecordCall(OpCreateChat, 5*time.Millisecond, nil)

	snap := c.Snapshot()
	require.Len(t, snap.Operations, 2)

	chat := snap.Operations[0]
	assert.Equal(t, OpChat, chat.Op)
	assert.EqualValues(t, 2, chat.Count)
	assert.EqualValues(t, 1, chat.Errors)
	assert.EqualValues(t, 1, chat.Server)
	assert.InDelta(t, 20.0, chat.AvgTimeMs, 0.001)
	assert.EqualValues(t, 30, chat.MaxTimeMs)
	assert.Equal(t, "status 503", chat.LastError)
	assert.Equal(t, at, chat.LastErrorAt)

	create := snap.Operations[1]
	assert.Equal(t, OpCreateChat, create.Op)
	assert.Zero(t, create.Errors)
	assert.Empty(t, create.LastError)
}

func TestFailureSummary(t *testing.T) {
	c := NewCollector()
	c.RecordCall(OpListChats, time.Millisecond, errors.New("timeout"))
	c.RecordCall(OpListChats, time.Millisecond, errors.New("timeout"))
	c.RecordCall(OpListChats, time.Millisecond, statusErr(500))

	op := c.Snapshot().Operations[0]
	assert.Equal(t, "2 transport, 1 5xx", op.FailureSummary())
	assert.Empty(t, OperationSnapshot{}.FailureSummary())
}

func TestFailingNewestFirst(t *testing.T) {
	c := NewCollector()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return clock }

	c.RecordCall(OpGetChat, time.Millisecond, statusErr(404))
	clock = clock.Add(time.Minute)
	c.RecordCall(OpUpdateChat, time.Millisecond, errors.New("reset"))
	c.RecordCall(OpHealth, time.Millisecond, nil)

	failing := c.Snapshot().Failing()
	require.Len(t, failing, 2)
	assert.Equal(t, OpUpdateChat, failing[0].Op)
	assert.Equal(t, OpGetChat, failing[1].Op)
}

func TestSnapshotEmpty(t *testing.T) {
	snap := NewCollector().Snapshot()
	assert.Empty(t, snap.Operations)
	assert.Empty(t, snap.Failing())
	assert.GreaterOrEqual(t, snap.UptimeSeconds, 0.0)
}

func TestConcurrentRecording(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var err error
			if i%5 == 0 {
				err = errors.New("boom")
			}
			c.RecordCall(OpListChats, time.Millisecond, err)
		}()
	}
	wg.Wait()

	snap := c.Snapshot()
	require.Len(t, snap.Operations, 1)
	assert.EqualValues(t, 50, snap.Operations[0].Count)
	assert.EqualValues(t, 10, snap.Operations[0].Transport)
}
