// Package metrics provides in-memory statistics of backend calls.
package metrics

import (
	"errors"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Operation names for the collector.
const (
	OpHealth          = "health"
	OpLogin           = "login"
	OpRegister        = "register"
	OpMe              = "me"
	OpChat            = "chat"
	OpChatAttachments = "chat_attachments"
	OpClearMemory     = "clear_memory"
	OpCreateChat      = "create_chat"
	OpUpdateChat      = "update_chat"
	OpListChats       = "list_chats"
	OpGetChat         = "get_chat"
	OpDeleteChat      = "delete_chat"
)

// Failure classifies a failed call.
type Failure int

const (
	// FailureTransport covers timeouts, refused connections and undecodable bodies.
	FailureTransport Failure = iota
	// FailureClient is a 4xx response.
	FailureClient
	// FailureServer is a 5xx response.
	FailureServer
)

func (f Failure) String() string {
	switch f {
	case FailureClient:
		return "4xx"
	case FailureServer:
		return "5xx"
	default:
		return "transport"
	}
}

// StatusCoder is implemented by errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// Classify maps an error to its failure class.
func Classify(err error) Failure {
	var sc StatusCoder
	if !errors.As(err, &sc) {
		return FailureTransport
	}
	switch code := sc.StatusCode(); {
	case code >= 500:
		return FailureServer
	case code >= 400:
		return FailureClient
	default:
		return FailureTransport
	}
}

type opStats struct {
	calls    int64
	failures [3]int64
	total    time.Duration
	slowest  time.Duration
	lastErr  string
	lastAt   time.Time
}

// OperationSnapshot is the read-only view of one operation.
type OperationSnapshot struct {
	Op        string
	Count     int64
	Errors    int64
	Transport int64
	Client    int64
	Server    int64
	AvgTimeMs float64
	MaxTimeMs int64
	// LastError is empty when the operation never failed.
	LastError   string
	LastErrorAt time.Time
}

// FailureSummary renders the failure split, e.g. "2 transport, 1 5xx".
func (s OperationSnapshot) FailureSummary() string {
	var parts []string
	for _, p := range []struct {
		n int64
		f Failure
	}{{s.Transport, FailureTransport}, {s.Client, FailureClient}, {s.Server, FailureServer}} {
		if p.n > 0 {
			parts = append(parts, formatCount(p.n)+" "+p.f.String())
		}
	}
	return strings.Join(parts, ", ")
}

// Snapshot represents the client statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64
	// Operations is sorted by operation name.
	Operations []OperationSnapshot
}

// Failing returns the operations whose most recent failure is newest first.
func (s Snapshot) Failing() []OperationSnapshot {
	var out []OperationSnapshot
	for _, op := range s.Operations {
		if op.Errors > 0 {
			out = append(out, op)
		}
	}
	slices.SortStableFunc(out, func(a, b OperationSnapshot) int {
		return b.LastErrorAt.Compare(a.LastErrorAt)
	})
	return out
}

// Collector aggregates backend call statistics for the lifetime of the process.
// All methods are safe for concurrent use.
type Collector struct {
	mu      sync.Mutex
	started time.Time
	now     func() time.Time
	ops     map[string]*opStats
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{
		started: time.Now(),
		now:     time.Now,
		ops:     make(map[string]*opStats),
	}
}

// RecordCall records the duration and outcome of one backend call.
func (c *Collector) RecordCall(op string, d time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.ops[op]
	if s == nil {
		s = &opStats{}
		c.ops[op] = s
	}
	s.calls++
	s.total += d
	s.slowest = max(s.slowest, d)
	if err != nil {
		s.failures[Classify(err)]++
		s.lastErr = err.Error()
		s.lastAt = c.now()
	}
}

// Snapshot returns a point-in-time copy of all statistics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{UptimeSeconds: c.now().Sub(c.started).Seconds()}
	for op, s := range c.ops {
		snap.Operations = append(snap.Operations, OperationSnapshot{
			Op:          op,
			Count:       s.calls,
			Errors:      s.failures[FailureTransport] + s.failures[FailureClient] + s.failures[FailureServer],
			Transport:   s.failures[FailureTransport],
			Client:      s.failures[FailureClient],
			Server:      s.failures[FailureServer],
			AvgTimeMs:   float64(s.total.Milliseconds()) / float64(s.calls),
			MaxTimeMs:   s.slowest.Milliseconds(),
			LastError:   s.lastErr,
			LastErrorAt: s.lastAt,
		})
	}
	slices.SortFunc(snap.Operations, func(a, b OperationSnapshot) int {
		return strings.Compare(a.Op, b.Op)
	})
	return snap
}

func formatCount(n int64) string {
	return strconv.FormatInt(n, 10)
}
