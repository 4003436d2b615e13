package history

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/raphaelgruber/ragchat/internal/client"
	"github.com/raphaelgruber/ragchat/internal/config"
	"github.com/raphaelgruber/ragchat/internal/conversation"
	"github.com/raphaelgruber/ragchat/internal/tabstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu        sync.Mutex
	rows      []client.ChatSummary
	listErr   error
	deleteErr error
	lists     atomic.Int32
	deleted   []string
	listDelay time.Duration
}

func (f *fakeStore) ListChats(context.Context) ([]client.ChatSummary, error) {
	f.lists.Add(1)
	if f.listDelay > 0 {
		time.Sleep(f.listDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]client.ChatSummary(nil), f.rows...), nil
}

func (f *fakeStore) DeleteChat(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	kept := f.rows[:0]
	for _, r := range f.rows {
		if r.ChatID != id {
			kept = append(kept, r)
		}
	}
	f.rows = kept
	return nil
}

func TestRefreshDedupAndSort(t *testing.T) {
	store := &fakeStore{rows: []client.ChatSummary{
		{ChatID: "old", Title: "Old", CreatedAt: "2024-04-01T08:00:00"},
		{ChatID: "dup", Title: "First seen", CreatedAt: "2024-05-01T12:00:00"},
		{ChatID: "new", Title: "New", CreatedAt: "2024-06-01T09:30:00"},
		{ChatID: "dup", Title: "Second seen", CreatedAt: "2024-07-01T12:00:00"},
		{ChatID: "", Title: "no id"},
	}}
	x := New(store, nil, nil, config.Discard())

	require.NoError(t, x.Refresh(context.Background()))

	items := x.Items()
	require.Len(t, items, 3)
	assert.Equal(t, []string{"new", "dup", "old"}, ids(items))
	assert.Equal(t, "First seen", items[1].Title)
}

func TestRefreshReplacesWholesale(t *testing.T) {
	store := &fakeStore{rows: []client.ChatSummary{{ChatID: "a", Title: "A"}}}
	x := New(store, nil, nil, config.Discard())
	require.NoError(t, x.Refresh(context.Background()))

	store.rows = []client.ChatSummary{{ChatID: "b", Title: "B"}}
	require.NoError(t, x.Refresh(context.Background()))

	assert.Equal(t, []string{"b"}, ids(x.Items()))
}

func TestRefreshErrorKeepsList(t *testing.T) {
	store := &fakeStore{rows: []client.ChatSummary{{ChatID: "a"}}}
	x := New(store, nil, nil, config.Discard())
	require.NoError(t, x.Refresh(context.Background()))

	store.listErr = errors.New("timeout")
	err := x.Refresh(context.Background())
	assert.ErrorIs(t, err, store.listErr)
	assert.Equal(t, []string{"a"}, ids(x.Items()))
}

func TestConcurrentRefreshCoalesces(t *testing.T) {
	store := &fakeStore{rows: []client.ChatSummary{{ChatID: "a"}}, listDelay: 50 * time.Millisecond}
	x := New(store, nil, nil, config.Discard())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, x.Refresh(context.Background()))
		}()
	}
	wg.Wait()

	assert.Less(t, store.lists.Load(), int32(5))
}

func TestDeleteOpenChatResetsSession(t *testing.T) {
	store := &fakeStore{rows: []client.ChatSummary{{ChatID: "a"}, {ChatID: "b"}}}
	session := conversation.NewSession()
	session.Load("a", "A", []conversation.Turn{conversation.NewTurn(conversation.RoleUser, "q")})
	tab := tabstate.NewMemoryStore()
	require.NoError(t, tab.Set(tabstate.KeyCurrentChat, "a"))
	x := New(store, session, tab, config.Discard())

	deleted, err := x.Delete(context.Background(), "a", AlwaysConfirm)
	require.NoError(t, err)
	assert.True(t, deleted)

	assert.Equal(t, conversation.PhaseEmpty, session.Phase())
	_, ok := tab.Get(tabstate.KeyCurrentChat)
	assert.False(t, ok)
	assert.Equal(t, []string{"b"}, ids(x.Items()))
}

func TestDeleteOtherChatKeepsSession(t *testing.T) {
	store := &fakeStore{rows: []client.ChatSummary{{ChatID: "a"}, {ChatID: "b"}}}
	session := conversation.NewSession()
	session.Load("a", "A", nil)
	x := New(store, session, nil, config.Discard())

	_, err := x.Delete(context.Background(), "b", AlwaysConfirm)
	require.NoError(t, err)

	assert.Equal(t, "a", session.ServerID())
	assert.EqualValues(t, 1, store.lists.Load(), "refresh runs regardless")
	assert.Equal(t, []string{"a"}, ids(x.Items()))
}

func TestDeleteDeclined(t *testing.T) {
	store := &fakeStore{rows: []client.ChatSummary{{ChatID: "a", Title: "A"}}}
	x := New(store, nil, nil, config.Discard())
	require.NoError(t, x.Refresh(context.Background()))

	var asked Summary
	deleted, err := x.Delete(context.Background(), "a", func(s Summary) bool {
		asked = s
		return false
	})
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Equal(t, "A", asked.Title)
	assert.Empty(t, store.deleted)
}

func TestDeleteFailure(t *testing.T) {
	store := &fakeStore{deleteErr: errors.New("500")}
	session := conversation.NewSession()
	session.Load("a", "A", nil)
	x := New(store, session, nil, config.Discard())

	deleted, err := x.Delete(context.Background(), "a", AlwaysConfirm)
	assert.Error(t, err)
	assert.False(t, deleted)
	assert.Equal(t, "a", session.ServerID())
}

func TestParseTime(t *testing.T) {
	want := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	assert.True(t, want.Equal(ParseTime("2024-05-01T12:00:00")))
	assert.True(t, want.Equal(ParseTime("2024-05-01T12:00:00Z")))
	assert.True(t, want.Equal(ParseTime("2024-05-01-120000")))
	assert.True(t, ParseTime("yesterday").IsZero())
}

func ids(items []Summary) []string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = s.ServerID
	}
	return out
}
