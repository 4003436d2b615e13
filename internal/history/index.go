// Package history keeps the list of the user's saved chats.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/raphaelgruber/ragchat/internal/client"
	"github.com/raphaelgruber/ragchat/internal/conversation"
	"github.com/raphaelgruber/ragchat/internal/tabstate"
)

// Summary is one saved chat as last seen by the client.
type Summary struct {
	ServerID  string
	Title     string
	CreatedAt time.Time
}

// Store is the part of the backend chat store the index needs.
type Store interface {
	ListChats(ctx context.Context) ([]client.ChatSummary, error)
	DeleteChat(ctx context.Context, chatID string) error
}

// Confirmer asks the user to confirm deleting a chat.
type Confirmer func(s Summary) bool

// AlwaysConfirm approves every deletion.
func AlwaysConfirm(Summary) bool { return true }

// Index is the deduplicated, newest-first list of saved chats.
type Index struct {
	store   Store
	session *conversation.Session
	tab     tabstate.Store
	logger  *slog.Logger

	sf    singleflight.Group
	mu    sync.RWMutex
	items []Summary
}

// New creates an empty index. session and tab may be nil.
func New(store Store, session *conversation.Session, tab tabstate.Store, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{store: store, session: session, tab: tab, logger: logger}
}

// Items returns a copy of the current list.
func (x *Index) Items() []Summary {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return slices.Clone(x.items)
}

// Lookup finds a chat by server id.
func (x *Index) Lookup(serverID string) (Summary, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	for _, s := range x.items {
		if s.ServerID == serverID {
			return s, true
		}
	}
	return Summary{}, false
}

// Clear empties the list (for example on logout).
func (x *Index) Clear() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.items = nil
}

// Refresh reloads the whole list from the store. Concurrent calls share one
// request. On error the previous list is kept and the error returned.
func (x *Index) Refresh(ctx context.Context) error {
	_, err, _ := x.sf.Do("refresh", func() (any, error) {
		rows, err := x.store.ListChats(ctx)
		if err != nil {
			return nil, fmt.Errorf("list chats: %w", err)
		}
		items := Build(rows)

		x.mu.Lock()
		x.items = items
		x.mu.Unlock()

		x.logger.Debug("history refreshed", "received", len(rows), "kept", len(items))
		return nil, nil
	})
	return err
}

// Build deduplicates rows by chat id (first occurrence wins) and sorts them
// newest first. Rows without an id are dropped.
func Build(rows []client.ChatSummary) []Summary {
	seen := make(map[string]struct{}, len(rows))
	items := make([]Summary, 0, len(rows))
	for _, r := range rows {
		id := strings.TrimSpace(r.ChatID)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		items = append(items, Summary{
			ServerID:  id,
			Title:     r.Title,
			CreatedAt: ParseTime(r.CreatedAt),
		})
	}
	slices.SortStableFunc(items, func(a, b Summary) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return items
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02-150405",
}

// ParseTime parses the backend's timestamps. Values without a zone are
// UTC. Unparseable values give the zero time.
func ParseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Delete removes a chat after confirmation. It reports whether the chat was
// deleted. If it was the open conversation, the session is reset. The list
// is refreshed after every successful delete.
func (x *Index) Delete(ctx context.Context, serverID string, confirm Confirmer) (bool, error) {
	summary, ok := x.Lookup(serverID)
	if !ok {
		summary = Summary{ServerID: serverID}
	}
	if confirm != nil && !confirm(summary) {
		return false, nil
	}

	if err := x.store.DeleteChat(ctx, serverID); err != nil {
		return false, fmt.Errorf("delete chat %s: %w", serverID, err)
	}
	x.logger.Info("chat deleted", "chat_id", serverID)

	if x.session != nil && x.session.ServerID() == serverID {
		x.session.Reset()
		if x.tab != nil {
			if err := x.tab.Delete(tabstate.KeyCurrentChat); err != nil {
				x.logger.Warn("failed to clear current chat id", "error", err)
			}
		}
	}

	if err := x.Refresh(ctx); err != nil {
		x.logger.Warn("history refresh after delete failed", "error", err)
	}
	return true, nil
}
