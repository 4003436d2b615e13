// Package reconcile persists the open conversation to the backend chat
// store and merges the server-assigned identity back into the session.
//
// Every save sends the whole transcript, keyed by the server id once it is
// known, so repeated saves of the same conversation update a single record.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/raphaelgruber/ragchat/internal/client"
	"github.com/raphaelgruber/ragchat/internal/conversation"
	"github.com/raphaelgruber/ragchat/internal/tabstate"
)

// PlaceholderTitle is used when there is no user turn to derive a title from.
const PlaceholderTitle = "新對話"

// DefaultTitleMaxLen is the number of runes kept from the first user turn.
const DefaultTitleMaxLen = 20

// ErrNothingToSync is returned by Sync when the session has no turns worth saving.
var ErrNothingToSync = errors.New("nothing to sync")

// Store is the part of the backend chat store the reconciler needs.
type Store interface {
	CreateChat(ctx context.Context, title string, messages []client.Message) ([]byte, error)
	UpdateChat(ctx context.Context, chatID string, messages []client.Message) ([]byte, error)
}

// Config tunes title derivation and response extraction.
type Config struct {
	TitleMaxLen int
	Extractor   Extractor
}

// Reconciler turns the conversation buffer into persisted state.
type Reconciler struct {
	store   Store
	session *conversation.Session
	tab     tabstate.Store
	cfg     Config
	logger  *slog.Logger
}

// New creates a reconciler. tab may be nil when no per-tab persistence is wanted.
func New(store Store, session *conversation.Session, tab tabstate.Store, cfg Config, logger *slog.Logger) *Reconciler {
	if cfg.TitleMaxLen <= 0 {
		cfg.TitleMaxLen = DefaultTitleMaxLen
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: store, session: session, tab: tab, cfg: cfg, logger: logger}
}

// DeriveTitle returns the first user turn trimmed to maxLen runes, or the
// placeholder when there is none.
func DeriveTitle(turns []conversation.Turn, maxLen int) string {
	for _, t := range turns {
		if t.Role != conversation.RoleUser {
			continue
		}
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		if utf8.RuneCountInString(text) > maxLen {
			text = string([]rune(text)[:maxLen])
		}
		return text
	}
	return PlaceholderTitle
}

// Upsert saves turns. With a known server id it updates that record and
// sends no title; without one it creates a record titled from the turns.
// The returned result is extracted from the response with fallback to
// knownServerID and the derived title.
func (r *Reconciler) Upsert(ctx context.Context, turns []conversation.Turn, knownServerID string) (Result, error) {
	return r.upsert(ctx, turns, Result{ServerID: knownServerID})
}

func (r *Reconciler) upsert(ctx context.Context, turns []conversation.Turn, known Result) (Result, error) {
	messages := toMessages(turns)
	localTitle := DeriveTitle(turns, r.cfg.TitleMaxLen)

	var (
		raw []byte
		err error
	)
	if known.ServerID != "" {
		raw, err = r.store.UpdateChat(ctx, known.ServerID, messages)
		if err != nil {
			return Result{}, fmt.Errorf("update chat %s: %w", known.ServerID, err)
		}
	} else {
		raw, err = r.store.CreateChat(ctx, localTitle, messages)
		if err != nil {
			return Result{}, fmt.Errorf("create chat: %w", err)
		}
	}

	res, match := r.cfg.Extractor.Extract(raw, known, localTitle)
	if known.ServerID != "" && res.ServerID != known.ServerID {
		r.logger.Warn("server returned a different chat id, keeping the known one",
			"chat_id", known.ServerID, "returned_id", res.ServerID)
		res.ServerID = known.ServerID
	}
	r.logger.Debug("chat saved",
		"chat_id", res.ServerID,
		"created", known.ServerID == "",
		"turns", len(messages),
		"id_field", match.IDStrategy,
		"title_field", match.TitleStrategy,
	)
	return res, nil
}

// Sync saves the open session and records the resulting identity on it.
// If the session was reset or replaced while the save was in flight, the
// result is discarded.
func (r *Reconciler) Sync(ctx context.Context) (Result, error) {
	snap := r.session.Snapshot()
	if len(toMessages(snap.Turns)) == 0 {
		return Result{}, ErrNothingToSync
	}

	res, err := r.upsert(ctx, snap.Turns, Result{ServerID: snap.ServerID, Title: snap.Title})
	if err != nil {
		return Result{}, err
	}

	if !r.session.Reconcile(snap.Epoch, res.ServerID, res.Title) {
		r.logger.Debug("session changed during save, dropping result", "chat_id", res.ServerID)
		return res, nil
	}

	if id := r.session.ServerID(); id != "" && r.tab != nil {
		if err := r.tab.Set(tabstate.KeyCurrentChat, id); err != nil {
			r.logger.Warn("failed to persist current chat id", "chat_id", id, "error", err)
		}
	}
	return Result{ServerID: r.session.ServerID(), Title: r.session.Title()}, nil
}

// ApplyResponse merges identity carried by another backend response (for
// example a chat reply) into the session, if it is still in epoch e.
func (r *Reconciler) ApplyResponse(e conversation.Epoch, raw []byte) bool {
	snap := r.session.Snapshot()
	if snap.Epoch != e {
		return false
	}
	res, match := r.cfg.Extractor.Extract(raw, Result{ServerID: snap.ServerID, Title: snap.Title}, "")
	if match.IDStrategy == "" && match.TitleStrategy == "" {
		return false
	}
	return r.session.Reconcile(e, res.ServerID, res.Title)
}

func toMessages(turns []conversation.Turn) []client.Message {
	out := make([]client.Message, 0, len(turns))
	for _, t := range turns {
		if !t.Persistable() {
			continue
		}
		out = append(out, client.Message{Role: string(t.Role), Content: t.Text})
	}
	return out
}
