// Package chat wires the client-side components into one controller and
// owns the conversation-level operations: new, open, resume, and logout.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/raphaelgruber/ragchat/internal/auth"
	"github.com/raphaelgruber/ragchat/internal/client"
	"github.com/raphaelgruber/ragchat/internal/config"
	"github.com/raphaelgruber/ragchat/internal/conversation"
	"github.com/raphaelgruber/ragchat/internal/credential"
	"github.com/raphaelgruber/ragchat/internal/dispatch"
	"github.com/raphaelgruber/ragchat/internal/guard"
	"github.com/raphaelgruber/ragchat/internal/history"
	"github.com/raphaelgruber/ragchat/internal/metrics"
	"github.com/raphaelgruber/ragchat/internal/reconcile"
	"github.com/raphaelgruber/ragchat/internal/tabstate"
)

// Route names used by the guard.
const (
	RouteLogin = "login"
	RouteHome  = "chat"
)

// Controller holds every component of one client process.
type Controller struct {
	Config     config.Config
	Client     *client.Client
	Metrics    *metrics.Collector
	Auth       *auth.Manager
	Guard      *guard.Guard
	Session    *conversation.Session
	Reconciler *reconcile.Reconciler
	History    *history.Index
	Dispatcher *dispatch.Dispatcher

	tab    tabstate.Store
	logger *slog.Logger

	obsMu    sync.RWMutex
	observer dispatch.Observer
}

// New creates a controller with file-backed credential and tab storage
// under cfg.StateDir.
func New(cfg config.Config, logger *slog.Logger) *Controller {
	creds := credential.NewFileStore(filepath.Join(cfg.StateDir, "credentials.yaml"))
	tab := tabstate.NewFileStore(filepath.Join(cfg.StateDir, "tabs"), cfg.TabScope)
	return NewWithStores(cfg, creds, tab, logger)
}

// NewWithStores creates a controller over the given stores.
func NewWithStores(cfg config.Config, creds credential.Store, tab tabstate.Store, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Controller{
		Config:  cfg,
		Metrics: metrics.NewCollector(),
		Session: conversation.NewSession(),
		tab:     tab,
		logger:  logger,
	}
	c.Client = client.New(cfg.ServerURL, creds,
		client.WithTimeout(cfg.ClientTimeout),
		client.WithMetrics(c.Metrics),
		client.WithLogger(logger.With("component", "client")),
	)
	c.Auth = auth.NewManager(creds, c.Client, logger.With("component", "auth"))
	c.Guard = guard.New(c.Auth, RouteLogin, RouteHome)
	c.Reconciler = reconcile.New(c.Client, c.Session, tab, reconcile.Config{
		TitleMaxLen: cfg.TitleMaxLen,
		Extractor:   reconcile.NewExtractor(cfg.IDFields, cfg.TitleFields),
	}, logger.With("component", "reconcile"))
	c.History = history.New(c.Client, c.Session, tab, logger.With("component", "history"))
	c.Dispatcher = dispatch.New(c.Client, c.Auth, c.Session, c.Reconciler, c.History, dispatch.Config{
		TopK:     cfg.TopK,
		Observer: c.notify,
	}, logger.With("component", "dispatch"))
	return c
}

// Observe sets the function called for each turn appended by a send.
func (c *Controller) Observe(fn dispatch.Observer) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.observer = fn
}

func (c *Controller) notify(t conversation.Turn) {
	c.obsMu.RLock()
	fn := c.observer
	c.obsMu.RUnlock()
	if fn != nil {
		fn(t)
	}
}

// Send dispatches one user turn.
func (c *Controller) Send(ctx context.Context, text string, files []client.File) dispatch.Outcome {
	return c.Dispatcher.Send(ctx, text, files)
}

// NewConversation empties the session and forgets the tab's current chat.
// The server-side short-term memory is cleared on a best-effort basis.
func (c *Controller) NewConversation(ctx context.Context) {
	c.Session.Reset()
	c.forgetCurrent()

	user, ok := c.Auth.Identity()
	if !ok {
		return
	}
	if err := c.Client.ClearMemory(ctx, user); err != nil {
		c.logger.Debug("clear memory failed", "error", err)
	}
}

// Open loads a saved chat into the session and makes it the tab's current
// chat.
func (c *Controller) Open(ctx context.Context, serverID string) error {
	rec, err := c.Client.GetChat(ctx, serverID)
	if err != nil {
		return fmt.Errorf("open chat %s: %w", serverID, err)
	}

	c.Session.Load(rec.ChatID, rec.Title, TurnsFromMessages(rec.Messages))
	if err := c.tab.Set(tabstate.KeyCurrentChat, rec.ChatID); err != nil {
		c.logger.Warn("failed to persist current chat id", "chat_id", rec.ChatID, "error", err)
	}
	c.logger.Debug("chat opened", "chat_id", rec.ChatID, "turns", len(rec.Messages))
	return nil
}

// Resume reopens the tab's current chat, if one is recorded. It reports
// whether a chat was resumed. A chat the server no longer has, or no longer
// lets this user see, is forgotten and the session starts empty. Any other
// failure keeps the recorded id so a later run can retry, and is returned.
func (c *Controller) Resume(ctx context.Context) (bool, error) {
	id, ok := c.tab.Get(tabstate.KeyCurrentChat)
	if !ok || id == "" {
		return false, nil
	}
	err := c.Open(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, client.ErrNotFound), errors.Is(err, client.ErrUnauthorized):
		c.logger.Info("chat is gone, starting fresh", "chat_id", id, "error", err)
		c.Session.Reset()
		c.forgetCurrent()
		return false, nil
	default:
		c.logger.Warn("could not resume chat", "chat_id", id, "error", err)
		return false, err
	}
}

// CurrentID returns the chat this tab has open, as last recorded.
func (c *Controller) CurrentID() string {
	id, _ := c.tab.Get(tabstate.KeyCurrentChat)
	return id
}

// Logout signs out and drops all conversation state of this tab.
func (c *Controller) Logout() {
	c.Auth.Logout()
	c.Session.Reset()
	c.forgetCurrent()
	c.History.Clear()
}

func (c *Controller) forgetCurrent() {
	if err := c.tab.Delete(tabstate.KeyCurrentChat); err != nil {
		c.logger.Warn("failed to clear current chat id", "error", err)
	}
}

// TurnsFromMessages converts stored messages to transcript turns. Any role
// other than "user" is shown as the assistant.
func TurnsFromMessages(msgs []client.Message) []conversation.Turn {
	turns := make([]conversation.Turn, 0, len(msgs))
	for _, m := range msgs {
		role := conversation.RoleAssistant
		if m.Role == string(conversation.RoleUser) {
			role = conversation.RoleUser
		}
		turns = append(turns, conversation.NewTurn(role, m.Content))
	}
	return turns
}
