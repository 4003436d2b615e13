// Package dispatch sends user turns to the assistant and folds the result
// back into the open conversation.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/raphaelgruber/ragchat/internal/client"
	"github.com/raphaelgruber/ragchat/internal/conversation"
	"github.com/raphaelgruber/ragchat/internal/reconcile"
)

// Fixed transcript texts.
const (
	MissingReply = "（沒有回覆內容）"
	Apology      = "抱歉，系統暫時無法回應，請稍後再試。"
)

// Admission errors.
var (
	ErrBusy            = errors.New("a message is already being sent")
	ErrEmpty           = errors.New("nothing to send")
	ErrUnauthenticated = errors.New("not signed in")
)

// Assistant is the chat-completion backend.
type Assistant interface {
	Chat(ctx context.Context, in client.ChatRequest) ([]byte, error)
	ChatWithAttachments(ctx context.Context, in client.ChatRequest) ([]byte, error)
}

// Identity resolves the signed-in user.
type Identity interface {
	Identity() (string, bool)
}

// Syncer persists the session after a delivered reply.
type Syncer interface {
	Sync(ctx context.Context) (reconcile.Result, error)
	ApplyResponse(e conversation.Epoch, raw []byte) bool
}

// Refresher reloads the history list.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Observer is called for every turn the dispatcher appends, as soon as it
// is in the session.
type Observer func(conversation.Turn)

// State is whether a send is in flight.
type State int

const (
	Idle State = iota
	InFlight
)

func (s State) String() string {
	if s == InFlight {
		return "in-flight"
	}
	return "idle"
}

// Status summarizes what happened to one Send.
type Status int

const (
	// StatusRejected: admission failed; nothing was appended or sent.
	StatusRejected Status = iota
	// StatusDelivered: the reply was appended.
	StatusDelivered
	// StatusFailed: the call failed and the apology notice was appended.
	StatusFailed
	// StatusDiscarded: the session was reset or replaced while the call was
	// in flight, so nothing more was appended.
	StatusDiscarded
)

func (s Status) String() string {
	switch s {
	case StatusRejected:
		return "rejected"
	case StatusDelivered:
		return "delivered"
	case StatusFailed:
		return "failed"
	case StatusDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// Outcome reports a Send. Send never returns an error directly.
type Outcome struct {
	Status Status
	// Err is the admission error or the assistant call error.
	Err   error
	User  conversation.Turn
	Reply conversation.Turn
	// Saved is the session identity after the post-reply sync.
	Saved      reconcile.Result
	SyncErr    error
	RefreshErr error
}

// Config holds dispatcher settings.
type Config struct {
	TopK     int
	Observer Observer
}

// Dispatcher admits one send at a time.
type Dispatcher struct {
	assistant Assistant
	identity  Identity
	session   *conversation.Session
	syncer    Syncer
	history   Refresher
	cfg       Config
	logger    *slog.Logger

	mu    sync.Mutex
	state State
}

// New creates a dispatcher. syncer and history may be nil.
func New(assistant Assistant, identity Identity, session *conversation.Session, syncer Syncer, history Refresher, cfg Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		assistant: assistant,
		identity:  identity,
		session:   session,
		syncer:    syncer,
		history:   history,
		cfg:       cfg,
		logger:    logger,
	}
}

// State returns the current dispatch state.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Dispatcher) admit(text string, files []client.File) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == InFlight {
		return "", ErrBusy
	}
	if strings.TrimSpace(text) == "" && len(files) == 0 {
		return "", ErrEmpty
	}
	user, ok := d.identity.Identity()
	if !ok {
		return "", ErrUnauthenticated
	}
	d.state = InFlight
	return user, nil
}

func (d *Dispatcher) release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = Idle
}

// Send appends the user turn, calls the assistant, and appends its reply
// or the apology notice. After a delivered reply the session is synced
// and then the history refreshed. The in-flight state is cleared when Send
// returns, whatever happened.
func (d *Dispatcher) Send(ctx context.Context, text string, files []client.File) Outcome {
	user, err := d.admit(text, files)
	if err != nil {
		d.logger.Debug("send rejected", "error", err)
		return Outcome{Status: StatusRejected, Err: err}
	}
	defer d.release()

	out := Outcome{User: conversation.NewTurn(conversation.RoleUser, text)}
	epoch := d.session.Append(out.User)
	d.notify(out.User)

	req := client.ChatRequest{
		UserID:  user,
		Message: text,
		ChatID:  d.session.ServerID(),
		TopK:    d.cfg.TopK,
		Files:   files,
	}
	var raw []byte
	if len(files) > 0 {
		raw, err = d.assistant.ChatWithAttachments(ctx, req)
	} else {
		raw, err = d.assistant.Chat(ctx, req)
	}

	if err != nil {
		d.logger.Warn("assistant call failed", "error", err, "attachments", len(files))
		out.Err = err
		notice := conversation.NewTurn(conversation.RoleNotice, Apology)
		if !d.session.AppendIn(epoch, notice) {
			out.Status = StatusDiscarded
			return out
		}
		out.Status = StatusFailed
		out.Reply = notice
		d.notify(notice)
		return out
	}

	out.Reply = conversation.NewTurn(conversation.RoleAssistant, ReplyText(raw))
	if !d.session.AppendIn(epoch, out.Reply) {
		d.logger.Debug("session changed during send, dropping reply")
		out.Status = StatusDiscarded
		return out
	}
	out.Status = StatusDelivered
	d.notify(out.Reply)

	if d.syncer != nil {
		d.syncer.ApplyResponse(epoch, raw)
		out.Saved, out.SyncErr = d.syncer.Sync(ctx)
		if out.SyncErr != nil {
			d.logger.Warn("conversation save failed", "error", out.SyncErr)
		}
	}
	if d.history != nil {
		if out.RefreshErr = d.history.Refresh(ctx); out.RefreshErr != nil {
			d.logger.Warn("history refresh failed", "error", out.RefreshErr)
		}
	}
	return out
}

func (d *Dispatcher) notify(t conversation.Turn) {
	if d.cfg.Observer != nil {
		d.cfg.Observer(t)
	}
}

// ReplyText extracts the reply from a chat response, falling back to
// MissingReply when the field is absent or not a string.
func ReplyText(raw []byte) string {
	if !gjson.ValidBytes(raw) {
		return MissingReply
	}
	r := gjson.GetBytes(raw, "reply")
	if r.Type != gjson.String {
		return MissingReply
	}
	return r.String()
}
