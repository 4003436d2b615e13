package guard

import (
	"context"
	"testing"

	"github.com/raphaelgruber/ragchat/internal/auth"
	"github.com/stretchr/testify/assert"
)

type stubAuth struct {
	bootstraps int
	state      auth.State
	resolve    auth.State
}

func (s *stubAuth) Bootstrap(context.Context) {
	s.bootstraps++
	s.state = s.resolve
}

func (s *stubAuth) State() auth.State { return s.state }

func TestDecisionTable(t *testing.T) {
	tests := []struct {
		name          string
		req           Requirement
		authenticated bool
		want          Decision
	}{
		{"auth route signed out", Auth, false, Decision{RedirectTo: "login", Next: "history"}},
		{"auth route signed in", Auth, true, Decision{Allow: true}},
		{"guest route signed in", Guest, true, Decision{RedirectTo: "chat"}},
		{"guest route signed out", Guest, false, Decision{Allow: true}},
		{"open route signed out", None, false, Decision{Allow: true}},
		{"open route signed in", None, true, Decision{Allow: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.req, tt.authenticated, "history", "login", "chat")
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckBootstrapsFirst(t *testing.T) {
	a := &stubAuth{resolve: auth.State{Bootstrapped: true, Authenticated: true, DisplayName: "alice"}}
	g := New(a, "login", "chat")
	g.Register("history", Auth)
	g.Register("login", Guest)

	assert.Equal(t, Decision{Allow: true}, g.Check(context.Background(), "history"))
	assert.Equal(t, 1, a.bootstraps)

	assert.Equal(t, Decision{RedirectTo: "chat"}, g.Check(context.Background(), "login"))
}

func TestCheckRedirectCarriesTarget(t *testing.T) {
	a := &stubAuth{resolve: auth.State{Bootstrapped: true}}
	g := New(a, "login", "chat")
	g.Register("history show", Auth)

	d := g.Check(context.Background(), "history show")
	assert.False(t, d.Allow)
	assert.Equal(t, "login", d.RedirectTo)
	assert.Equal(t, "history show", d.Next)

	assert.True(t, g.Check(context.Background(), "unknown").Allow)
}

func TestParseRequirement(t *testing.T) {
	assert.Equal(t, Auth, ParseRequirement("auth"))
	assert.Equal(t, Guest, ParseRequirement("guest"))
	assert.Equal(t, None, ParseRequirement(""))
	assert.Equal(t, "guest", Guest.String())
}
