// Package guard decides whether navigation to a route may proceed given
// the resolved authentication state.
package guard

import (
	"context"

	"github.com/raphaelgruber/ragchat/internal/auth"
)

// Requirement is what a route demands of the visitor.
type Requirement int

const (
	// None routes are open to everyone.
	None Requirement = iota
	// Auth routes need a signed-in user.
	Auth
	// Guest routes are only for signed-out visitors (login, register).
	Guest
)

func (r Requirement) String() string {
	switch r {
	case Auth:
		return "auth"
	case Guest:
		return "guest"
	default:
		return "none"
	}
}

// ParseRequirement maps "auth" and "guest" to their requirement; anything
// else is None.
func ParseRequirement(s string) Requirement {
	switch s {
	case "auth":
		return Auth
	case "guest":
		return Guest
	default:
		return None
	}
}

// Decision is the outcome of a navigation check.
type Decision struct {
	Allow bool
	// RedirectTo is the route to go to instead when Allow is false.
	RedirectTo string
	// Next is the originally requested route, carried on a redirect to
	// login so navigation can resume after signing in.
	Next string
}

// Bootstrapper resolves auth state before the first decision.
type Bootstrapper interface {
	Bootstrap(ctx context.Context)
	State() auth.State
}

// Guard checks navigation against a route table.
type Guard struct {
	auth   Bootstrapper
	routes map[string]Requirement
	login  string
	home   string
}

// New creates a guard redirecting to loginRoute and homeRoute.
func New(a Bootstrapper, loginRoute, homeRoute string) *Guard {
	return &Guard{
		auth:   a,
		routes: make(map[string]Requirement),
		login:  loginRoute,
		home:   homeRoute,
	}
}

// Register sets the requirement of a route.
func (g *Guard) Register(route string, req Requirement) {
	g.routes[route] = req
}

// Requirement returns the requirement of route; unknown routes are None.
func (g *Guard) Requirement(route string) Requirement {
	return g.routes[route]
}

// Check waits for auth bootstrap, then applies the decision table. It does
// no network I/O of its own.
func (g *Guard) Check(ctx context.Context, target string) Decision {
	g.auth.Bootstrap(ctx)
	return Decide(g.Requirement(target), g.auth.State().Authenticated, target, g.login, g.home)
}

// Decide is the pure decision table.
func Decide(req Requirement, authenticated bool, target, loginRoute, homeRoute string) Decision {
	switch {
	case req == Auth && !authenticated:
		return Decision{RedirectTo: loginRoute, Next: target}
	case req == Guest && authenticated:
		return Decision{RedirectTo: homeRoute}
	default:
		return Decision{Allow: true}
	}
}
