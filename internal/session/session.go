// Package session exposes the authorization state of the current user
// session to the components that must only act for signed-in users.
package session

import (
	"fmt"
	"strings"

	"go.uber.org/atomic"
)

// Session modes accepted by Parse.
const (
	ModeAuthorized = "authorized"
	ModeRestricted = "restricted"
	ModeAnonymous  = "anonymous"
)

// Guard reports whether the session may use quota-bearing features.
// Restricted sessions (bots, service accounts) are authorized but have no
// personal quota.
type Guard interface {
	IsAuthorized() bool
	IsRestricted() bool
}

// Active reports whether g is an authorized, unrestricted session.
func Active(g Guard) bool {
	return g.IsAuthorized() && !g.IsRestricted()
}

// Switch is a Guard whose state can change at runtime. It is safe for
// concurrent use.
type Switch struct {
	authorized atomic.Bool
	restricted atomic.Bool
}

var _ Guard = (*Switch)(nil)

// NewSwitch returns a Switch in the given state.
func NewSwitch(authorized, restricted bool) *Switch {
	s := &Switch{}
	s.Set(authorized, restricted)
	return s
}

// Parse returns a Switch for one of the Mode constants.
func Parse(mode string) (*Switch, error) {
	switch strings.ToLower(mode) {
	case ModeAuthorized:
		return NewSwitch(true, false), nil
	case ModeRestricted:
		return NewSwitch(true, true), nil
	case ModeAnonymous:
		return NewSwitch(false, false), nil
	default:
		return nil, fmt.Errorf("unknown session mode %q", mode)
	}
}

// Set replaces the session state.
func (s *Switch) Set(authorized, restricted bool) {
	s.authorized.Store(authorized)
	s.restricted.Store(restricted)
}

func (s *Switch) IsAuthorized() bool { return s.authorized.Load() }

func (s *Switch) IsRestricted() bool { return s.restricted.Load() }
