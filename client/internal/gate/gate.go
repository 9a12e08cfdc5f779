// Package gate decides which view a session may see and follows the
// session for as long as a view is open.
package gate

import (
	"context"
	"sync"

	"github.com/novap2p/novap2p/shared/events"
	"github.com/novap2p/novap2p/shared/models"
)

type View string

const (
	ViewSignIn     View = "signin"
	ViewOrderGiver View = "order_giver"
	ViewDepositor  View = "depositor"
)

// ViewFor returns the home view of role.
func ViewFor(role string) View {
	if models.NormalizeRole(role) == models.RoleDepositor {
		return ViewDepositor
	}
	return ViewOrderGiver
}

// Navigator switches the visible view.
type Navigator interface {
	Navigate(View)
}

// Sessions is the part of the identity provider the gate reads.
type Sessions interface {
	CurrentSession(ctx context.Context) (*models.Session, error)
	OnSessionChange(ctx context.Context, fn func(*models.Session)) (events.Subscription, error)
}

// Gate guards one protected view at a time. It only navigates.
type Gate struct {
	sessions Sessions
	nav      Navigator

	mu  sync.Mutex
	sub events.Subscription
}

func New(sessions Sessions, nav Navigator) *Gate {
	return &Gate{sessions: sessions, nav: nav}
}

// Guard checks that the current session may open view. Without a session
// it navigates to sign-in; with the wrong role it navigates to the role's
// home view. It returns the view that should be shown and the session.
func (g *Gate) Guard(ctx context.Context, view View) (View, *models.Session, error) {
	session, err := g.sessions.CurrentSession(ctx)
	if err != nil || session == nil {
		g.nav.Navigate(ViewSignIn)
		return ViewSignIn, nil, err
	}
	home := ViewFor(session.Identity.Role)
	if view != home {
		g.nav.Navigate(home)
	}
	return home, session, nil
}

// Watch follows session changes until Close and navigates to sign-in
// once the session ends. Calling Watch again replaces the previous watch.
func (g *Gate) Watch(ctx context.Context) error {
	sub, err := g.sessions.OnSessionChange(ctx, func(s *models.Session) {
		if s == nil {
			g.nav.Navigate(ViewSignIn)
		}
	})
	if err != nil {
		return err
	}

	g.mu.Lock()
	prev := g.sub
	g.sub = sub
	g.mu.Unlock()
	if prev != nil {
		prev.Unsubscribe()
	}
	return nil
}

// Close releases the session subscription.
func (g *Gate) Close() {
	g.mu.Lock()
	sub := g.sub
	g.sub = nil
	g.mu.Unlock()
	if sub != nil {
		sub.Unsubscribe()
	}
}
