package backend

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/novap2p/novap2p/shared/errs"
	"github.com/novap2p/novap2p/shared/events"
	"github.com/novap2p/novap2p/shared/models"
)

// SignUpRequest carries the sign-up form. Role is identity metadata; an
// empty role signs up an order giver.
type SignUpRequest struct {
	Email           string `json:"email"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	Role            string `json:"role,omitempty"`
}

type listUsersResponse struct {
	Users []models.DepositorView `json:"users"`
}

// Session returns the locally held session without asking the gateway.
func (c *Client) Session() *models.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return nil
	}
	s := *c.session
	return &s
}

func (c *Client) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return ""
	}
	return c.session.AccessToken
}

// CurrentSession confirms the held session with the gateway. It returns
// nil, nil when signed out or when the token has been rejected.
func (c *Client) CurrentSession(ctx context.Context) (*models.Session, error) {
	if c.token() == "" {
		return nil, nil
	}
	var session models.Session
	err := c.do(ctx, http.MethodGet, "/v1/auth/session", nil, &session)
	if errors.Is(err, errs.ErrUnauthorized) {
		c.setSession(nil)
		return nil, nil
	}
	if err != nil {
		return nil, errs.Auth("session", err)
	}
	c.setSession(&session)
	return c.Session(), nil
}

// SignIn exchanges credentials for a session. Wrong credentials yield an
// AuthError wrapping errs.ErrInvalidCredentials and leave no session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	var session models.Session
	err := c.do(ctx, http.MethodPost, "/v1/auth/signin", map[string]string{
		"email":    email,
		"password": password,
	}, &session)
	if err != nil {
		if errors.Is(err, errs.ErrUnauthorized) {
			return nil, errs.Auth("sign in", errs.ErrInvalidCredentials)
		}
		if verr, ok := asValidation(err); ok {
			return nil, verr
		}
		return nil, errs.Auth("sign in", err)
	}
	c.setSession(&session)
	return c.Session(), nil
}

// SignUp creates the identity and signs it in.
func (c *Client) SignUp(ctx context.Context, req SignUpRequest) (*models.Session, error) {
	if req.Password != req.ConfirmPassword {
		return nil, &errs.ValidationError{
			Fields: []errs.FieldError{{Field: "confirm_password", Message: "Passwords do not match", Type: "eqfield"}},
			Err:    errs.ErrPasswordMismatch,
		}
	}
	if err := c.do(ctx, http.MethodPost, "/v1/users", req, nil); err != nil {
		if verr, ok := asValidation(err); ok {
			return nil, verr
		}
		return nil, errs.Auth("sign up", err)
	}
	return c.SignIn(ctx, req.Email, req.Password)
}

// SignOut ends the session. The local session is dropped even when the
// gateway cannot be reached.
func (c *Client) SignOut(ctx context.Context) error {
	if c.token() == "" {
		return nil
	}
	err := c.do(ctx, http.MethodPost, "/v1/auth/signout", nil, nil)
	c.setSession(nil)
	if err != nil && !errors.Is(err, errs.ErrUnauthorized) {
		return errs.Auth("sign out", err)
	}
	return nil
}

// OnSessionChange calls fn with the new session after every sign-in and
// with nil after every sign-out. While signed in it also follows the
// gateway's session feed, so a sign-out from elsewhere is noticed.
func (c *Client) OnSessionChange(ctx context.Context, fn func(*models.Session)) (events.Subscription, error) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	stop := func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
		cancel()
	}

	if c.token() == "" {
		done := make(chan struct{})
		close(done)
		return events.NewSubscription(stop, done), nil
	}

	done, err := c.follow(ctx, "/v1/auth/changes", func(e events.Event) {
		if e.Type != events.SessionSignedOut {
			return
		}
		if _, err := c.CurrentSession(ctx); err != nil && ctx.Err() == nil {
			slog.WarnContext(ctx, "session check after sign-out event failed", "error", err)
		}
	})
	if err != nil {
		stop()
		return nil, errs.Auth("watch session", err)
	}
	return events.NewSubscription(stop, done), nil
}

// setSession replaces the held session and notifies listeners when the
// signed-in identity changes.
func (c *Client) setSession(s *models.Session) {
	c.mu.Lock()
	prev := c.session
	c.session = s
	changed := (prev == nil) != (s == nil) || (prev != nil && s != nil && prev.AccessToken != s.AccessToken)
	listeners := make([]func(*models.Session), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	c.mu.Unlock()

	if !changed {
		return
	}
	for _, fn := range listeners {
		if s == nil {
			fn(nil)
			continue
		}
		copied := *s
		fn(&copied)
	}
}

// ListDepositors returns every identity with the depositor role.
// Concurrent callers share one request.
func (c *Client) ListDepositors(ctx context.Context) ([]models.Identity, error) {
	v, err, _ := c.group.Do("depositors", func() (any, error) {
		var resp listUsersResponse
		path := "/v1/users?role=" + url.QueryEscape(models.RoleDepositor)
		if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
			return nil, err
		}
		identities := make([]models.Identity, 0, len(resp.Users))
		for _, u := range resp.Users {
			identities = append(identities, u.Identity())
		}
		return identities, nil
	})
	if err != nil {
		return nil, errs.Store("list depositors", err)
	}
	return append([]models.Identity(nil), v.([]models.Identity)...), nil
}
