package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novap2p/novap2p/shared/errs"
	"github.com/novap2p/novap2p/shared/events"
	"github.com/novap2p/novap2p/shared/models"
)

const testToken = "token-1"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func testSession() models.Session {
	return models.Session{
		AccessToken: testToken,
		ExpiresAt:   time.Now().Add(time.Hour).UTC(),
		Identity:    models.Identity{ID: "usr-giver", Email: "giver@example.com", Role: models.RoleOrderGiver},
	}
}

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(srv.URL, WithTimeout(2*time.Second))
}

func signedIn(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	mux.HandleFunc("POST /v1/auth/signin", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, testSession())
	})
	c := newTestClient(t, mux)
	_, err := c.SignIn(context.Background(), "giver@example.com", "password123")
	require.NoError(t, err)
	return c
}

func TestSignIn(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/auth/signin", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "password123" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "Invalid credentials"})
			return
		}
		writeJSON(w, http.StatusOK, testSession())
	})
	c := newTestClient(t, mux)

	var notified []*models.Session
	sub, err := c.OnSessionChange(context.Background(), func(s *models.Session) { notified = append(notified, s) })
	require.NoError(t, err)
	defer sub.Unsubscribe()

	t.Run("wrong password", func(t *testing.T) {
		session, err := c.SignIn(context.Background(), "giver@example.com", "wrong")
		assert.Nil(t, session)
		var authErr *errs.AuthError
		require.ErrorAs(t, err, &authErr)
		assert.ErrorIs(t, err, errs.ErrInvalidCredentials)
		assert.Nil(t, c.Session())
		assert.Empty(t, notified)
	})

	t.Run("valid credentials", func(t *testing.T) {
		session, err := c.SignIn(context.Background(), "giver@example.com", "password123")
		require.NoError(t, err)
		assert.Equal(t, "usr-giver", session.Identity.ID)
		assert.Equal(t, testToken, c.Session().AccessToken)
		require.Len(t, notified, 1)
		assert.Equal(t, "usr-giver", notified[0].Identity.ID)
	})
}

func TestSignInUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := New(srv.URL)

	_, err := c.SignIn(context.Background(), "giver@example.com", "password123")
	var authErr *errs.AuthError
	assert.ErrorAs(t, err, &authErr)
	assert.NotErrorIs(t, err, errs.ErrInvalidCredentials)
}

func TestSignUp(t *testing.T) {
	tests := []struct {
		name       string
		req        SignUpRequest
		status     int
		wantCalls  int32
		wantErr    error
		validation bool
	}{
		{
			name:       "password mismatch never reaches the backend",
			req:        SignUpRequest{Email: "dep@example.com", Password: "password123", ConfirmPassword: "password321"},
			wantErr:    errs.ErrPasswordMismatch,
			validation: true,
		},
		{
			name:      "duplicate email",
			req:       SignUpRequest{Email: "dep@example.com", Password: "password123", ConfirmPassword: "password123"},
			status:    http.StatusConflict,
			wantCalls: 1,
			wantErr:   errs.ErrEmailTaken,
		},
		{
			name:      "created and signed in",
			req:       SignUpRequest{Email: "dep@example.com", Password: "password123", ConfirmPassword: "password123", Role: models.RoleDepositor},
			status:    http.StatusCreated,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			mux := http.NewServeMux()
			mux.HandleFunc("POST /v1/users", func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				writeJSON(w, tt.status, errorResponse{Message: "email already registered"})
			})
			mux.HandleFunc("POST /v1/auth/signin", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, testSession())
			})
			c := newTestClient(t, mux)

			session, err := c.SignUp(context.Background(), tt.req)
			assert.Equal(t, tt.wantCalls, calls.Load())
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.NotNil(t, session)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.validation {
				var verr *errs.ValidationError
				require.ErrorAs(t, err, &verr)
				assert.True(t, verr.HasField("confirm_password"))
			} else {
				var authErr *errs.AuthError
				assert.ErrorAs(t, err, &authErr)
			}
			assert.Nil(t, c.Session())
		})
	}
}

func TestCurrentSession(t *testing.T) {
	var reject atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/auth/session", func(w http.ResponseWriter, r *http.Request) {
		if reject.Load() || r.Header.Get("Authorization") != "Bearer "+testToken {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "Invalid or expired token"})
			return
		}
		writeJSON(w, http.StatusOK, testSession())
	})

	t.Run("signed out", func(t *testing.T) {
		c := newTestClient(t, http.NewServeMux())
		session, err := c.CurrentSession(context.Background())
		assert.NoError(t, err)
		assert.Nil(t, session)
	})

	c := signedIn(t, mux)

	session, err := c.CurrentSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.RoleOrderGiver, session.Identity.Role)

	var signedOut atomic.Bool
	sub, err := c.OnSessionChange(context.Background(), func(s *models.Session) {
		if s == nil {
			signedOut.Store(true)
		}
	})
	// No change stream route is registered.
	require.Error(t, err)
	assert.Nil(t, sub)

	reject.Store(true)
	session, err = c.CurrentSession(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, session)
	assert.Nil(t, c.Session())
	assert.False(t, signedOut.Load())
}

func TestSignOutDropsSessionEvenWhenUnreachable(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/auth/signout", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadGateway, errorResponse{Message: "Service unavailable"})
	})
	c := signedIn(t, mux)

	var got []*models.Session
	c.mu.Lock()
	c.listeners[99] = func(s *models.Session) { got = append(got, s) }
	c.mu.Unlock()

	err := c.SignOut(context.Background())
	var authErr *errs.AuthError
	assert.ErrorAs(t, err, &authErr)
	assert.Nil(t, c.Session())
	require.Len(t, got, 1)
	assert.Nil(t, got[0])
}

func TestListDepositors(t *testing.T) {
	var calls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/users", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, models.RoleDepositor, r.URL.Query().Get("role"))
		writeJSON(w, http.StatusOK, listUsersResponse{Users: []models.DepositorView{
			{ID: "dep1", Email: "dep1@example.com", Username: "dep one", Role: models.RoleDepositor, AssignedAccounts: 2},
		}})
	})
	c := signedIn(t, mux)

	depositors, err := c.ListDepositors(context.Background())
	require.NoError(t, err)
	require.Len(t, depositors, 1)
	assert.Equal(t, "dep1", depositors[0].ID)
	assert.Equal(t, "dep one <dep1@example.com>", depositors[0].Label())
	assert.Equal(t, int32(1), calls.Load())
}

func TestListDepositorsDirectoryDown(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/users", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"message": "Store unavailable"})
	})
	c := signedIn(t, mux)

	_, err := c.ListDepositors(context.Background())
	var storeErr *errs.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.ErrorIs(t, err, errs.ErrStoreUnavailable)
	var authErr *errs.AuthError
	assert.False(t, errors.As(err, &authErr))
}

func TestAccountStore(t *testing.T) {
	stored := models.Account{
		ID:            "acc-1",
		Amount:        decimal.NewFromInt(50000),
		BankName:      "SBI",
		IFSC:          "SBIN0001234",
		AccountNumber: "1234567890",
		AccountName:   "John Doe",
		Date:          "2026-10-19",
		DepositorID:   "dep1",
		CreatedBy:     "usr-giver",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/accounts", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("depositor_id") == "dep2" {
			writeJSON(w, http.StatusOK, map[string]any{"accounts": nil})
			return
		}
		writeJSON(w, http.StatusOK, listAccountsResponse{Accounts: []models.Account{stored}})
	})
	mux.HandleFunc("POST /v1/accounts", func(w http.ResponseWriter, r *http.Request) {
		var body models.Account
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body.IFSC == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{
				Message: "Invalid request data",
				Details: []errs.FieldError{{Field: "ifsc", Message: "ifsc is required", Type: "required"}},
			})
			return
		}
		writeJSON(w, http.StatusCreated, stored)
	})
	mux.HandleFunc("PATCH /v1/accounts/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "acc-1" {
			writeJSON(w, http.StatusNotFound, errorResponse{Message: "Not found"})
			return
		}
		var patch models.AccountPatch
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&patch))
		assert.NotNil(t, patch.Verified)
		writeJSON(w, http.StatusOK, stored)
	})
	mux.HandleFunc("DELETE /v1/accounts/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Message: "Store unavailable"})
	})
	c := signedIn(t, mux)
	ctx := context.Background()

	accounts, err := c.Query(ctx, models.AccountFilter{})
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.True(t, accounts[0].Amount.Equal(decimal.NewFromInt(50000)))

	accounts, err = c.Query(ctx, models.AccountFilter{DepositorID: "dep2"})
	require.NoError(t, err)
	assert.NotNil(t, accounts)
	assert.Empty(t, accounts)

	record := stored
	record.ID = ""
	got, err := c.Insert(ctx, &record)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", got.ID)

	record.IFSC = ""
	_, err = c.Insert(ctx, &record)
	var verr *errs.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.True(t, verr.HasField("ifsc"))

	verified := true
	assert.NoError(t, c.Update(ctx, "acc-1", models.AccountPatch{Verified: &verified}))
	err = c.Update(ctx, "acc-9", models.AccountPatch{Verified: &verified})
	assert.ErrorIs(t, err, errs.ErrNotFound)

	err = c.Delete(ctx, "acc-1")
	var storeErr *errs.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.ErrorIs(t, err, errs.ErrStoreUnavailable)
	assert.Contains(t, err.Error(), "Store unavailable")
}

func sseHandler(feed chan events.Event) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "event:ready\ndata:{\"stream\":\"account.events\"}\n\n")
		flusher.Flush()
		for {
			select {
			case <-r.Context().Done():
				return
			case e := <-feed:
				payload, _ := json.Marshal(e)
				fmt.Fprintf(w, ": ping\n\nevent:%s\ndata:%s\n\n", e.Type, payload)
				flusher.Flush()
			}
		}
	}
}

func TestSubscribeToChanges(t *testing.T) {
	feed := make(chan events.Event, 1)
	var gotFilter atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/accounts/changes", func(w http.ResponseWriter, r *http.Request) {
		gotFilter.Store(r.URL.Query().Get("depositor_id"))
		sseHandler(feed)(w, r)
	})
	c := signedIn(t, mux)

	received := make(chan events.Event, 1)
	sub, err := c.SubscribeToChanges(context.Background(), events.AccountsTable, models.AccountFilter{DepositorID: "dep1"}, func(e events.Event) {
		received <- e
	})
	require.NoError(t, err)
	assert.Equal(t, "dep1", gotFilter.Load())

	event, err := events.NewEvent(events.AccountUpdated, events.AccountChangedEvent{AccountID: "acc-1", DepositorID: "dep1"})
	require.NoError(t, err)
	feed <- event

	select {
	case e := <-received:
		assert.Equal(t, events.AccountUpdated, e.Type)
		var data events.AccountChangedEvent
		require.NoError(t, e.Decode(&data))
		assert.Equal(t, "acc-1", data.AccountID)
	case <-time.After(2 * time.Second):
		t.Fatal("change event not delivered")
	}

	unsubscribed := make(chan struct{})
	go func() {
		sub.Unsubscribe()
		close(unsubscribed)
	}()
	select {
	case <-unsubscribed:
	case <-time.After(2 * time.Second):
		t.Fatal("Unsubscribe did not return")
	}
}

func TestSubscribeToChangesErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/accounts/changes", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, errorResponse{Message: "forbidden"})
	})
	c := signedIn(t, mux)

	_, err := c.SubscribeToChanges(context.Background(), "ledger", models.AccountFilter{}, func(events.Event) {})
	var storeErr *errs.StoreError
	assert.ErrorAs(t, err, &storeErr)

	_, err = c.SubscribeToChanges(context.Background(), events.AccountsTable, models.AccountFilter{DepositorID: "dep2"}, func(events.Event) {})
	assert.ErrorAs(t, err, &storeErr)
	assert.ErrorIs(t, err, errs.ErrForbidden)
}

func TestOnSessionChangeFollowsRemoteSignOut(t *testing.T) {
	feed := make(chan events.Event, 1)
	var revoked atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/auth/changes", sseHandler(feed))
	mux.HandleFunc("GET /v1/auth/session", func(w http.ResponseWriter, r *http.Request) {
		if revoked.Load() {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "Invalid or expired token"})
			return
		}
		writeJSON(w, http.StatusOK, testSession())
	})
	c := signedIn(t, mux)

	signedOut := make(chan struct{})
	sub, err := c.OnSessionChange(context.Background(), func(s *models.Session) {
		if s == nil {
			close(signedOut)
		}
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	revoked.Store(true)
	event, err := events.NewEvent(events.SessionSignedOut, events.SessionChangedEvent{UserID: "usr-giver", SessionID: "jti"})
	require.NoError(t, err)
	feed <- event

	select {
	case <-signedOut:
		assert.Nil(t, c.Session())
	case <-time.After(2 * time.Second):
		t.Fatal("sign-out not noticed")
	}
}

func TestEventReader(t *testing.T) {
	stream := strings.Join([]string{
		": ping",
		"",
		"event: ready",
		"data: {}",
		"",
		"event:account.created",
		"data:{\"a\":1,",
		"data:\"b\":2}",
		"",
	}, "\n")
	r := newEventReader(strings.NewReader(stream))

	msg, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, message{Event: "ready", Data: "{}"}, msg)

	msg, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, "account.created", msg.Event)
	assert.Equal(t, "{\"a\":1,\n\"b\":2}", msg.Data)

	_, err = r.Next()
	assert.True(t, errors.Is(err, io.EOF))
}
