// Package verification is the depositor's workflow: listing the accounts
// assigned to the signed-in depositor and toggling their verified flag.
package verification

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/novap2p/novap2p/shared/errs"
	"github.com/novap2p/novap2p/shared/events"
	"github.com/novap2p/novap2p/shared/models"
)

var errWriteInFlight = errors.New("a change to this account is still being saved")

// AccountStore is the account table as seen by a depositor.
type AccountStore interface {
	Query(ctx context.Context, filter models.AccountFilter) ([]models.Account, error)
	Update(ctx context.Context, id string, patch models.AccountPatch) error
	SubscribeToChanges(ctx context.Context, table string, filter models.AccountFilter, fn func(events.Event)) (events.Subscription, error)
}

// Workflow holds one depositor's view. verified is the flag shown for each
// listed account; it runs ahead of the store while a write is in flight.
type Workflow struct {
	store    AccountStore
	identity models.Identity

	mu          sync.Mutex
	accounts    []models.Account
	verified    map[string]bool
	inflight    map[string]bool
	unavailable error
	sub         events.Subscription
	cancel      context.CancelFunc
}

func New(store AccountStore, identity models.Identity) *Workflow {
	return &Workflow{
		store:    store,
		identity: identity,
		verified: map[string]bool{},
		inflight: map[string]bool{},
	}
}

func (w *Workflow) filter() models.AccountFilter {
	return models.AccountFilter{DepositorID: w.identity.ID}
}

// LoadAssignedAccounts fetches the accounts assigned to the signed-in
// depositor. Records assigned to anyone else are dropped. A load whose ctx
// ended meanwhile, as on Unmount, changes nothing.
func (w *Workflow) LoadAssignedAccounts(ctx context.Context) error {
	fetched, err := w.store.Query(ctx, w.filter())

	w.mu.Lock()
	defer w.mu.Unlock()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		w.unavailable = err
		w.accounts = nil
		w.verified = map[string]bool{}
		return err
	}

	accounts := make([]models.Account, 0, len(fetched))
	verified := make(map[string]bool, len(fetched))
	for _, a := range fetched {
		if a.DepositorID != w.identity.ID {
			slog.WarnContext(ctx, "dropping account assigned to another depositor", "account_id", a.ID)
			continue
		}
		v := a.Verified
		if local, ok := w.verified[a.ID]; ok && w.inflight[a.ID] {
			v = local
		}
		a.Verified = v
		verified[a.ID] = v
		accounts = append(accounts, a)
	}
	w.unavailable = nil
	w.accounts = accounts
	w.verified = verified
	return nil
}

// ToggleVerification flips the account's verified flag and writes it. The
// new value shows at once; a failed write restores the old one. It returns
// the flag now shown.
func (w *Workflow) ToggleVerification(ctx context.Context, id string) (bool, error) {
	w.mu.Lock()
	current, ok := w.verified[id]
	if !ok {
		w.mu.Unlock()
		return false, errs.ErrNotAssigned
	}
	if w.inflight[id] {
		w.mu.Unlock()
		return current, errs.Store("toggle verification", errWriteInFlight)
	}
	next := !current
	w.setVerified(id, next)
	w.inflight[id] = true
	w.mu.Unlock()

	err := w.store.Update(ctx, id, models.AccountPatch{Verified: &next})

	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inflight, id)
	if err != nil {
		if _, ok := w.verified[id]; ok {
			w.setVerified(id, current)
		}
		return current, errs.Store("toggle verification", err)
	}
	return next, nil
}

func (w *Workflow) setVerified(id string, v bool) {
	w.verified[id] = v
	for i := range w.accounts {
		if w.accounts[i].ID == id {
			w.accounts[i].Verified = v
		}
	}
}

// Mount loads the assigned accounts and reloads them on every change event
// until Unmount. Only a failed subscription is returned.
func (w *Workflow) Mount(ctx context.Context) error {
	w.mu.Lock()
	if w.sub != nil {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	sub, subErr := w.store.SubscribeToChanges(ctx, events.AccountsTable, w.filter(), func(events.Event) {
		if err := w.LoadAssignedAccounts(ctx); err != nil && ctx.Err() == nil {
			slog.WarnContext(ctx, "reload after change event failed", "error", err)
		}
	})
	if subErr != nil {
		cancel()
	} else {
		w.mu.Lock()
		w.sub = sub
		w.cancel = cancel
		w.mu.Unlock()
	}

	if err := w.LoadAssignedAccounts(ctx); err != nil {
		slog.WarnContext(ctx, "account store unavailable", "error", err)
	}
	return subErr
}

// Unmount stops change handling. Once it returns no event touches state.
func (w *Workflow) Unmount() {
	w.mu.Lock()
	sub, cancel := w.sub, w.cancel
	w.sub, w.cancel = nil, nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sub != nil {
		sub.Unsubscribe()
	}
}

// Accounts returns a copy of the assigned accounts with their shown flag.
func (w *Workflow) Accounts() []models.Account {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]models.Account(nil), w.accounts...)
}

// Status returns pending or verified for an assigned account.
func (w *Workflow) Status(id string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	v, ok := w.verified[id]
	if !ok {
		return "", false
	}
	if v {
		return models.StatusVerified, true
	}
	return models.StatusPending, true
}

// Pending reports whether a write for id is in flight.
func (w *Workflow) Pending(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inflight[id]
}

// Unavailable returns why the last load failed, or nil.
func (w *Workflow) Unavailable() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.unavailable
}
