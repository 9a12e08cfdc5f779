// Package assignment is the order giver's workflow: resolving depositors,
// registering accounts against them and keeping the account list and its
// daily totals current.
package assignment

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/novap2p/novap2p/shared/errs"
	"github.com/novap2p/novap2p/shared/events"
	"github.com/novap2p/novap2p/shared/models"
	"github.com/novap2p/novap2p/shared/utils"
	"github.com/novap2p/novap2p/shared/validate"
)

// AccountStore is the account table as seen by the order giver.
type AccountStore interface {
	Query(ctx context.Context, filter models.AccountFilter) ([]models.Account, error)
	Insert(ctx context.Context, record *models.Account) (*models.Account, error)
	Update(ctx context.Context, id string, patch models.AccountPatch) error
	Delete(ctx context.Context, id string) error
	SubscribeToChanges(ctx context.Context, table string, filter models.AccountFilter, fn func(events.Event)) (events.Subscription, error)
}

// Directory lists depositor identities.
type Directory interface {
	ListDepositors(ctx context.Context) ([]models.Identity, error)
}

// Form is the account assignment form as typed by the order giver.
type Form struct {
	Amount        string `json:"amount" validate:"required"`
	BankName      string `json:"bank_name" validate:"required"`
	IFSC          string `json:"ifsc" validate:"required,ifsc"`
	AccountNumber string `json:"account_number" validate:"required,max=34"`
	AccountName   string `json:"account_name" validate:"required"`
	UPIID         string `json:"upi_id"`
	DepositorID   string `json:"depositor_id"`
}

func (f Form) normalized() Form {
	f.Amount = strings.TrimSpace(f.Amount)
	f.BankName = strings.TrimSpace(f.BankName)
	f.IFSC = strings.ToUpper(strings.TrimSpace(f.IFSC))
	f.AccountNumber = strings.TrimSpace(f.AccountNumber)
	f.AccountName = strings.TrimSpace(f.AccountName)
	f.UPIID = strings.TrimSpace(f.UPIID)
	f.DepositorID = strings.TrimSpace(f.DepositorID)
	return f
}

type Option func(*Workflow)

// WithClock sets the source of the submission date.
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) { w.now = now }
}

// Workflow holds the order giver's view state. Change events arrive on the
// store's goroutine, so state is guarded by mu; no store call is made while
// holding it.
type Workflow struct {
	store     AccountStore
	directory Directory
	identity  models.Identity
	now       func() time.Time

	mu          sync.Mutex
	accounts    []models.Account
	totals      map[string]decimal.Decimal
	depositors  map[string]string
	draft       Form
	inflight    map[string]bool
	unavailable error
	sub         events.Subscription
	cancel      context.CancelFunc
}

func New(store AccountStore, directory Directory, identity models.Identity, opts ...Option) *Workflow {
	w := &Workflow{
		store:      store,
		directory:  directory,
		identity:   identity,
		now:        time.Now,
		totals:     map[string]decimal.Decimal{},
		depositors: map[string]string{},
		inflight:   map[string]bool{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// DailyTotals sums amounts per account date.
func DailyTotals(accounts []models.Account) map[string]decimal.Decimal {
	totals := make(map[string]decimal.Decimal)
	for _, a := range accounts {
		totals[a.Date] = totals[a.Date].Add(a.Amount)
	}
	return totals
}

// LoadDepositors resolves the depositor selector. When the directory is
// unavailable the ids are taken from existing accounts and the current
// identity is added. It never fails; the result may be empty.
func (w *Workflow) LoadDepositors(ctx context.Context) map[string]string {
	depositors := make(map[string]string)

	identities, err := w.directory.ListDepositors(ctx)
	if err == nil {
		for _, id := range identities {
			if id.IsDepositor() && id.ID != "" {
				depositors[id.ID] = id.Label()
			}
		}
	} else {
		slog.WarnContext(ctx, "depositor directory unavailable, deriving depositors from accounts", "error", err)
		accounts, qerr := w.store.Query(ctx, models.AccountFilter{})
		if qerr != nil {
			accounts = w.Accounts()
		}
		for _, a := range accounts {
			if a.DepositorID != "" {
				depositors[a.DepositorID] = a.DepositorID
			}
		}
		if w.identity.ID != "" {
			depositors[w.identity.ID] = w.identity.Label()
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if ctx.Err() != nil {
		return copyLabels(w.depositors)
	}
	w.depositors = depositors
	return copyLabels(depositors)
}

// LoadAccounts replaces the account list with the store's. On failure the
// list is emptied and Unavailable reports the cause; no substitute data is
// shown. A load whose ctx ended meanwhile, as on Unmount, changes nothing.
func (w *Workflow) LoadAccounts(ctx context.Context) error {
	accounts, err := w.store.Query(ctx, models.AccountFilter{})

	w.mu.Lock()
	defer w.mu.Unlock()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		w.unavailable = err
		w.accounts = nil
		w.totals = map[string]decimal.Decimal{}
		return err
	}
	w.unavailable = nil
	w.accounts = w.reconcile(accounts)
	w.totals = DailyTotals(w.accounts)
	return nil
}

// reconcile keeps optimistic values of accounts whose write is in flight.
func (w *Workflow) reconcile(fetched []models.Account) []models.Account {
	local := make(map[string]bool, len(w.inflight))
	for _, a := range w.accounts {
		if w.inflight[a.ID] {
			local[a.ID] = a.Verified
		}
	}
	out := make([]models.Account, len(fetched))
	for i, a := range fetched {
		if v, ok := local[a.ID]; ok {
			a.Verified = v
		}
		out[i] = a
	}
	return out
}

// SubmitAccount validates form, stores the account for today with
// verified=false and adds it to the list. The draft is cleared on success
// and kept on failure.
func (w *Workflow) SubmitAccount(ctx context.Context, form Form) (*models.Account, error) {
	form = form.normalized()

	w.mu.Lock()
	w.draft = form
	w.mu.Unlock()

	if form.DepositorID == "" {
		return nil, &errs.ValidationError{
			Fields: []errs.FieldError{{Field: "depositor_id", Message: "Select a depositor", Type: "required"}},
			Err:    errs.ErrNoDepositor,
		}
	}
	if err := validate.Check(form); err != nil {
		return nil, err
	}
	amount, err := utils.ParseAmount(form.Amount)
	if err != nil {
		return nil, errs.Invalid("amount", err.Error(), err)
	}

	record := &models.Account{
		Amount:        amount,
		BankName:      form.BankName,
		IFSC:          form.IFSC,
		AccountNumber: form.AccountNumber,
		AccountName:   form.AccountName,
		UPIID:         form.UPIID,
		Date:          w.now().Format(models.DateLayout),
		DepositorID:   form.DepositorID,
		CreatedBy:     w.identity.ID,
		Verified:      false,
	}
	stored, err := w.store.Insert(ctx, record)
	if err != nil {
		return nil, errs.Store("insert account", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if indexOf(w.accounts, stored.ID) < 0 {
		w.accounts = append([]models.Account{*stored}, w.accounts...)
		sortAccounts(w.accounts)
	}
	w.totals = DailyTotals(w.accounts)
	w.draft = Form{}
	return stored, nil
}

// DeleteAccount removes the account once confirm approves it and reloads
// the list. A declined confirmation returns errs.ErrCancelled.
func (w *Workflow) DeleteAccount(ctx context.Context, id string, confirm func(models.Account) bool) error {
	w.mu.Lock()
	i := indexOf(w.accounts, id)
	var account models.Account
	if i >= 0 {
		account = w.accounts[i]
	}
	w.mu.Unlock()

	if i < 0 {
		return errs.ErrNotFound
	}
	if confirm == nil || !confirm(account) {
		return errs.ErrCancelled
	}
	if err := w.store.Delete(ctx, id); err != nil {
		return errs.Store("delete account", err)
	}
	if err := w.LoadAccounts(ctx); err != nil {
		slog.WarnContext(ctx, "reload after delete failed", "error", err)
	}
	return nil
}

// UpdateStatus sets an account to pending or verified. The list shows the
// new status at once; if the store rejects it the old status is restored
// and the list reloaded.
func (w *Workflow) UpdateStatus(ctx context.Context, id, status string) error {
	var verified bool
	switch status {
	case models.StatusPending:
	case models.StatusVerified:
		verified = true
	default:
		return errs.Invalid("status", "status must be pending or verified", nil)
	}

	w.mu.Lock()
	i := indexOf(w.accounts, id)
	if i < 0 {
		w.mu.Unlock()
		return errs.ErrNotFound
	}
	previous := w.accounts[i].Verified
	w.accounts[i].Verified = verified
	w.inflight[id] = true
	w.mu.Unlock()

	err := w.store.Update(ctx, id, models.AccountPatch{Verified: &verified})

	w.mu.Lock()
	delete(w.inflight, id)
	if err != nil {
		if i := indexOf(w.accounts, id); i >= 0 && w.accounts[i].Verified == verified {
			w.accounts[i].Verified = previous
		}
	}
	w.mu.Unlock()

	if err != nil {
		if lerr := w.LoadAccounts(ctx); lerr != nil {
			slog.WarnContext(ctx, "reload after failed status update failed", "error", lerr)
		}
		return errs.Store("update status", err)
	}
	return nil
}

// Mount loads the view and reloads the accounts on every change event
// until Unmount. A failed initial load leaves the workflow in the
// unavailable state; only a failed subscription is returned.
func (w *Workflow) Mount(ctx context.Context) error {
	w.mu.Lock()
	if w.sub != nil {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	sub, subErr := w.store.SubscribeToChanges(ctx, events.AccountsTable, models.AccountFilter{}, func(events.Event) {
		if err := w.LoadAccounts(ctx); err != nil && ctx.Err() == nil {
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

	if err := w.LoadAccounts(ctx); err != nil {
		slog.WarnContext(ctx, "account store unavailable", "error", err)
	}
	w.LoadDepositors(ctx)
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

// Accounts returns a copy of the current list.
func (w *Workflow) Accounts() []models.Account {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]models.Account(nil), w.accounts...)
}

// Totals returns a copy of the per-date amount sums.
func (w *Workflow) Totals() map[string]decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	totals := make(map[string]decimal.Decimal, len(w.totals))
	for k, v := range w.totals {
		totals[k] = v
	}
	return totals
}

func (w *Workflow) Depositors() map[string]string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return copyLabels(w.depositors)
}

// Draft returns the last submitted form that has not been stored yet.
func (w *Workflow) Draft() Form {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft
}

// Unavailable returns why the last load failed, or nil.
func (w *Workflow) Unavailable() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.unavailable
}

// Pending reports whether a status write for id is in flight.
func (w *Workflow) Pending(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inflight[id]
}

func indexOf(accounts []models.Account, id string) int {
	for i := range accounts {
		if accounts[i].ID == id {
			return i
		}
	}
	return -1
}

func sortAccounts(accounts []models.Account) {
	sort.SliceStable(accounts, func(i, j int) bool {
		return accounts[i].Date > accounts[j].Date
	})
}

func copyLabels(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
