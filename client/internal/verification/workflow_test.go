package verification

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novap2p/novap2p/shared/errs"
	"github.com/novap2p/novap2p/shared/events"
	"github.com/novap2p/novap2p/shared/models"
)

var errNetwork = errors.New("connection refused")

type mockStore struct {
	mu sync.Mutex

	QueryFn  func(ctx context.Context, filter models.AccountFilter) ([]models.Account, error)
	UpdateFn func(ctx context.Context, id string, patch models.AccountPatch) error

	listener func(events.Event)
	filter   models.AccountFilter
	unsubbed int
}

func (m *mockStore) Query(ctx context.Context, filter models.AccountFilter) ([]models.Account, error) {
	return m.QueryFn(ctx, filter)
}

func (m *mockStore) Update(ctx context.Context, id string, patch models.AccountPatch) error {
	return m.UpdateFn(ctx, id, patch)
}

func (m *mockStore) SubscribeToChanges(ctx context.Context, table string, filter models.AccountFilter, fn func(events.Event)) (events.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listener = fn
	m.filter = filter
	return unsubscribe(func() {
		m.mu.Lock()
		m.listener = nil
		m.unsubbed++
		m.mu.Unlock()
	}), nil
}

func (m *mockStore) emit() {
	m.mu.Lock()
	fn := m.listener
	m.mu.Unlock()
	if fn != nil {
		fn(events.Event{Type: events.AccountUpdated})
	}
}

type unsubscribe func()

func (f unsubscribe) Unsubscribe() { f() }

// table is a shared account table filtered the way the account service does.
type table struct {
	mu       sync.Mutex
	accounts []models.Account
	fail     error
}

func (tb *table) query(ctx context.Context, filter models.AccountFilter) ([]models.Account, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	out := []models.Account{}
	for _, a := range tb.accounts {
		if filter.Matches(&a) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (tb *table) update(ctx context.Context, id string, patch models.AccountPatch) error {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if tb.fail != nil {
		return tb.fail
	}
	for i := range tb.accounts {
		if tb.accounts[i].ID == id {
			tb.accounts[i].Verified = *patch.Verified
			return nil
		}
	}
	return errs.ErrNotFound
}

func (tb *table) store() *mockStore {
	return &mockStore{QueryFn: tb.query, UpdateFn: tb.update}
}

func sbi(id, depositor string) models.Account {
	return models.Account{
		ID:            id,
		Amount:        decimal.NewFromInt(50000),
		BankName:      "SBI",
		IFSC:          "SBIN0001234",
		AccountNumber: "1234567890",
		AccountName:   "John Doe",
		Date:          "2026-10-19",
		DepositorID:   depositor,
		CreatedBy:     "usr-giver",
	}
}

func depositor(id string) models.Identity {
	return models.Identity{ID: id, Role: models.RoleDepositor}
}

func TestLoadAssignedAccounts(t *testing.T) {
	tb := &table{accounts: []models.Account{sbi("a1", "dep1"), sbi("a2", "dep2"), sbi("a3", "dep1")}}

	w := New(tb.store(), depositor("dep1"))
	require.NoError(t, w.LoadAssignedAccounts(context.Background()))
	ids := []string{}
	for _, a := range w.Accounts() {
		assert.Equal(t, "dep1", a.DepositorID)
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"a1", "a3"}, ids)

	other := New(tb.store(), depositor("dep2"))
	require.NoError(t, other.LoadAssignedAccounts(context.Background()))
	require.Len(t, other.Accounts(), 1)
	assert.Equal(t, "a2", other.Accounts()[0].ID)
}

func TestLoadAssignedAccountsDropsForeignRecords(t *testing.T) {
	store := &mockStore{QueryFn: func(ctx context.Context, filter models.AccountFilter) ([]models.Account, error) {
		assert.Equal(t, "dep1", filter.DepositorID)
		// A misbehaving store ignores the filter.
		return []models.Account{sbi("a1", "dep1"), sbi("a2", "dep2")}, nil
	}}
	w := New(store, depositor("dep1"))

	require.NoError(t, w.LoadAssignedAccounts(context.Background()))
	require.Len(t, w.Accounts(), 1)
	assert.Equal(t, "a1", w.Accounts()[0].ID)

	_, err := w.ToggleVerification(context.Background(), "a2")
	assert.ErrorIs(t, err, errs.ErrNotAssigned)
}

func TestLoadAssignedAccountsUnavailable(t *testing.T) {
	fail := true
	store := &mockStore{QueryFn: func(ctx context.Context, filter models.AccountFilter) ([]models.Account, error) {
		if fail {
			return nil, errs.Store("query accounts", errs.ErrStoreUnavailable)
		}
		return []models.Account{sbi("a1", "dep1")}, nil
	}}
	w := New(store, depositor("dep1"))

	err := w.LoadAssignedAccounts(context.Background())
	assert.ErrorIs(t, err, errs.ErrStoreUnavailable)
	assert.ErrorIs(t, w.Unavailable(), errs.ErrStoreUnavailable)
	assert.Empty(t, w.Accounts())

	fail = false
	require.NoError(t, w.LoadAssignedAccounts(context.Background()))
	assert.Nil(t, w.Unavailable())
}

func TestToggleVerificationTwiceRestores(t *testing.T) {
	tests := []struct {
		name    string
		initial bool
	}{
		{name: "from pending", initial: false},
		{name: "from verified", initial: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			account := sbi("a1", "dep1")
			account.Verified = tt.initial
			tb := &table{accounts: []models.Account{account}}
			w := New(tb.store(), depositor("dep1"))
			require.NoError(t, w.LoadAssignedAccounts(context.Background()))

			shown, err := w.ToggleVerification(context.Background(), "a1")
			require.NoError(t, err)
			assert.Equal(t, !tt.initial, shown)
			assert.Equal(t, !tt.initial, tb.accounts[0].Verified)

			shown, err = w.ToggleVerification(context.Background(), "a1")
			require.NoError(t, err)
			assert.Equal(t, tt.initial, shown)
			assert.Equal(t, tt.initial, tb.accounts[0].Verified)
			assert.Equal(t, tt.initial, w.Accounts()[0].Verified)
		})
	}
}

func TestToggleVerificationFailedWriteReverts(t *testing.T) {
	tb := &table{accounts: []models.Account{sbi("a1", "dep1")}, fail: errs.Store("update account", errNetwork)}
	store := tb.store()
	var w *Workflow
	var during []bool
	store.UpdateFn = func(ctx context.Context, id string, patch models.AccountPatch) error {
		status, _ := w.Status(id)
		during = append(during, status == models.StatusVerified, w.Pending(id))
		return tb.update(ctx, id, patch)
	}
	w = New(store, depositor("dep1"))
	require.NoError(t, w.LoadAssignedAccounts(context.Background()))

	shown, err := w.ToggleVerification(context.Background(), "a1")
	var storeErr *errs.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.ErrorIs(t, err, errNetwork)
	assert.False(t, shown)

	assert.Equal(t, []bool{true, true}, during, "optimistic flag and pending marker during the write")
	status, ok := w.Status("a1")
	require.True(t, ok)
	assert.Equal(t, models.StatusPending, status)
	assert.False(t, w.Pending("a1"))
	assert.False(t, w.Accounts()[0].Verified)
}

func TestToggleVerificationUnknownAccount(t *testing.T) {
	w := New((&table{}).store(), depositor("dep1"))
	require.NoError(t, w.LoadAssignedAccounts(context.Background()))

	_, err := w.ToggleVerification(context.Background(), "a1")
	assert.ErrorIs(t, err, errs.ErrNotAssigned)
}

func TestToggleVerificationRejectsSecondWriteInFlight(t *testing.T) {
	tb := &table{accounts: []models.Account{sbi("a1", "dep1")}}
	store := tb.store()
	var w *Workflow
	var nested error
	store.UpdateFn = func(ctx context.Context, id string, patch models.AccountPatch) error {
		_, nested = w.ToggleVerification(ctx, id)
		return tb.update(ctx, id, patch)
	}
	w = New(store, depositor("dep1"))
	require.NoError(t, w.LoadAssignedAccounts(context.Background()))

	shown, err := w.ToggleVerification(context.Background(), "a1")
	require.NoError(t, err)
	assert.True(t, shown)
	var storeErr *errs.StoreError
	assert.ErrorAs(t, nested, &storeErr)
}

func TestReloadDuringWriteKeepsOptimisticFlag(t *testing.T) {
	tb := &table{accounts: []models.Account{sbi("a1", "dep1")}}
	store := tb.store()
	var w *Workflow
	store.UpdateFn = func(ctx context.Context, id string, patch models.AccountPatch) error {
		require.NoError(t, w.LoadAssignedAccounts(ctx))
		status, _ := w.Status(id)
		assert.Equal(t, models.StatusVerified, status)
		return tb.update(ctx, id, patch)
	}
	w = New(store, depositor("dep1"))
	require.NoError(t, w.LoadAssignedAccounts(context.Background()))

	_, err := w.ToggleVerification(context.Background(), "a1")
	require.NoError(t, err)
}

func TestMount(t *testing.T) {
	tb := &table{accounts: []models.Account{sbi("a1", "dep1")}}
	store := tb.store()
	w := New(store, depositor("dep1"))

	require.NoError(t, w.Mount(context.Background()))
	assert.Equal(t, "dep1", store.filter.DepositorID)
	assert.Len(t, w.Accounts(), 1)

	tb.mu.Lock()
	tb.accounts = append(tb.accounts, sbi("a2", "dep1"), sbi("a3", "dep2"))
	tb.mu.Unlock()
	store.emit()
	assert.Len(t, w.Accounts(), 2)

	w.Unmount()
	assert.Equal(t, 1, store.unsubbed)

	tb.mu.Lock()
	tb.accounts = append(tb.accounts, sbi("a4", "dep1"))
	tb.mu.Unlock()
	store.emit()
	assert.Len(t, w.Accounts(), 2)
}

func TestUnmountDuringReloadLeavesStateUntouched(t *testing.T) {
	tb := &table{accounts: []models.Account{sbi("a1", "dep1")}}
	store := tb.store()
	w := New(store, depositor("dep1"))
	require.NoError(t, w.Mount(context.Background()))
	require.Len(t, w.Accounts(), 1)

	started := make(chan struct{})
	store.QueryFn = func(ctx context.Context, _ models.AccountFilter) ([]models.Account, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	reloaded := make(chan struct{})
	go func() {
		defer close(reloaded)
		store.emit()
	}()

	<-started
	w.Unmount()
	<-reloaded

	assert.Len(t, w.Accounts(), 1)
	assert.NoError(t, w.Unavailable())
}
