package backend

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/novap2p/novap2p/shared/errs"
	"github.com/novap2p/novap2p/shared/events"
	"github.com/novap2p/novap2p/shared/models"
)

type listAccountsResponse struct {
	Accounts []models.Account `json:"accounts"`
}

// changePaths maps subscribable tables to their change stream routes.
var changePaths = map[string]string{
	events.AccountsTable: "/v1/accounts/changes",
}

func accountsQuery(filter models.AccountFilter) string {
	if filter.DepositorID == "" {
		return ""
	}
	return "?depositor_id=" + url.QueryEscape(filter.DepositorID)
}

func storeError(op string, err error) error {
	if verr, ok := asValidation(err); ok {
		return verr
	}
	return errs.Store(op, err)
}

// Query returns the account records matching filter, newest date first.
func (c *Client) Query(ctx context.Context, filter models.AccountFilter) ([]models.Account, error) {
	var resp listAccountsResponse
	if err := c.do(ctx, http.MethodGet, "/v1/accounts"+accountsQuery(filter), nil, &resp); err != nil {
		return nil, storeError("query accounts", err)
	}
	if resp.Accounts == nil {
		resp.Accounts = []models.Account{}
	}
	return resp.Accounts, nil
}

// Insert stores record and returns it as persisted, with its id assigned.
func (c *Client) Insert(ctx context.Context, record *models.Account) (*models.Account, error) {
	var stored models.Account
	if err := c.do(ctx, http.MethodPost, "/v1/accounts", record, &stored); err != nil {
		return nil, storeError("insert account", err)
	}
	return &stored, nil
}

// Update applies patch to the account with the given id.
func (c *Client) Update(ctx context.Context, id string, patch models.AccountPatch) error {
	if err := c.do(ctx, http.MethodPatch, "/v1/accounts/"+url.PathEscape(id), patch, nil); err != nil {
		return storeError("update account", err)
	}
	return nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/v1/accounts/"+url.PathEscape(id), nil, nil); err != nil {
		return storeError("delete account", err)
	}
	return nil
}

// SubscribeToChanges calls fn for every change to table visible under
// filter. fn runs on the subscription's own goroutine.
func (c *Client) SubscribeToChanges(ctx context.Context, table string, filter models.AccountFilter, fn func(events.Event)) (events.Subscription, error) {
	path, ok := changePaths[table]
	if !ok {
		return nil, errs.Store("subscribe", fmt.Errorf("no change stream for table %q", table))
	}
	ctx, cancel := context.WithCancel(ctx)
	done, err := c.follow(ctx, path+accountsQuery(filter), fn)
	if err != nil {
		cancel()
		return nil, errs.Store("subscribe", err)
	}
	return events.NewSubscription(cancel, done), nil
}
