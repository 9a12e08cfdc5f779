package cli

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/novap2p/novap2p/shared/errs"
	"github.com/novap2p/novap2p/shared/models"
	"github.com/novap2p/novap2p/shared/utils"
)

func newTable(w io.Writer, header ...string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	return tw
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func status(a models.Account, pending bool) string {
	s := a.Status()
	if pending {
		s += " (saving)"
	}
	return s
}

// renderAccounts prints the order giver's table. labels maps depositor ids
// to display names.
func renderAccounts(w io.Writer, accounts []models.Account, labels map[string]string, pending func(string) bool) {
	if len(accounts) == 0 {
		fmt.Fprintln(w, "No accounts yet.")
		return
	}
	tw := newTable(w, "ID", "DATE", "AMOUNT", "BANK", "IFSC", "ACCOUNT NO", "HOLDER", "UPI", "DEPOSITOR", "STATUS")
	for _, a := range accounts {
		depositor := a.DepositorID
		if label, ok := labels[a.DepositorID]; ok {
			depositor = label
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			a.ID, a.Date, utils.FormatINR(a.Amount), a.BankName, a.IFSC, a.AccountNumber,
			a.AccountName, orDash(a.UPIID), depositor, status(a, pending(a.ID)))
	}
	tw.Flush()
}

// renderAssigned prints the depositor's table.
func renderAssigned(w io.Writer, accounts []models.Account, pending func(string) bool) {
	if len(accounts) == 0 {
		fmt.Fprintln(w, "No accounts assigned to you.")
		return
	}
	tw := newTable(w, "ID", "DATE", "AMOUNT", "BANK", "IFSC", "ACCOUNT NO", "HOLDER", "UPI", "STATUS")
	for _, a := range accounts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			a.ID, a.Date, utils.FormatINR(a.Amount), a.BankName, a.IFSC, a.AccountNumber,
			a.AccountName, orDash(a.UPIID), status(a, pending(a.ID)))
	}
	tw.Flush()
}

// renderTotals prints per-date sums, newest date first.
func renderTotals(w io.Writer, totals map[string]decimal.Decimal) {
	if len(totals) == 0 {
		fmt.Fprintln(w, "No totals yet.")
		return
	}
	dates := make([]string, 0, len(totals))
	for d := range totals {
		dates = append(dates, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	tw := newTable(w, "DATE", "TOTAL")
	for _, d := range dates {
		fmt.Fprintf(tw, "%s\t%s\n", d, utils.FormatINR(totals[d]))
	}
	tw.Flush()
}

// depositorChoices orders the selector by label so numbering is stable.
func depositorChoices(labels map[string]string) []string {
	ids := make([]string, 0, len(labels))
	for id := range labels {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if labels[ids[i]] != labels[ids[j]] {
			return labels[ids[i]] < labels[ids[j]]
		}
		return ids[i] < ids[j]
	})
	return ids
}

func renderDepositors(w io.Writer, labels map[string]string) {
	if len(labels) == 0 {
		fmt.Fprintln(w, "No depositors found.")
		return
	}
	tw := newTable(w, "#", "DEPOSITOR", "ID")
	for i, id := range depositorChoices(labels) {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", i+1, labels[id], id)
	}
	tw.Flush()
}

// pickDepositor resolves a selector entry: its number or an exact id.
func pickDepositor(choice string, labels map[string]string) (string, bool) {
	choice = strings.TrimSpace(choice)
	if choice == "" {
		return "", false
	}
	if _, ok := labels[choice]; ok {
		return choice, true
	}
	if n, err := strconv.Atoi(choice); err == nil {
		ids := depositorChoices(labels)
		if n >= 1 && n <= len(ids) {
			return ids[n-1], true
		}
	}
	return "", false
}

// describe renders an error for the user.
func describe(err error) string {
	var verr *errs.ValidationError
	if errors.As(err, &verr) && len(verr.Fields) > 0 {
		parts := make([]string, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			parts = append(parts, f.Field+": "+f.Message)
		}
		return "Please fix: " + strings.Join(parts, "; ")
	}
	switch {
	case errors.Is(err, errs.ErrInvalidCredentials):
		return "Invalid email or password."
	case errors.Is(err, errs.ErrEmailTaken):
		return "That email is already registered."
	case errors.Is(err, errs.ErrStoreUnavailable):
		return "The account store is unavailable. Try again later."
	case errors.Is(err, errs.ErrNotAssigned):
		return "That account is not assigned to you."
	case errors.Is(err, errs.ErrNotFound):
		return "No such account."
	}
	return err.Error()
}
