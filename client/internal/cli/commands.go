package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/novap2p/novap2p/client/internal/assignment"
	"github.com/novap2p/novap2p/client/internal/backend"
	"github.com/novap2p/novap2p/client/internal/gate"
	"github.com/novap2p/novap2p/shared/errs"
	"github.com/novap2p/novap2p/shared/models"
	"github.com/novap2p/novap2p/shared/utils"
)

func (a *App) signIn(ctx context.Context) {
	email, err := a.prompt("Email")
	if err != nil {
		return
	}
	password, err := a.secret("Password")
	if err != nil {
		return
	}
	session, err := a.client.SignIn(ctx, email, password)
	if err != nil {
		fmt.Fprintf(a.out, "Sign in failed: %s\n", describe(err))
		return
	}
	a.Navigate(gate.ViewFor(session.Identity.Role))
}

func (a *App) signUp(ctx context.Context) {
	var req backend.SignUpRequest
	var err error
	if req.Email, err = a.prompt("Email"); err != nil {
		return
	}
	if req.Username, err = a.prompt("Username"); err != nil {
		return
	}
	if req.Password, err = a.secret("Password"); err != nil {
		return
	}
	if req.ConfirmPassword, err = a.secret("Confirm password"); err != nil {
		return
	}
	role, err := a.prompt("Role (depositor/order_giver) [order_giver]")
	if err != nil {
		return
	}
	if role == models.RoleDepositor {
		req.Role = models.RoleDepositor
	}

	session, err := a.client.SignUp(ctx, req)
	if err != nil {
		fmt.Fprintf(a.out, "Sign up failed: %s\n", describe(err))
		return
	}
	a.Navigate(gate.ViewFor(session.Identity.Role))
}

func (a *App) signOut(ctx context.Context) {
	if err := a.client.SignOut(ctx); err != nil {
		fmt.Fprintf(a.out, "Signed out locally: %s\n", describe(err))
	}
	a.Navigate(gate.ViewSignIn)
}

func (a *App) list() {
	switch {
	case a.assign != nil:
		if err := a.assign.Unavailable(); err != nil {
			fmt.Fprintf(a.out, "Accounts unavailable: %s\n", describe(err))
			return
		}
		renderAccounts(a.out, a.assign.Accounts(), a.assign.Depositors(), a.assign.Pending)
	case a.verify != nil:
		if err := a.verify.Unavailable(); err != nil {
			fmt.Fprintf(a.out, "Accounts unavailable: %s\n", describe(err))
			return
		}
		renderAssigned(a.out, a.verify.Accounts(), a.verify.Pending)
	}
}

func (a *App) refresh(ctx context.Context) {
	switch {
	case a.assign != nil:
		_ = a.assign.LoadAccounts(ctx)
		a.assign.LoadDepositors(ctx)
	case a.verify != nil:
		_ = a.verify.LoadAssignedAccounts(ctx)
	}
	a.list()
}

// addAccount collects the assignment form. An unsaved form from a failed
// submission can be resent as is.
func (a *App) addAccount(ctx context.Context) {
	form := a.assign.Draft()
	if form == (assignment.Form{}) || !a.confirm("Resend the unsaved account?") {
		var ok bool
		if form, ok = a.readForm(ctx); !ok {
			return
		}
	}

	stored, err := a.assign.SubmitAccount(ctx, form)
	if err != nil {
		fmt.Fprintf(a.out, "Account not saved: %s\n", describe(err))
		var verr *errs.ValidationError
		if !errors.As(err, &verr) {
			fmt.Fprintln(a.out, "Your entries are kept; run 'add' to retry.")
		}
		return
	}
	fmt.Fprintf(a.out, "Saved %s: %s to %s\n", stored.ID, utils.FormatINR(stored.Amount), stored.DepositorID)
}

func (a *App) readForm(ctx context.Context) (assignment.Form, bool) {
	var form assignment.Form
	fields := []struct {
		label string
		dst   *string
	}{
		{"Amount (INR)", &form.Amount},
		{"Bank name", &form.BankName},
		{"IFSC", &form.IFSC},
		{"Account number", &form.AccountNumber},
		{"Account holder name", &form.AccountName},
		{"UPI id (optional)", &form.UPIID},
	}
	for _, f := range fields {
		v, err := a.prompt(f.label)
		if err != nil {
			return form, false
		}
		*f.dst = v
	}

	labels := a.assign.LoadDepositors(ctx)
	renderDepositors(a.out, labels)
	choice, err := a.prompt("Depositor (number or id)")
	if err != nil {
		return form, false
	}
	if id, ok := pickDepositor(choice, labels); ok {
		form.DepositorID = id
	}
	return form, true
}

func (a *App) setStatus(ctx context.Context, args []string) {
	if len(args) != 2 {
		fmt.Fprintln(a.out, "Usage: status <id> <pending|verified>")
		return
	}
	if err := a.assign.UpdateStatus(ctx, args[0], args[1]); err != nil {
		fmt.Fprintf(a.out, "Status not changed: %s\n", describe(err))
		return
	}
	fmt.Fprintf(a.out, "%s is now %s\n", args[0], args[1])
}

func (a *App) deleteAccount(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(a.out, "Usage: delete <id>")
		return
	}
	err := a.assign.DeleteAccount(ctx, args[0], func(acc models.Account) bool {
		return a.confirm(fmt.Sprintf("Delete %s (%s, %s, %s)?", acc.ID, acc.BankName, acc.AccountNumber, utils.FormatINR(acc.Amount)))
	})
	switch {
	case errors.Is(err, errs.ErrCancelled):
		fmt.Fprintln(a.out, "Not deleted.")
	case err != nil:
		fmt.Fprintf(a.out, "Delete failed: %s\n", describe(err))
	default:
		fmt.Fprintf(a.out, "Deleted %s\n", args[0])
	}
}

func (a *App) toggle(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(a.out, "Usage: toggle <id>")
		return
	}
	verified, err := a.verify.ToggleVerification(ctx, args[0])
	if err != nil {
		fmt.Fprintf(a.out, "Not changed: %s\n", describe(err))
		return
	}
	s := models.StatusPending
	if verified {
		s = models.StatusVerified
	}
	fmt.Fprintf(a.out, "%s is now %s\n", args[0], s)
}
