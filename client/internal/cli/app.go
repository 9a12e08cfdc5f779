// Package cli is the NovaP2P terminal client: a sign-in view, the order
// giver's assignment view and the depositor's verification view.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/novap2p/novap2p/client/internal/assignment"
	"github.com/novap2p/novap2p/client/internal/backend"
	"github.com/novap2p/novap2p/client/internal/gate"
	"github.com/novap2p/novap2p/client/internal/verification"
)

// App runs one REPL against one backend client.
type App struct {
	client *backend.Client
	gate   *gate.Gate
	in     *bufio.Reader
	out    io.Writer
	fd     int
	now    func() time.Time

	mu   sync.Mutex
	want gate.View

	// Owned by the REPL goroutine.
	mounted gate.View
	assign  *assignment.Workflow
	verify  *verification.Workflow
}

type Option func(*App)

// WithClock sets the clock used for new account dates.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

func NewApp(client *backend.Client, in io.Reader, out io.Writer, opts ...Option) *App {
	a := &App{
		client: client,
		in:     bufio.NewReader(in),
		out:    out,
		fd:     int(os.Stdin.Fd()),
		now:    time.Now,
		want:   gate.ViewOrderGiver,
	}
	a.gate = gate.New(client, a)
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Navigate requests a view switch. It may be called from any goroutine;
// the switch happens before the next prompt.
func (a *App) Navigate(v gate.View) {
	a.mu.Lock()
	a.want = v
	a.mu.Unlock()
}

func (a *App) wanted() gate.View {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.want
}

// Run reads commands until quit or end of input.
func (a *App) Run(ctx context.Context) error {
	fmt.Fprintln(a.out, "NovaP2P (type 'help' for commands)")
	defer a.leave()

	for {
		a.enter(ctx)

		line, err := a.prompt(fmt.Sprintf("novap2p %s", a.mounted))
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(a.out)
				return nil
			}
			return err
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if quit := a.dispatch(ctx, fields[0], fields[1:]); quit {
			fmt.Fprintln(a.out, "Bye!")
			return nil
		}
	}
}

// enter mounts the wanted view, letting the gate redirect as needed.
func (a *App) enter(ctx context.Context) {
	for {
		want := a.wanted()
		if want == a.mounted {
			return
		}
		a.leave()

		if want == gate.ViewSignIn {
			a.mounted = want
			a.help()
			return
		}

		view, session, err := a.gate.Guard(ctx, want)
		if err != nil {
			fmt.Fprintf(a.out, "Could not check your session: %s\n", describe(err))
		}
		if view != want || session == nil {
			continue
		}

		if err := a.gate.Watch(ctx); err != nil {
			fmt.Fprintf(a.out, "Sign-out from other devices will not be noticed: %s\n", describe(err))
		}
		switch view {
		case gate.ViewOrderGiver:
			a.assign = assignment.New(a.client, a.client, session.Identity, assignment.WithClock(a.now))
			if err := a.assign.Mount(ctx); err != nil {
				fmt.Fprintf(a.out, "Live updates unavailable: %s\n", describe(err))
			}
		case gate.ViewDepositor:
			a.verify = verification.New(a.client, session.Identity)
			if err := a.verify.Mount(ctx); err != nil {
				fmt.Fprintf(a.out, "Live updates unavailable: %s\n", describe(err))
			}
		}
		a.mounted = view
		fmt.Fprintf(a.out, "Signed in as %s (%s)\n", session.Identity.Label(), view)
		a.help()
		a.list()
		return
	}
}

// leave unmounts the current view and its session watch.
func (a *App) leave() {
	a.gate.Close()
	if a.assign != nil {
		a.assign.Unmount()
		a.assign = nil
	}
	if a.verify != nil {
		a.verify.Unmount()
		a.verify = nil
	}
	a.mounted = ""
}

func (a *App) help() {
	switch a.mounted {
	case gate.ViewOrderGiver:
		fmt.Fprintln(a.out, "Commands: list, totals, depositors, add, status <id> <pending|verified>, delete <id>, refresh, signout, quit")
	case gate.ViewDepositor:
		fmt.Fprintln(a.out, "Commands: list, toggle <id>, refresh, signout, quit")
	default:
		fmt.Fprintln(a.out, "Commands: signin, signup, quit")
	}
}

// dispatch runs one command and reports whether to quit.
func (a *App) dispatch(ctx context.Context, cmd string, args []string) bool {
	switch cmd {
	case "quit", "exit":
		return true
	case "help":
		a.help()
		return false
	}

	switch a.mounted {
	case gate.ViewSignIn:
		switch cmd {
		case "signin":
			a.signIn(ctx)
		case "signup":
			a.signUp(ctx)
		default:
			fmt.Fprintln(a.out, "Unknown command:", cmd)
		}
	case gate.ViewOrderGiver:
		switch cmd {
		case "list", "l":
			a.list()
		case "totals":
			renderTotals(a.out, a.assign.Totals())
		case "depositors":
			renderDepositors(a.out, a.assign.LoadDepositors(ctx))
		case "add":
			a.addAccount(ctx)
		case "status":
			a.setStatus(ctx, args)
		case "delete":
			a.deleteAccount(ctx, args)
		case "refresh":
			a.refresh(ctx)
		case "signout":
			a.signOut(ctx)
		default:
			fmt.Fprintln(a.out, "Unknown command:", cmd)
		}
	case gate.ViewDepositor:
		switch cmd {
		case "list", "l":
			a.list()
		case "toggle":
			a.toggle(ctx, args)
		case "refresh":
			a.refresh(ctx)
		case "signout":
			a.signOut(ctx)
		default:
			fmt.Fprintln(a.out, "Unknown command:", cmd)
		}
	}
	return false
}
