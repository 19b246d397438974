package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it
// with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a
// lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	ResetPassword(ctx context.Context) error
	NewPlan(ctx context.Context) error
	Plans(ctx context.Context) error
	OpenPlan(ctx context.Context, planID string) error
	DeletePlan(ctx context.Context, planID string) error
	Say(ctx context.Context, text string) error
	ProfileShow(ctx context.Context) error
	ProfileSet(ctx context.Context, field, value string) error
	Photo(ctx context.Context, path string) error
	WhoAmI(ctx context.Context) error
	Logout(ctx context.Context) error
	DeleteAccount(ctx context.Context) error
}

const (
	helpSignedOut = "Available commands: register, login, reset-password, exit"
	helpSignedIn  = "Available commands: new, plans, open <id>, delete-plan <id>, say <text>, profile, profile set <field> <value>, photo <path>, whoami, logout, delete-account, exit\n(bare text is sent to the planner as 'say')"
)

// runREPL starts a read-eval-print loop for the planning wizard.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. While signed in, any line
// that is not a known command is treated as a conversational turn and sent
// to the planner. The loop exits on scanner EOF or when the user types
// "exit" or "quit".
//
// Any errors returned by command handlers are ignored here; handlers print
// their own errors. This keeps the REPL loop resilient and focused on I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("planner (%s) > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]

		switch cmd {
		case "exit", "quit":
			return

		case "help":
			if a.isLoggedIn() {
				printlnFn(helpSignedIn)
			} else {
				printlnFn(helpSignedOut)
			}
			continue
		}

		if !a.isLoggedIn() {
			switch cmd {
			case "register":
				_ = a.Register(ctx)
			case "login":
				_ = a.Login(ctx)
			case "reset-password":
				_ = a.ResetPassword(ctx)
			default:
				printlnFn("Please sign in first. " + helpSignedOut)
			}
			continue
		}

		switch cmd {
		case "new":
			_ = a.NewPlan(ctx)

		case "plans":
			_ = a.Plans(ctx)

		case "open":
			if len(parts) < 2 {
				printlnFn("Usage: open <plan id>")
				continue
			}
			_ = a.OpenPlan(ctx, parts[1])

		case "delete-plan":
			if len(parts) < 2 {
				printlnFn("Usage: delete-plan <plan id>")
				continue
			}
			_ = a.DeletePlan(ctx, parts[1])

		case "say":
			if len(parts) < 2 {
				printlnFn("Usage: say <text>")
				continue
			}
			_ = a.Say(ctx, strings.TrimSpace(strings.TrimPrefix(line, "say")))

		case "profile":
			if len(parts) >= 4 && parts[1] == "set" {
				_ = a.ProfileSet(ctx, parts[2], strings.Join(parts[3:], " "))
				continue
			}
			if len(parts) == 1 {
				_ = a.ProfileShow(ctx)
				continue
			}
			printlnFn("Usage: profile | profile set <field> <value>")

		case "photo":
			if len(parts) < 2 {
				printlnFn("Usage: photo <path>")
				continue
			}
			_ = a.Photo(ctx, parts[1])

		case "whoami":
			_ = a.WhoAmI(ctx)

		case "logout":
			_ = a.Logout(ctx)

		case "delete-account":
			_ = a.DeleteAccount(ctx)

		default:
			// Bare text is an implicit conversational turn.
			_ = a.Say(ctx, line)
		}
	}
}
