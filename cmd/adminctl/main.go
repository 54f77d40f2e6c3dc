// Command adminctl is the operator CLI for the coordination plane: it
// drives dev-box provisioning, inspects onboarding status, and exposes
// the same diagnostics each daemon runs at startup (SPEC_FULL.md §B, §C.6).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.1-dev"

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: adminctl <command> [args]

Commands:
  provision <email>            start dev-box provisioning for a user
  status <email>                show a user's onboarding status
  customize <email> <group>    request a dev-box customization
  connect <email>                print the web RDP URL for a user's dev box
  delete <email>                 delete a user's dev box
  list <step>                    list users at an onboarding step
  find-sync-root                  print the discovered local sync root
  create-session-folder <id>   create a task session folder under the sync root
  local-to-url <path>             map a local path to its web URL
  doctor [-json]                   run startup diagnostics
`)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	styles := newStyles(isatty.IsTerminal(os.Stdout.Fd()))
	args := os.Args[2:]

	var code int
	switch strings.ToLower(strings.TrimSpace(os.Args[1])) {
	case "help", "-h", "--help":
		printUsage()
		return
	case "provision":
		code = runProvisionCommand(ctx, args, styles)
	case "status":
		code = runStatusCommand(ctx, args, styles)
	case "customize":
		code = runCustomizeCommand(ctx, args, styles)
	case "connect":
		code = runConnectCommand(ctx, args, styles)
	case "delete":
		code = runDeleteCommand(ctx, args, styles)
	case "list":
		code = runListCommand(ctx, args, styles)
	case "find-sync-root":
		code = runFindSyncRootCommand(args, styles)
	case "create-session-folder":
		code = runCreateSessionFolderCommand(args, styles)
	case "local-to-url":
		code = runLocalToURLCommand(args, styles)
	case "doctor":
		code = runDoctorCommand(ctx, args)
	default:
		printUsage()
		code = 2
	}
	os.Exit(code)
}
