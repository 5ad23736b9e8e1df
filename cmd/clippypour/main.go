// Package main provides the clippypour command line tool. It analyzes forms
// on a page, fills them from a "||"-delimited data string, serves the HTTP
// API, and manages saved templates, data profiles and session history.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

const version = "0.1.0"

// errSessionNotDone makes the process exit with code 2 when a fill ran but
// did not end in Done.
var errSessionNotDone = errors.New("session did not complete")

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nShutting down gracefully...")
		cancel()
	}()

	err := dispatch(ctx, os.Args[1], os.Args[2:])
	cancel()

	switch {
	case err == nil:
	case errors.Is(err, flag.ErrHelp):
	case errors.Is(err, errSessionNotDone):
		os.Exit(2)
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "analyze":
		return runAnalyze(ctx, args)
	case "fill":
		return runFill(ctx, args)
	case "serve":
		return runServe(ctx, args)
	case "templates":
		return runTemplates(args)
	case "profiles":
		return runProfiles(args)
	case "history":
		return runHistory(ctx, args)
	case "version", "-version", "--version":
		fmt.Printf("ClippyPour v%s\n", version)
		return nil
	case "help", "-h", "-help", "--help":
		usage()
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "ClippyPour - pour clipboard data into web forms\n\n")
	fmt.Fprintf(os.Stderr, "Usage: clippypour <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  analyze    list the forms and fields on a page\n")
	fmt.Fprintf(os.Stderr, "  fill       fill a form from a || delimited data string\n")
	fmt.Fprintf(os.Stderr, "  serve      run the HTTP API\n")
	fmt.Fprintf(os.Stderr, "  templates  list, show or delete saved templates\n")
	fmt.Fprintf(os.Stderr, "  profiles   list, show, save or delete saved data profiles\n")
	fmt.Fprintf(os.Stderr, "  history    list, show or prune finished sessions\n")
	fmt.Fprintf(os.Stderr, "  version    print the version\n\n")
	fmt.Fprintf(os.Stderr, "Run 'clippypour <command> -h' for command options.\n\n")
	fmt.Fprintf(os.Stderr, "Examples:\n")
	fmt.Fprintf(os.Stderr, "  # Fill from the clipboard\n")
	fmt.Fprintf(os.Stderr, "  clippypour fill -url https://example.com/apply\n\n")
	fmt.Fprintf(os.Stderr, "  # Save the clipboard as a profile, then fill and submit from it\n")
	fmt.Fprintf(os.Stderr, "  clippypour profiles save home\n")
	fmt.Fprintf(os.Stderr, "  clippypour fill -profile home -submit -url https://example.com/apply\n\n")
	fmt.Fprintf(os.Stderr, "  # Fill explicit fields without a browser\n")
	fmt.Fprintf(os.Stderr, "  clippypour fill -driver static -url ./form.html -selectors '#name,#email' -data 'Jane || jane@example.com'\n\n")
}
