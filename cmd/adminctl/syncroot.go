package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/basket/shraga/internal/syncmap"
)

func runFindSyncRootCommand(args []string, st styles) int {
	businessOnly := false
	for _, a := range args {
		if a == "-business" || a == "--business" {
			businessOnly = true
		}
	}
	root, err := syncmap.FindSyncRoot(businessOnly)
	if err != nil {
		fmt.Fprintf(os.Stderr, "find sync root: %v\n", err)
		return 1
	}
	fmt.Println(root)
	return 0
}

func runCreateSessionFolderCommand(args []string, st styles) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: adminctl create-session-folder <task-id>")
		return 2
	}
	taskID := args[0]

	root, err := syncmap.FindSyncRoot(false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "find sync root: %v\n", err)
		return 1
	}
	dir := filepath.Join(root, "sessions", taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create session folder: %v\n", err)
		return 1
	}
	fmt.Println(dir)
	return 0
}

func runLocalToURLCommand(args []string, st styles) int {
	viewInBrowser := false
	var rest []string
	for _, a := range args {
		if a == "-browser" || a == "--browser" {
			viewInBrowser = true
			continue
		}
		rest = append(rest, a)
	}
	if len(rest) != 1 {
		fmt.Fprintln(os.Stderr, "usage: adminctl local-to-url [-browser] <path>")
		return 2
	}

	mapping, ok := syncmap.DefaultMapping()
	if !ok {
		fmt.Fprintln(os.Stderr, "no sync mapping discovered for this host")
		return 1
	}
	fmt.Println(syncmap.LocalToWebURL(mapping, rest[0], viewInBrowser))
	return 0
}
