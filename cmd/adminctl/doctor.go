package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/basket/shraga/internal/config"
	"github.com/basket/shraga/internal/doctor"
)

func runDoctorCommand(ctx context.Context, args []string) int {
	jsonOutput := false
	for _, arg := range args {
		if arg == "-json" || arg == "--json" {
			jsonOutput = true
		}
	}

	home, _ := os.UserHomeDir()
	dir, dirErr := config.LoadDirectory()

	opts := doctor.Options{
		HomeDir:       home,
		DataverseURL:  dir.BaseURL,
		LLMCLIPath:    os.Getenv("LLM_CLI_PATH"),
		CheckSyncRoot: true,
	}
	diag := doctor.Run(ctx, opts, Version)
	diag.Results = append([]doctor.CheckResult{doctor.CheckConfigValidated("directory", dirErr)}, diag.Results...)

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(diag); err != nil {
			fmt.Fprintf(os.Stderr, "encode json: %v\n", err)
			return 1
		}
		return 0
	}

	fmt.Printf("adminctl Doctor Report (%s)\n", diag.Timestamp.Format(time.RFC3339))
	fmt.Printf("System: %s/%s (%s)\n", diag.System.OS, diag.System.Arch, diag.System.Go)
	fmt.Println("---")

	failCount := 0
	for _, res := range diag.Results {
		icon := "OK"
		switch res.Status {
		case "FAIL":
			icon = "FAIL"
			failCount++
		case "WARN":
			icon = "WARN"
		case "SKIP":
			icon = "SKIP"
		}
		fmt.Printf("[%-4s] %-18s: %s\n", icon, res.Name, res.Message)
		if res.Detail != "" {
			fmt.Printf("         %s\n", res.Detail)
		}
	}

	if failCount > 0 {
		return 1
	}
	return 0
}
