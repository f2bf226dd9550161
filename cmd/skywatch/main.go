package main

import (
	"fmt"
	"os"

	"github.com/skywatch/skywatch/common/version"
	"github.com/skywatch/skywatch/internal/skywatch/app"
	"github.com/skywatch/skywatch/internal/skywatch/config"
)

func main() {
	fmt.Printf("Skywatch Backend\n")
	fmt.Printf("Version: %s\n", version.Version)
	fmt.Printf("Commit: %s\n", version.GitCommit)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Println()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	skywatch, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize Skywatch: %v\n", err)
		os.Exit(1)
	}
	defer skywatch.Stop()

	if err := skywatch.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running Skywatch: %v\n", err)
		os.Exit(1)
	}
}
