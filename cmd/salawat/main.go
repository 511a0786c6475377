package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	// A .env next to the binary's working directory is optional; it never
	// overrides variables already set in the environment.
	_ = godotenv.Load()

	app := newCLIApp(os.Stdout)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
