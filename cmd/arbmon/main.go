package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"arb-monitor/internal/cli"
)

func main() {
	// Credentials may come from a .env file next to the binary.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "Warning: error loading .env file:", err)
	}

	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
