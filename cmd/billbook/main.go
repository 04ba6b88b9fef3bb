// Command billbook is the operator CLI for the invoice ledger: schema
// migration, branch setup, accounting export and sales reports.
package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

func main() {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "billbook: %v\n", err)
		os.Exit(1)
	}
}
