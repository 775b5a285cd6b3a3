package main

import (
	"os"

	"github.com/wonny/newsdeck/backend/cmd/quality/commands"
)

// main is the entry point for the quality CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/quality [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
