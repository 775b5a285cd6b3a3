package config_test

import (
	"fmt"

	"github.com/wonny/newsdeck/backend/pkg/config"
)

// Example demonstrates how to use the config package
func Example() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		return
	}

	fmt.Printf("Snapshots: %s\n", cfg.Paths.Resolve(cfg.Paths.Snapshots))
	fmt.Printf("Cache file: %s\n", cfg.Paths.Resolve(cfg.Paths.CacheFile))
	fmt.Printf("Persistent: %v\n", cfg.PersistentMode)
}
