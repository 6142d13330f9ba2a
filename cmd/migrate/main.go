package main

import (
	"fmt"
	"log"
	"os"

	"wallet/internal/config"
	"wallet/internal/db"
)

const usage = "usage: migrate [up|down|version]"

func main() {
	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	migrator, err := db.NewMigrator(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to prepare migrations: %v", err)
	}
	defer migrator.Close()

	switch command {
	case "up":
		if err := migrator.Up(); err != nil {
			log.Fatalf("failed to apply migrations: %v", err)
		}
	case "down":
		if err := migrator.Down(); err != nil {
			log.Fatalf("failed to roll back: %v", err)
		}
	case "version":
	default:
		log.Fatal(usage)
	}

	version, dirty, err := migrator.Version()
	if err != nil {
		log.Fatalf("failed to read schema version: %v", err)
	}
	fmt.Printf("schema version %d (dirty=%t)\n", version, dirty)
}
