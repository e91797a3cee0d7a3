package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/timetable/timetable-sync/internal/config"
	"github.com/timetable/timetable-sync/internal/db"
)

func main() {
	var (
		printOnly bool
		timeout   time.Duration
	)

	flag.BoolVar(&printOnly, "print", false, "Print the schema instead of applying it")
	flag.DurationVar(&timeout, "timeout", time.Minute, "Time allowed for connecting and applying the schema")
	flag.Parse()

	if printOnly {
		fmt.Fprint(os.Stdout, db.SchemaSQL)
		return
	}

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, &db.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: 1,
	})
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer pool.Close()

	if err := db.ApplySchema(ctx, pool); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Printf("Schema applied to %s/%s", cfg.Database.Host, cfg.Database.Name)
}
