package main

import (
	"context"
	"fmt"
	"log"

	"admindata/internal/adapter"
	"admindata/internal/config"
	"admindata/internal/metadata"
	"admindata/internal/store"
)

func main() {
	ctx := context.Background()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded (driver: %s, db: %s)", cfg.Database.Driver, cfg.Database.Name)

	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	// 3. Load model definitions
	reg := metadata.NewRegistry()
	if err := metadata.LoadDir(cfg.ModelsDir, reg); err != nil {
		log.Fatalf("Failed to load models from %s: %v", cfg.ModelsDir, err)
	}

	// 4. Synchronize tables with the registered models
	if err := store.NewSchema(db).Sync(ctx, reg); err != nil {
		log.Fatalf("Failed to sync schema: %v", err)
	}
	log.Println("Schema ready")

	// 5. Register the default adapter
	sql := adapter.NewSQL("default", db, reg)
	if err := adapter.Register("default", sql); err != nil {
		log.Fatalf("Failed to register adapter: %v", err)
	}

	// 6. Describe what was loaded
	for _, m := range reg.All() {
		fmt.Printf("%s (table %s)\n", m.DottedName(), m.Table)
		for _, info := range sql.Describe(m) {
			detail := info.Type
			if info.Target != "" {
				detail = fmt.Sprintf("%s -> %s", info.Kind, info.Target)
			}
			fmt.Printf("  %-24s %s\n", info.Name, detail)
		}
	}
}
