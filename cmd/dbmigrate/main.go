package main

import (
	"flag"
	"fmt"
	"log"

	"tg-poster/internal/config"
	"tg-poster/internal/models"
	"tg-poster/internal/storage"

	"gorm.io/gorm"
)

// allModels lists every table in dependency order; drops run in reverse.
var allModels = []interface{}{
	&models.Channel{},
	&models.ChannelAdmin{},
	&models.Post{},
	&models.PostMedia{},
	&models.PostButton{},
	&models.PostHiddenPart{},
	&models.PostTarget{},
	&models.ReplyTarget{},
	&models.PostEvent{},
}

func main() {
	// Define command line flags
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	action := flag.String("action", "migrate", "Action to perform (migrate, reset, status)")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize database connection
	if err := storage.Initialize(cfg); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	db := storage.GetDB()
	if db == nil {
		log.Fatalf("Failed to get database connection")
	}

	// Perform requested action
	switch *action {
	case "migrate":
		if err := migrateDatabase(db); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Migration completed successfully")
	case "reset":
		if err := resetDatabase(db); err != nil {
			log.Fatalf("Reset failed: %v", err)
		}
		log.Println("Database reset completed successfully")
	case "status":
		if err := checkStatus(db); err != nil {
			log.Fatalf("Status check failed: %v", err)
		}
	default:
		log.Fatalf("Unknown action: %s", *action)
	}
}

// migrateDatabase performs database migration
func migrateDatabase(db *gorm.DB) error {
	fmt.Println("Migrating database...")

	for _, model := range allModels {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate %T: %w", model, err)
		}
	}
	return nil
}

// resetDatabase drops tables and recreates them
func resetDatabase(db *gorm.DB) error {
	fmt.Println("Resetting database...")

	// Confirm reset operation
	fmt.Print("WARNING: This will delete all data! Are you sure? (y/N): ")
	var confirmation string
	fmt.Scanln(&confirmation)

	if confirmation != "y" && confirmation != "Y" {
		return fmt.Errorf("operation cancelled by user")
	}

	// Drop tables in reverse order to avoid foreign key constraints
	for i := len(allModels) - 1; i >= 0; i-- {
		if err := db.Migrator().DropTable(allModels[i]); err != nil {
			return fmt.Errorf("failed to drop table for %T: %w", allModels[i], err)
		}
	}

	// Recreate tables
	return migrateDatabase(db)
}

// checkStatus checks the database status
func checkStatus(db *gorm.DB) error {
	fmt.Println("Checking database status...")

	for _, model := range allModels {
		if db.Migrator().HasTable(model) {
			var count int64
			db.Model(model).Count(&count)
			fmt.Printf("✅ %T table exists, %d records\n", model, count)
		} else {
			fmt.Printf("❌ %T table does not exist\n", model)
		}
	}

	return nil
}
