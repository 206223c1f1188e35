package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"figmant/internal/auth"
	"figmant/internal/config"
	"figmant/internal/domain"
	"figmant/internal/repository/postgres"
	"figmant/internal/service/analysis/templates"
)

func main() {
	// Parse command-line flags
	dropTables := flag.Bool("drop-tables", false, "Drop all tables before seeding (fresh start)")
	seedTemplates := flag.Bool("templates", false, "Insert the built-in prompt templates")
	ownerEmail := flag.String("owner-email", "", "Create or promote this account to owner")
	ownerPassword := flag.String("owner-password", "", "Password for a newly created owner account")
	flag.Parse()

	// Load .env file
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()

	// SAFETY: Prevent destructive operations in production
	if cfg.Environment == "prod" && *dropTables {
		log.Fatalf("🚫 BLOCKED: Cannot run --drop-tables in production environment")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	log.Printf("🌱 Seeding database (environment: %s, prefix: %s)", cfg.Environment, cfg.TablePrefix)

	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.SupabaseDBURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	tables := postgres.NewTableNames(cfg.TablePrefix)

	if *dropTables {
		log.Println("🗑️  Dropping all tables...")
		if err := postgres.DropTables(ctx, pool, tables); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		log.Println("✅ Tables dropped")
	}

	log.Println("📋 Ensuring database schema is up to date...")
	if err := postgres.EnsureSchema(ctx, pool, tables, cfg.TablePrefix); err != nil {
		log.Fatalf("Failed to run schema: %v", err)
	}
	log.Println("✅ Schema ready")

	if *seedTemplates {
		builtins, err := templates.LoadBuiltins()
		if err != nil {
			log.Fatalf("Failed to load built-in templates: %v", err)
		}

		repo := postgres.NewTemplateRepository(&postgres.RepositoryConfig{
			Pool:   pool,
			Tables: tables,
			Logger: logger,
		})

		inserted := 0
		for i := range builtins {
			tmpl := builtins[i].Clone()
			if err := repo.Create(ctx, &tmpl); err != nil {
				if errors.Is(err, domain.ErrConflict) {
					log.Printf("  ↷ %s already present", tmpl.ID)
					continue
				}
				log.Fatalf("Failed to insert template %s: %v", tmpl.ID, err)
			}
			inserted++
			log.Printf("  ✓ %s", tmpl.Title)
		}
		log.Printf("✅ Templates seeded (%d new, %d total)", inserted, len(builtins))
	}

	if *ownerEmail != "" {
		if cfg.SupabaseURL == "" || cfg.SupabaseKey == "" {
			log.Fatalf("SUPABASE_URL and SUPABASE_KEY are required to provision the owner")
		}
		admin := auth.NewAdminClient(cfg.SupabaseURL, cfg.SupabaseKey)
		userID, err := admin.EnsureOwner(ctx, *ownerEmail, *ownerPassword)
		if err != nil {
			log.Fatalf("Failed to provision owner: %v", err)
		}
		log.Printf("✅ Owner ready: %s (%s)", *ownerEmail, userID)
	}

	log.Println("🎉 Seed complete")
}
