package shared

import (
	"testing"
)

func TestMigrationRunner(t *testing.T) {
	t.Run("loadMigrations", func(t *testing.T) {
		migrations, err := loadMigrations()
		if err != nil {
			t.Fatalf("failed to load migrations: %v", err)
		}

		if len(migrations) < 2 {
			t.Fatalf("expected at least two migrations, got %d", len(migrations))
		}

		for i := 1; i < len(migrations); i++ {
			if migrations[i].Version <= migrations[i-1].Version {
				t.Errorf("migrations not sorted: version %d comes after %d", migrations[i].Version, migrations[i-1].Version)
			}
		}
	})

	t.Run("RunMigrations And Rollback", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()
		ConfigureDatabase(db, 1, 1)

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}

		if _, err := db.Exec("SELECT 1 FROM analysis_details LIMIT 1"); err != nil {
			t.Errorf("analysis_details table should exist after migrations: %v", err)
		}

		// second run is a no-op
		if err := RunMigrations(db); err != nil {
			t.Fatalf("re-running migrations should succeed: %v", err)
		}

		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
			t.Fatalf("failed to query schema_migrations: %v", err)
		}
		migrations, _ := loadMigrations()
		if count != len(migrations) {
			t.Errorf("expected %d applied migrations, got %d", len(migrations), count)
		}

		for range migrations {
			if err := RollbackMigration(db); err != nil {
				t.Fatalf("failed to rollback migration: %v", err)
			}
		}

		if _, err := db.Exec("SELECT 1 FROM analysis_details LIMIT 1"); err == nil {
			t.Error("analysis_details table should be gone after full rollback")
		}

		if err := RollbackMigration(db); err == nil {
			t.Error("expected error when nothing is left to roll back")
		}
	})

	t.Run("stripComments", func(t *testing.T) {
		got := stripComments("-- heading\nSELECT 1; -- trailing\n\n")
		if got != "SELECT 1;" {
			t.Errorf("unexpected result %q", got)
		}
	})
}
