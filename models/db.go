package models

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var db *sql.DB

// Initialize opens the database and applies pending migrations.
func Initialize(dataDirectory string) error {
	return InitializeWithMigration(dataDirectory, true)
}

// InitializeWithMigration opens <dataDirectory>/vitrine.db. When migrate is
// true all pending migrations are applied.
func InitializeWithMigration(dataDirectory string, migrate bool) error {
	if err := os.MkdirAll(dataDirectory, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDirectory, "vitrine.db")
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)&_pragma=foreign_keys(1)", dbPath)

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	db = conn

	log.Debugf("Using '%s' as the database location", dbPath)

	if migrate {
		if err := MigrateUp(0); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection
func Close() error {
	if db == nil {
		return nil
	}
	err := db.Close()
	db = nil
	return err
}

// PingDB checks that the database is reachable
func PingDB() error {
	if db == nil {
		return fmt.Errorf("database not initialized")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

type migration struct {
	version int
	name    string
	up      string
	down    string
}

func loadMigrations() ([]migration, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, err
	}

	byVersion := make(map[int]*migration)
	for _, entry := range entries {
		name := entry.Name()
		prefix, rest, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("invalid migration file name %s", name)
		}
		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, err
		}

		m := byVersion[version]
		if m == nil {
			m = &migration{version: version}
			byVersion[version] = m
		}
		switch {
		case strings.HasSuffix(rest, ".up.sql"):
			m.name = strings.TrimSuffix(rest, ".up.sql")
			m.up = string(content)
		case strings.HasSuffix(rest, ".down.sql"):
			m.down = string(content)
		}
	}

	migrations := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].version < migrations[j].version })
	return migrations, nil
}

func ensureMigrationTable() error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`)
	return err
}

// CurrentVersion returns the highest applied migration version
func CurrentVersion() (int, error) {
	if err := ensureMigrationTable(); err != nil {
		return 0, err
	}
	var version sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&version); err != nil {
		return 0, err
	}
	return int(version.Int64), nil
}

// MigrateUp applies migrations up to target. A target of 0 applies all.
func MigrateUp(target int) error {
	migrations, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	current, err := CurrentVersion()
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current || (target > 0 && m.version > target) {
			continue
		}
		if err := applyMigration(m.version, m.up, true); err != nil {
			return fmt.Errorf("migration %04d_%s failed: %w", m.version, m.name, err)
		}
		log.Infof("Applied migration %04d_%s", m.version, m.name)
	}
	return nil
}

// MigrateDown rolls back migrations above target. A target of 0 rolls back all.
func MigrateDown(target int) error {
	migrations, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	current, err := CurrentVersion()
	if err != nil {
		return fmt.Errorf("failed to read migration version: %w", err)
	}

	for i := len(migrations) - 1; i >= 0; i-- {
		m := migrations[i]
		if m.version > current || m.version <= target {
			continue
		}
		if m.down == "" {
			return fmt.Errorf("migration %04d_%s has no down script", m.version, m.name)
		}
		if err := applyMigration(m.version, m.down, false); err != nil {
			return fmt.Errorf("rollback %04d_%s failed: %w", m.version, m.name, err)
		}
		log.Infof("Rolled back migration %04d_%s", m.version, m.name)
	}
	return nil
}

func applyMigration(version int, script string, up bool) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(script); err != nil {
		return err
	}
	if up {
		_, err = tx.Exec(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`, version, time.Now().Unix())
	} else {
		_, err = tx.Exec(`DELETE FROM schema_migrations WHERE version = ?`, version)
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}
