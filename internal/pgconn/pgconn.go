// Package pgconn holds Postgres connection helpers shared by the CLI
// and the embeddable client.
package pgconn

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/strata-db/strata/internal/logger"
)

// Config controls the connection pool
type Config struct {
	URL             string
	ConnMaxLifetime time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
}

func NewConfig(url string) *Config {
	return &Config{
		URL:             url,
		ConnMaxLifetime: 10 * time.Minute,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
	}
}

// Connect opens and pings a pooled connection
func (cfg *Config) Connect(ctx context.Context) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// EnsureDatabaseExists creates the target database when missing. It
// connects to the postgres maintenance database on the same server.
func EnsureDatabaseExists(ctx context.Context, dsn string) error {
	dbName, adminDSN, err := splitTargetDatabase(dsn)
	if err != nil {
		return fmt.Errorf("failed to parse DSN: %w", err)
	}

	admin, err := sqlx.Open("postgres", adminDSN)
	if err != nil {
		return fmt.Errorf("failed to connect to maintenance database: %w", err)
	}
	defer admin.Close()

	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)`
	if err := admin.GetContext(ctx, &exists, query, dbName); err != nil {
		return fmt.Errorf("failed to check database existence: %w", err)
	}
	if exists {
		return nil
	}

	logger.DB().Info("creating database", "name", dbName)
	createSQL := fmt.Sprintf("CREATE DATABASE %s", quoteIdentifier(dbName))
	if _, err := admin.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create database %q: %w", dbName, err)
	}
	return nil
}

// splitTargetDatabase extracts the database name from a URL or keyword
// DSN and returns a DSN pointing at the postgres maintenance database
func splitTargetDatabase(dsn string) (dbName, adminDSN string, err error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("invalid database URL: %w", err)
		}
		dbName = strings.TrimPrefix(u.Path, "/")
		if dbName == "" {
			return "", "", fmt.Errorf("no database name in URL")
		}
		u.Path = "/postgres"
		return dbName, u.String(), nil
	}

	var adminParts []string
	for _, kv := range strings.Fields(dsn) {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			continue
		}
		if parts[0] == "dbname" {
			dbName = parts[1]
			adminParts = append(adminParts, "dbname=postgres")
		} else {
			adminParts = append(adminParts, kv)
		}
	}
	if dbName == "" {
		return "", "", fmt.Errorf("no database name found in DSN")
	}
	return dbName, strings.Join(adminParts, " "), nil
}

func quoteIdentifier(name string) string {
	return fmt.Sprintf(`"%s"`, strings.ReplaceAll(name, `"`, `""`))
}

// BuildURL assembles a connection URL from components
func BuildURL(host, port, user, password, dbname, sslmode string) string {
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		user, url.QueryEscape(password), host, port, dbname, sslmode)
}
