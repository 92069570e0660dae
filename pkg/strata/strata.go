// Package strata is the embeddable entry point for the migration
// orchestrator. Applications that want to converge their own schema at
// startup use a Client instead of shelling out to the CLI.
package strata

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/strata-db/strata/internal/history"
	"github.com/strata-db/strata/internal/loader"
	"github.com/strata-db/strata/internal/migrate"
	"github.com/strata-db/strata/internal/pgconn"
)

// Config controls a Client
type Config struct {
	// DatabaseURL is the Postgres connection string
	DatabaseURL string
	// Schema scopes introspection and execution; defaults to public
	Schema string
	// UnitsDir holds the YAML migration unit files
	UnitsDir string
	// AllowDestructive authorizes destructive type changes for every
	// unit, equivalent to passing --allow-destructive on the CLI
	AllowDestructive bool
	// TrackHistory enables the run tracking table
	TrackHistory bool
	// HistoryTable overrides the tracking table name
	HistoryTable string
	// MaxConnections caps the connection pool; zero keeps the driver
	// default
	MaxConnections int
}

func NewConfig() *Config {
	return &Config{
		Schema:       "public",
		UnitsDir:     "./migrations",
		HistoryTable: history.DefaultTable,
	}
}

// Client plans and applies migration units over one database connection
type Client struct {
	config *Config
	db     *sqlx.DB
	engine *migrate.Engine
	store  *history.Store
}

// New connects to the database and returns a ready Client
func New(databaseURL string) (*Client, error) {
	config := NewConfig()
	config.DatabaseURL = databaseURL
	return NewWithConfig(config)
}

// NewWithConfig connects with explicit configuration
func NewWithConfig(config *Config) (*Client, error) {
	if config.DatabaseURL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	pool := pgconn.NewConfig(config.DatabaseURL)
	if config.MaxConnections > 0 {
		pool.MaxOpenConns = config.MaxConnections
	}
	db, err := pool.Connect(context.Background())
	if err != nil {
		return nil, err
	}

	engine := migrate.NewEngine(db)
	if config.Schema != "" {
		engine = engine.WithSchema(config.Schema)
	}

	client := &Client{
		config: config,
		db:     db,
		engine: engine,
	}
	if config.TrackHistory {
		client.store = history.NewStore(db).WithTable(config.HistoryTable)
	}
	return client, nil
}

// Ping verifies the database connection
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close releases the connection pool
func (c *Client) Close() error {
	return c.db.Close()
}

// Units loads the configured unit directory
func (c *Client) Units() ([]*migrate.Unit, error) {
	return loader.LoadDir(c.config.UnitsDir)
}

// Plan previews one unit without executing anything
func (c *Client) Plan(ctx context.Context, unit *migrate.Unit) (*migrate.Plan, error) {
	return c.engine.DryRun(ctx, unit)
}

// Apply executes one unit in its own transaction
func (c *Client) Apply(ctx context.Context, unit *migrate.Unit) (*migrate.ExecutionResult, error) {
	res, err := c.engine.Apply(ctx, unit, c.config.AllowDestructive)
	c.record(ctx, res)
	return res, err
}

// ApplyAll loads every unit and executes them in id order, stopping at
// the first failure
func (c *Client) ApplyAll(ctx context.Context) ([]*migrate.ExecutionResult, error) {
	units, err := c.Units()
	if err != nil {
		return nil, err
	}

	if c.store != nil {
		if err := c.store.EnsureTable(ctx); err != nil {
			return nil, err
		}
	}

	results, err := c.engine.ApplyAll(ctx, units, c.config.AllowDestructive)
	for _, res := range results {
		c.record(ctx, res)
	}
	return results, err
}

func (c *Client) record(ctx context.Context, res *migrate.ExecutionResult) {
	if c.store == nil || res == nil {
		return
	}
	// tracking is best effort; a failed insert never fails the run
	_ = c.store.EnsureTable(ctx)
	_ = c.store.Record(ctx, res)
}
