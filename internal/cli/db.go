package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/strata-db/strata/internal/loader"
	"github.com/strata-db/strata/internal/migrate"
	"github.com/strata-db/strata/internal/pgconn"
)

func resolveDatabaseURL() (string, error) {
	if databaseURL != "" {
		return databaseURL, nil
	}
	if env := os.Getenv("DATABASE_URL"); env != "" {
		return env, nil
	}
	if strataConfig != nil && strataConfig.Database.User != "" && strataConfig.Database.Name != "" {
		db := strataConfig.Database
		return pgconn.BuildURL(db.Host, db.Port, db.User, db.Password, db.Name, db.SSLMode), nil
	}
	return "", fmt.Errorf("database connection required: use --url, DATABASE_URL, or strata.yaml")
}

func connect(ctx context.Context) (*sqlx.DB, error) {
	dsn, err := resolveDatabaseURL()
	if err != nil {
		return nil, err
	}

	cfg := pgconn.NewConfig(dsn)
	if strataConfig != nil {
		cfg.MaxOpenConns = strataConfig.Database.MaxConnections
	}
	return cfg.Connect(ctx)
}

func newEngine(db *sqlx.DB) *migrate.Engine {
	engine := migrate.NewEngine(db)
	if strataConfig != nil && strataConfig.Database.Schema != "" {
		engine = engine.WithSchema(strataConfig.Database.Schema)
	}
	return engine
}

func loadUnits(rangeSpec string) ([]*migrate.Unit, error) {
	units, err := loader.LoadDir(unitsDir)
	if err != nil {
		return nil, err
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("no migration units found in %s", unitsDir)
	}

	if rangeSpec == "" {
		return units, nil
	}
	from, to, err := parseRange(rangeSpec)
	if err != nil {
		return nil, err
	}
	units = loader.FilterRange(units, from, to)
	if len(units) == 0 {
		return nil, fmt.Errorf("no units match range %s", rangeSpec)
	}
	return units, nil
}

// parseRange accepts "N", "N..M", "N.." and "..M"
func parseRange(spec string) (int64, int64, error) {
	if !strings.Contains(spec, "..") {
		id, err := strconv.ParseInt(spec, 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid unit range %q", spec)
		}
		return id, id, nil
	}

	parts := strings.SplitN(spec, "..", 2)
	var from, to int64
	var err error
	if parts[0] != "" {
		if from, err = strconv.ParseInt(parts[0], 10, 64); err != nil {
			return 0, 0, fmt.Errorf("invalid unit range %q", spec)
		}
	}
	if parts[1] != "" {
		if to, err = strconv.ParseInt(parts[1], 10, 64); err != nil {
			return 0, 0, fmt.Errorf("invalid unit range %q", spec)
		}
	}
	if from > 0 && to > 0 && from > to {
		return 0, 0, fmt.Errorf("invalid unit range %q: lower bound above upper", spec)
	}
	return from, to, nil
}
