// Package loader reads migration units from YAML files. The file format is
// the external authoring convention: the core engine only ever sees the
// ordered []*migrate.Unit this package produces.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/strata-db/strata/internal/logger"
	"github.com/strata-db/strata/internal/migrate"
)

type rawUnit struct {
	ID                 int64       `yaml:"id"`
	Description        string      `yaml:"description"`
	DestructiveAllowed bool        `yaml:"destructive_allowed"`
	Operations         []yaml.Node `yaml:"operations"`
}

// ParseUnit decodes a single unit document
func ParseUnit(data []byte) (*migrate.Unit, error) {
	var raw rawUnit
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse unit: %w", err)
	}

	unit := &migrate.Unit{
		ID:                 raw.ID,
		Description:        raw.Description,
		DestructiveAllowed: raw.DestructiveAllowed,
	}

	for idx, node := range raw.Operations {
		op, err := decodeOperation(&node)
		if err != nil {
			return nil, fmt.Errorf("unit %d operation %d: %w", raw.ID, idx, err)
		}
		unit.Operations = append(unit.Operations, op)
	}

	if err := unit.Validate(); err != nil {
		return nil, err
	}
	return unit, nil
}

func decodeOperation(node *yaml.Node) (migrate.Operation, error) {
	var tag struct {
		Kind string `yaml:"kind"`
	}
	if err := node.Decode(&tag); err != nil {
		return nil, fmt.Errorf("failed to read operation kind: %w", err)
	}

	var op migrate.Operation
	switch migrate.Kind(tag.Kind) {
	case migrate.KindEnsureTable:
		op = &migrate.EnsureTable{}
	case migrate.KindEnsureColumn:
		op = &migrate.EnsureColumn{}
	case migrate.KindAlterColumnType:
		op = &migrate.AlterColumnType{}
	case migrate.KindEnsureIndex:
		op = &migrate.EnsureIndex{}
	case migrate.KindEnsureForeignKey:
		op = &migrate.EnsureForeignKey{}
	case migrate.KindDropForeignKey:
		op = &migrate.DropForeignKey{}
	case migrate.KindBackfill:
		op = &migrate.Backfill{}
	case migrate.KindDynamicTypeColumn:
		op = &migrate.DynamicTypeColumn{}
	default:
		return nil, fmt.Errorf("unknown operation kind %q", tag.Kind)
	}

	if err := node.Decode(op); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", tag.Kind, err)
	}
	return op, nil
}

// LoadFile reads one unit file
func LoadFile(path string) (*migrate.Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read unit file: %w", err)
	}
	unit, err := ParseUnit(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return unit, nil
}

// LoadDir reads every *.yaml/*.yml unit in dir and returns them ordered by
// id. The id is the ordering key; file names are only a convention. Ids
// must be unique.
func LoadDir(dir string) ([]*migrate.Unit, error) {
	patterns := []string{"*.yaml", "*.yml"}
	var files []string
	for _, p := range patterns {
		matches, err := filepath.Glob(filepath.Join(dir, p))
		if err != nil {
			return nil, fmt.Errorf("failed to glob unit files: %w", err)
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	seen := make(map[int64]string)
	var units []*migrate.Unit
	for _, f := range files {
		unit, err := LoadFile(f)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[unit.ID]; dup {
			return nil, fmt.Errorf("%w: unit id %d declared in both %s and %s",
				migrate.ErrInvalidUnit, unit.ID, prev, filepath.Base(f))
		}
		seen[unit.ID] = filepath.Base(f)
		units = append(units, unit)
	}

	sort.Slice(units, func(i, j int) bool { return units[i].ID < units[j].ID })

	logger.CLI().Debug("units loaded", "dir", dir, "count", len(units))
	return units, nil
}

// FilterRange keeps units whose id falls in [from, to]; zero bounds are
// open ends
func FilterRange(units []*migrate.Unit, from, to int64) []*migrate.Unit {
	var out []*migrate.Unit
	for _, u := range units {
		if from > 0 && u.ID < from {
			continue
		}
		if to > 0 && u.ID > to {
			continue
		}
		out = append(out, u)
	}
	return out
}
