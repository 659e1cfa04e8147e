package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"
	"github.com/warp/tracker/config"
	"github.com/warp/tracker/expenses"
	"github.com/warp/tracker/factory"
	"github.com/warp/tracker/generic"
	memstore "github.com/warp/tracker/generic/store"
	"github.com/warp/tracker/habits"
	"github.com/warp/tracker/store/mongo"
	"github.com/warp/tracker/store/sqlite"
	"github.com/warp/tracker/timetracking"
	"github.com/warp/tracker/todos"
)

// datastore is an opened backend plus how to release it.
type datastore struct {
	Store generic.DocumentStore
	close func() error
}

func (d datastore) Close() error {
	if d.close == nil {
		return nil
	}
	return d.close()
}

func openStore(ctx context.Context, cfg config.Config) (datastore, error) {
	switch cfg.DatastoreType {
	case config.DatastoreMemory:
		m := memstore.NewMemory()
		m.StrictIndexes = cfg.RequireIndexes
		return datastore{Store: m}, nil

	case config.DatastoreSQLite:
		if cfg.SQLitePath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
				return datastore{}, fmt.Errorf("create database directory: %w", err)
			}
		}
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return datastore{}, fmt.Errorf("failed to initialize database: %w", err)
		}
		s.RequireIndexes = cfg.RequireIndexes
		return datastore{Store: s, close: s.Close}, nil

	case config.DatastoreMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		s, err := mongo.New(connectCtx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return datastore{}, err
		}
		s.RequireIndexes = cfg.RequireIndexes
		for _, m := range mappings() {
			if err := s.EnsureOwnerIndex(connectCtx, m); err != nil {
				_ = s.Close(context.Background())
				return datastore{}, fmt.Errorf("create owner index on %s: %w", m.Collection, err)
			}
		}
		return datastore{Store: s, close: func() error { return s.Close(context.Background()) }}, nil

	default:
		return datastore{}, fmt.Errorf("unknown datastore type %q", cfg.DatastoreType)
	}
}

func mappings() []generic.Mapping {
	return []generic.Mapping{
		expenses.Mapping,
		habits.HabitMapping,
		habits.CompletionMapping,
		todos.Mapping,
		timetracking.Mapping,
	}
}

// builtinIndexes lists the composite indexes of every record type.
func builtinIndexes() []generic.IndexSpec {
	var specs []generic.IndexSpec
	specs = append(specs, expenses.Indexes()...)
	specs = append(specs, habits.Indexes()...)
	specs = append(specs, todos.Indexes()...)
	specs = append(specs, timetracking.Indexes()...)
	return specs
}

// indexSpecs returns the built-in indexes plus those of the manifest at
// path, deduplicated by name.
func indexSpecs(path string) ([]generic.IndexSpec, error) {
	specs := builtinIndexes()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read index manifest: %w", err)
		}
		extra, err := factory.NewIndexFactory(mappings()...).ParseManifest(data)
		if err != nil {
			return nil, err
		}
		specs = append(specs, extra...)
	}

	seen := make(map[string]bool, len(specs))
	out := specs[:0]
	for _, spec := range specs {
		if seen[spec.Name()] {
			continue
		}
		seen[spec.Name()] = true
		out = append(out, spec)
	}
	return out, nil
}

func indexesCommand() *cli.Command {
	var manifest string
	return &cli.Command{
		Name:  "indexes",
		Usage: "Print the index manifest the server provisions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "index-manifest",
				Sources:     cli.EnvVars("TRACKER_INDEX_MANIFEST"),
				Destination: &manifest,
				Usage:       "Additional JSON index manifest to merge",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			specs, err := indexSpecs(manifest)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(factory.NewIndexFactory(mappings()...).ToJSON(specs))
		},
	}
}
