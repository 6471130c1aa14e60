package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/jackc/pgx/v5/pgxpool"

	_ "github.com/golang-migrate/migrate/v4/database/neo4j"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/offshore-atlas/backend/internal/util"
	"github.com/offshore-atlas/backend/pkg/logger"
	"github.com/offshore-atlas/backend/pkg/store"
	"github.com/offshore-atlas/backend/pkg/store/memory"
	neo4jstore "github.com/offshore-atlas/backend/pkg/store/neo4j"
	pgxstore "github.com/offshore-atlas/backend/pkg/store/pgx"
)

// NewGraphStore builds the graph backend selected by STORE_BACKEND
// (neo4j, postgres or memory; neo4j is the default) and runs its pending
// migrations. The returned cleanup closes the underlying connections.
func NewGraphStore(ctx context.Context) (store.Graph, func(), error) {
	backend := util.GetEnvString("STORE_BACKEND", "neo4j")

	switch backend {
	case "memory":
		return memory.NewStore(), func() {}, nil

	case "postgres":
		dbURL := util.GetEnv("DATABASE_URL")
		runMigrations("file://migrations/postgres", dbURL)

		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		st, err := pgxstore.NewStore(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return st, pool.Close, nil

	case "neo4j":
		uri := util.GetEnv("NEO4J_URI")
		user := util.GetEnv("NEO4J_USER")
		pass := util.GetEnv("NEO4J_PASSWORD")
		runMigrations("file://migrations/neo4j", migrateNeo4jURL(uri, user, pass))

		st, err := neo4jstore.NewStore(ctx, neo4jstore.Config{
			URI:      uri,
			Username: user,
			Password: pass,
			Database: util.GetEnvString("NEO4J_DATABASE", "neo4j"),
		})
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			if err := st.Close(context.Background()); err != nil {
				logger.Error("Failed to close neo4j driver", "err", err)
			}
		}
		return st, cleanup, nil
	}

	return nil, nil, fmt.Errorf("unknown STORE_BACKEND %q", backend)
}

func runMigrations(sourceURL, dbURL string) {
	m, err := migrate.New(sourceURL, dbURL)
	if err != nil {
		logger.Error("Failed to initialize migrations", "source", sourceURL, "err", err)
		return
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.Fatal("Failed to apply migrations", "source", sourceURL, "err", err)
	}
}

// migrateNeo4jURL rewrites a bolt/neo4j driver URI into the form the
// migration tool expects, carrying the credentials inline.
func migrateNeo4jURL(uri, user, pass string) string {
	host := uri
	for _, scheme := range []string{"neo4j://", "bolt://", "neo4j+s://", "bolt+s://"} {
		if len(uri) > len(scheme) && uri[:len(scheme)] == scheme {
			host = uri[len(scheme):]
			break
		}
	}
	return fmt.Sprintf("neo4j://%s:%s@%s?x-multi-statement=true", user, pass, host)
}
