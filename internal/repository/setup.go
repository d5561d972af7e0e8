package repository

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	r "gopkg.in/rethinkdb/rethinkdb-go.v6"
)

// Indexes lists the secondary indexes SetupDatabase creates per table.
type Indexes map[string][]string

// Connect opens a session, retrying with a linear backoff.
func Connect(ctx context.Context, address, database string, maxRetries int, logger *zap.SugaredLogger) (*r.Session, error) {
	var err error
	for i := 1; i <= maxRetries; i++ {
		logger.Infow("Connecting to RethinkDB", "address", address, "attempt", i, "max", maxRetries)

		var session *r.Session
		session, err = r.Connect(r.ConnectOpts{
			Address:    address,
			Database:   database,
			MaxOpen:    20,
			InitialCap: 5,
			Timeout:    10 * time.Second,
		})
		if err == nil {
			if err = Ping(ctx, session); err == nil {
				return session, nil
			}
			_ = session.Close()
		}

		if i < maxRetries {
			wait := time.Duration(i) * 2 * time.Second
			logger.Warnw("Connection failed, retrying", "wait", wait, zap.Error(err))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
	}

	return nil, fmt.Errorf("failed to connect to RethinkDB after %d attempts: %w", maxRetries, err)
}

// Ping runs a trivial query against the server.
func Ping(ctx context.Context, session r.QueryExecutor) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	cursor, err := r.Expr(1).Run(session, r.RunOpts{Context: ctx})
	if err != nil {
		return fmt.Errorf("rethinkdb ping failed: %w", err)
	}
	return cursor.Close()
}

// SetupDatabase creates the database, the tables and their indexes when they
// do not exist yet.
func SetupDatabase(ctx context.Context, session r.QueryExecutor, dbName string, tables Indexes, logger *zap.SugaredLogger) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	runOpts := r.RunOpts{Context: ctx}

	dbs, err := list(r.DBList(), session, runOpts)
	if err != nil {
		return fmt.Errorf("failed to list databases: %w", err)
	}
	if !slices.Contains(dbs, dbName) {
		if _, err := r.DBCreate(dbName).RunWrite(session, runOpts); err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
		logger.Infow("Database created", "db", dbName)
	}

	existing, err := list(r.DB(dbName).TableList(), session, runOpts)
	if err != nil {
		return fmt.Errorf("failed to list tables: %w", err)
	}

	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, table := range names {
		if slices.Contains(existing, table) {
			continue
		}
		if _, err := r.DB(dbName).TableCreate(table).RunWrite(session, runOpts); err != nil {
			return fmt.Errorf("failed to create table %s: %w", table, err)
		}
		logger.Infow("Table created", "table", table)

		if err := createIndexes(session, dbName, table, tables[table], runOpts); err != nil {
			logger.Warnw("Failed to create indexes", "table", table, zap.Error(err))
		}
	}
	return nil
}

func createIndexes(session r.QueryExecutor, dbName, table string, indexes []string, runOpts r.RunOpts) error {
	for _, index := range indexes {
		_, err := r.DB(dbName).Table(table).IndexCreate(index).RunWrite(session, runOpts)
		if err != nil && !isIndexExistsError(err) {
			return fmt.Errorf("failed to create index %s: %w", index, err)
		}
	}

	cursor, err := r.DB(dbName).Table(table).IndexWait().Run(session, runOpts)
	if err != nil {
		return fmt.Errorf("failed to wait for indexes: %w", err)
	}
	return cursor.Close()
}

func list(term r.Term, session r.QueryExecutor, runOpts r.RunOpts) ([]string, error) {
	cursor, err := term.Run(session, runOpts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	var names []string
	if err := cursor.All(&names); err != nil {
		return nil, err
	}
	return names, nil
}

func isIndexExistsError(err error) bool {
	return strings.Contains(err.Error(), "already exists")
}
