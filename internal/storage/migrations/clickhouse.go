package migrations

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"

	chstore "mangrove-indexer/internal/storage/clickhouse"
)

// errUnsplittable is returned for migration files the statement splitter cannot cut safely.
var errUnsplittable = errors.New("migration not splittable")

// RunClickhouseMigrations creates the journal database named by dsn if needed and
// applies every embedded ClickHouse file to it. The returned connection targets that
// database and is handed to the journal writer.
func RunClickhouseMigrations(ctx context.Context, dsn string) (*chstore.Conn, error) {
	dbName, err := databaseFromDSN(dsn)
	if err != nil {
		return nil, err
	}
	if err := ensureDatabase(ctx, dsn, dbName); err != nil {
		return nil, err
	}

	conn, err := chstore.NewConnWithDatabase(ctx, dsn, dbName)
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse db: %w", err)
	}
	if err := applyClickhouseFiles(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// ensureDatabase connects without a database and creates dbName.
func ensureDatabase(ctx context.Context, dsn, dbName string) error {
	admin, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return fmt.Errorf("connect clickhouse admin: %w", err)
	}
	defer admin.Close()

	if err := admin.Exec(ctx, "CREATE DATABASE IF NOT EXISTS "+dbName); err != nil {
		return fmt.Errorf("create database %s: %w", dbName, err)
	}
	return nil
}

func applyClickhouseFiles(ctx context.Context, conn *chstore.Conn) error {
	files, err := sqlFiles(ClickhouseFS, "clickhouse")
	if err != nil {
		return fmt.Errorf("read embedded clickhouse migrations: %w", err)
	}

	for _, file := range files {
		data, err := fs.ReadFile(ClickhouseFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		stmts, err := splitClickhouse(string(data))
		if err != nil {
			return fmt.Errorf("migration %s: %w", file, err)
		}
		for i, stmt := range stmts {
			if err := conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration %s statement %d: %w", file, i+1, err)
			}
		}
	}
	return nil
}

// splitClickhouse cuts a migration file into single statements, since the native
// driver executes one statement per Exec. Full-line -- comments are dropped. Block
// comments and semicolons inside quoted literals are rejected.
func splitClickhouse(sql string) ([]string, error) {
	var (
		stmts   []string
		current strings.Builder
		quoted  bool
	)
	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			stmts = append(stmts, stmt)
		}
		current.Reset()
	}

	for n, line := range strings.Split(sql, "\n") {
		trimmed := strings.TrimSpace(line)
		if !quoted && (trimmed == "" || strings.HasPrefix(trimmed, "--")) {
			continue
		}
		if !quoted && strings.Contains(line, "/*") {
			return nil, fmt.Errorf("%w: block comment on line %d", errUnsplittable, n+1)
		}

		for _, r := range line {
			switch {
			case r == '\'':
				// A doubled quote toggles twice and stays inside the literal.
				quoted = !quoted
			case r == ';' && quoted:
				return nil, fmt.Errorf("%w: semicolon inside literal on line %d", errUnsplittable, n+1)
			case r == ';':
				flush()
				continue
			}
			current.WriteRune(r)
		}
		current.WriteByte('\n')
	}
	flush()
	return stmts, nil
}

func databaseFromDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	db := strings.TrimPrefix(u.Path, "/")
	if db == "" {
		return "", fmt.Errorf("clickhouse dsn missing database")
	}
	return db, nil
}
