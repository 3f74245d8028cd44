package database

import (
	"bufio"
	"context"
	"embed"
	"fmt"
	"os"
	"strings"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// DefaultSchema returns the bundled schema script for driver.
func DefaultSchema(driver string) (string, error) {
	var name string
	switch driver {
	case DriverMySQL:
		name = "schema/mysql.sql"
	case DriverSQLite:
		name = "schema/sqlite.sql"
	case DriverPgx:
		name = "schema/postgres.sql"
	default:
		return "", fmt.Errorf("no schema for driver %q", driver)
	}
	b, err := schemaFS.ReadFile(name)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// LoadSchemaFile reads a schema script from disk.
func LoadSchemaFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read schema %s: %w", path, err)
	}
	return string(b), nil
}

// ApplySchema executes every statement of script in order.  Statements are
// separated by semicolons and `--` line comments are ignored.  It is the
// explicit bootstrap step; the server never applies the schema on its own.
func ApplySchema(ctx context.Context, db *DB, script string) error {
	stmts, err := SplitStatements(script)
	if err != nil {
		return err
	}
	for i, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}

// maxSchemaLine bounds a single line of a schema script.
const maxSchemaLine = 1 << 20

// SplitStatements breaks a SQL script into individual statements.  A script
// that cannot be read line by line is rejected as a whole.
func SplitStatements(script string) ([]string, error) {
	var b strings.Builder
	sc := bufio.NewScanner(strings.NewReader(script))
	sc.Buffer(make([]byte, 0, 64*1024), maxSchemaLine)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read schema script: %w", err)
	}
	var out []string
	for _, part := range strings.Split(b.String(), ";") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}
