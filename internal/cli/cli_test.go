package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/library-loans/internal/config"
)

func TestDSNPerDriver(t *testing.T) {
	assert.Equal(t, "postgres://x", dsn(config.Config{DBDriver: config.DriverPgx, DBDSN: "postgres://x"}))
	assert.Contains(t, dsn(config.Config{DBDriver: config.DriverSQLite, DBPath: "lib.db"}), "file:lib.db?")
	assert.Equal(t, "u:p@tcp(h:3306)/n?charset=utf8mb4&parseTime=true&loc=UTC",
		dsn(config.Config{DBDriver: config.DriverMySQL, DBUser: "u", DBPass: "p", DBHost: "h", DBPort: "3306", DBName: "n"}))
}

func TestValidateNewUser(t *testing.T) {
	assert.NoError(t, validateNewUser("root", "pw", "admin"))
	err := validateNewUser("", "", "owner")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--username")
	assert.Contains(t, err.Error(), "--password")
	assert.Contains(t, err.Error(), "--role")
}

func TestInitdbThenAdduser(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DB_DRIVER", "sqlite3")
	t.Setenv("DB_PATH", filepath.Join(dir, "lib.db"))
	t.Setenv("JWT_SECRET", "x")
	t.Setenv("BCRYPT_COST", "4")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("RETURN_POLICY", "")

	missingEnv := filepath.Join(dir, "none.env")
	rootCmd.SetArgs([]string{"--env-file", missingEnv, "initdb"})
	require.NoError(t, rootCmd.Execute())

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--env-file", missingEnv, "adduser", "--username", "root", "--password", "pw", "--role", "admin"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), `created admin user "root"`)

	rootCmd.SetArgs([]string{"--env-file", missingEnv, "adduser", "--username", "root", "--password", "pw"})
	assert.Error(t, rootCmd.Execute())
}
