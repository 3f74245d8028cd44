package config

import (
    "os"
    "path/filepath"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func TestLoadSQLiteDefaults(t *testing.T) {
    t.Setenv("DB_DRIVER", "sqlite3")
    t.Setenv("JWT_SECRET", "s3cret")
    t.Setenv("DB_PATH", "")
    t.Setenv("RETURN_POLICY", "")

    cfg, err := Load()
    require.NoError(t, err)
    assert.Equal(t, DriverSQLite, cfg.DBDriver)
    assert.Equal(t, "library.db", cfg.DBPath)
    assert.Equal(t, "strict", cfg.ReturnPolicy)
    assert.Equal(t, 15, cfg.AccessTTLMin)
    assert.Equal(t, "logs/loans.log", cfg.LoanLogPath)
}

func TestLoadReportsAllMissingKeys(t *testing.T) {
    t.Setenv("DB_DRIVER", "mysql")
    t.Setenv("JWT_SECRET", "")
    t.Setenv("DB_USER", "")
    t.Setenv("DB_HOST", "")
    t.Setenv("DB_NAME", "")

    _, err := Load()
    require.Error(t, err)
    for _, key := range []string{"JWT_SECRET", "DB_USER", "DB_HOST", "DB_NAME"} {
        assert.Contains(t, err.Error(), key)
    }
}

func TestLoadRejectsUnknownPolicyAndDriver(t *testing.T) {
    t.Setenv("JWT_SECRET", "x")
    t.Setenv("DB_DRIVER", "oracle")
    t.Setenv("RETURN_POLICY", "whatever")

    _, err := Load()
    require.Error(t, err)
    assert.Contains(t, err.Error(), "DB_DRIVER")
    assert.Contains(t, err.Error(), "RETURN_POLICY")
}

func TestLoadEnvFileDoesNotOverride(t *testing.T) {
    path := filepath.Join(t.TempDir(), ".env")
    require.NoError(t, os.WriteFile(path, []byte("LIB_TEST_A=fromfile\nLIB_TEST_B=fromfile\n"), 0o644))
    t.Setenv("LIB_TEST_A", "fromenv")
    t.Setenv("LIB_TEST_B", "")
    require.NoError(t, os.Unsetenv("LIB_TEST_B"))

    require.NoError(t, LoadEnvFile(path))
    assert.Equal(t, "fromenv", os.Getenv("LIB_TEST_A"))
    assert.Equal(t, "fromfile", os.Getenv("LIB_TEST_B"))

    assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
}

func TestRateLimitClamps(t *testing.T) {
    t.Setenv("RATE_LIMIT_CAPACITY", "0")
    t.Setenv("RATE_LIMIT_REFILL_EVERY", "2s")
    t.Setenv("RATE_LIMIT_TTL", "1s")

    rl := LoadRateLimitConfig()
    assert.Equal(t, 1, rl.Capacity)
    assert.Equal(t, 1, rl.RefillTokens)
    assert.Equal(t, 2*time.Second, rl.RefillInterval)
    assert.Equal(t, 10*time.Second, rl.TTL)
}

func TestCacheMethodsParsed(t *testing.T) {
    t.Setenv("CACHE_METHODS", "get, head ,")
    cc := LoadCacheConfig()
    assert.Equal(t, map[string]bool{"GET": true, "HEAD": true}, cc.Methods)
}
