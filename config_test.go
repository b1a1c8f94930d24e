package sourcecoord

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/arloliu/sourcecoord/internal/logging"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.Empty(t, cfg.SourceIdentifier)
	require.Empty(t, cfg.OwnerID)
	require.Equal(t, 10*time.Minute, cfg.OwnershipTimeout)
	require.Equal(t, 1*time.Minute, cfg.LeaderTickInterval)
	require.Equal(t, 3*time.Minute, cfg.LeaderLeaseExtension)
	require.Equal(t, 10*time.Second, cfg.OperationTimeout)
	require.Zero(t, cfg.MaxClosedCount)
	require.Equal(t, "sourcecoord-items", cfg.KVBucket.Bucket)
	require.Equal(t, 1, cfg.KVBucket.Replicas)
	require.True(t, cfg.KVBucket.ReclaimExpiredLeases)
	require.Equal(t, "sourcecoord_partition_items", cfg.Postgres.Table)
}

func TestSetDefaults(t *testing.T) {
	t.Run("applies defaults to empty config", func(t *testing.T) {
		cfg := Config{}
		SetDefaults(&cfg)

		require.NotEmpty(t, cfg.OwnerID)
		require.Contains(t, cfg.OwnerID, ":")
		require.Equal(t, 10*time.Minute, cfg.OwnershipTimeout)
		require.Equal(t, 1*time.Minute, cfg.LeaderTickInterval)
		require.Equal(t, 3*time.Minute, cfg.LeaderLeaseExtension)
		require.Equal(t, 3*time.Minute, cfg.CompletionLookback)
		require.Equal(t, 10*time.Second, cfg.OperationTimeout)
		require.Equal(t, 100*time.Millisecond, cfg.IdlePollInterval)
		require.Equal(t, 5*time.Second, cfg.MaxIdlePollInterval)
		require.Equal(t, "sourcecoord-items", cfg.KVBucket.Bucket)
		require.Equal(t, "sourcecoord_partition_items", cfg.Postgres.Table)
	})

	t.Run("preserves custom values", func(t *testing.T) {
		cfg := Config{
			SourceIdentifier:     "orders",
			OwnerID:              "worker-7",
			OwnershipTimeout:     time.Minute,
			LeaderTickInterval:   5 * time.Second,
			LeaderLeaseExtension: 20 * time.Second,
			OperationTimeout:     2 * time.Second,
			MaxClosedCount:       4,
		}
		SetDefaults(&cfg)

		require.Equal(t, "worker-7", cfg.OwnerID)
		require.Equal(t, time.Minute, cfg.OwnershipTimeout)
		require.Equal(t, 5*time.Second, cfg.LeaderTickInterval)
		require.Equal(t, 20*time.Second, cfg.LeaderLeaseExtension)
		require.Equal(t, 2*time.Second, cfg.OperationTimeout)
		require.Equal(t, int64(4), cfg.MaxClosedCount)
		require.Equal(t, 20*time.Second, cfg.CompletionLookback)
	})

	t.Run("explicit completion lookback is kept", func(t *testing.T) {
		cfg := Config{CompletionLookback: time.Hour}
		SetDefaults(&cfg)
		require.Equal(t, time.Hour, cfg.CompletionLookback)
	})

	t.Run("owner IDs are unique", func(t *testing.T) {
		a, b := Config{}, Config{}
		SetDefaults(&a)
		SetDefaults(&b)
		require.NotEqual(t, a.OwnerID, b.OwnerID)
	})
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		cfg := DefaultConfig()
		cfg.SourceIdentifier = "orders"
		cfg.OwnerID = "worker-1"

		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing source identifier", func(c *Config) { c.SourceIdentifier = "" }, "SourceIdentifier must be set"},
		{"delimiter in source identifier", func(c *Config) { c.SourceIdentifier = "a|b" }, "must not contain"},
		{"missing owner", func(c *Config) { c.OwnerID = "" }, "OwnerID must be set"},
		{"zero ownership timeout", func(c *Config) { c.OwnershipTimeout = 0 }, "OwnershipTimeout must be > 0"},
		{"negative tick", func(c *Config) { c.LeaderTickInterval = -time.Second }, "LeaderTickInterval must be > 0"},
		{"zero operation timeout", func(c *Config) { c.OperationTimeout = 0 }, "OperationTimeout must be > 0"},
		{
			"lease extension not above tick",
			func(c *Config) {
				c.LeaderTickInterval = time.Minute
				c.LeaderLeaseExtension = time.Minute
			},
			"must be > LeaderTickInterval",
		},
		{"negative close limit", func(c *Config) { c.MaxClosedCount = -1 }, "MaxClosedCount must be >= 0"},
		{"zero idle poll", func(c *Config) { c.IdlePollInterval = 0 }, "IdlePollInterval must be > 0"},
		{
			"idle poll cap below base",
			func(c *Config) {
				c.IdlePollInterval = time.Second
				c.MaxIdlePollInterval = time.Millisecond
			},
			"MaxIdlePollInterval",
		},
		{"negative completion lookback", func(c *Config) { c.CompletionLookback = -time.Second }, "CompletionLookback must be >= 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidConfig)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

type recordingLogger struct {
	*logging.NopLogger
	warnings []string
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.warnings = append(l.warnings, msg)
}

func TestConfig_ValidateWithWarnings(t *testing.T) {
	t.Run("recommended values produce no warnings", func(t *testing.T) {
		logger := &recordingLogger{NopLogger: logging.NewNop()}
		cfg := DefaultConfig()
		cfg.ValidateWithWarnings(logger)
		require.Empty(t, logger.warnings)
	})

	t.Run("tight lease margin and slow operations warn", func(t *testing.T) {
		logger := &recordingLogger{NopLogger: logging.NewNop()}
		cfg := DefaultConfig()
		cfg.LeaderLeaseExtension = cfg.LeaderTickInterval + time.Second
		cfg.OperationTimeout = cfg.OwnershipTimeout
		cfg.ValidateWithWarnings(logger)
		require.Len(t, logger.warnings, 2)
	})
}

func TestTestConfig(t *testing.T) {
	cfg := TestConfig()
	cfg.SourceIdentifier = "test-source"
	SetDefaults(&cfg)

	require.NoError(t, cfg.Validate())
	require.Less(t, cfg.LeaderTickInterval, time.Second)
	require.True(t, cfg.KVBucket.MemoryStorage)
}

func TestParseConfig(t *testing.T) {
	t.Run("overlays yaml on defaults", func(t *testing.T) {
		data := `
sourceIdentifier: orders
ownerId: worker-3
ownershipTimeout: 5m
leaderTickInterval: 30s
leaderLeaseExtension: 2m
maxClosedCount: 5
kvBucket:
  bucket: orders-items
  replicas: 3
postgres:
  table: orders_items
`
		cfg, err := ParseConfig([]byte(data))
		require.NoError(t, err)

		require.Equal(t, "orders", cfg.SourceIdentifier)
		require.Equal(t, "worker-3", cfg.OwnerID)
		require.Equal(t, 5*time.Minute, cfg.OwnershipTimeout)
		require.Equal(t, 30*time.Second, cfg.LeaderTickInterval)
		require.Equal(t, 2*time.Minute, cfg.LeaderLeaseExtension)
		require.Equal(t, 10*time.Second, cfg.OperationTimeout)
		require.Equal(t, int64(5), cfg.MaxClosedCount)
		require.Equal(t, "orders-items", cfg.KVBucket.Bucket)
		require.Equal(t, 3, cfg.KVBucket.Replicas)
		require.True(t, cfg.KVBucket.ReclaimExpiredLeases)
		require.Equal(t, "orders_items", cfg.Postgres.Table)
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		_, err := ParseConfig([]byte("sourceIdentifier: a|b\n"))
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("rejects malformed yaml", func(t *testing.T) {
		_, err := ParseConfig([]byte("ownershipTimeout: [\n"))
		require.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("rejects malformed durations", func(t *testing.T) {
		_, err := ParseConfig([]byte("sourceIdentifier: orders\nownershipTimeout: soon\n"))
		require.Error(t, err)
	})
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "coord.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sourceIdentifier: orders\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "orders", cfg.SourceIdentifier)
	require.NotEmpty(t, cfg.OwnerID)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestConfig_YAMLRoundTrip(t *testing.T) {
	cfg := TestConfig()
	cfg.SourceIdentifier = "orders"
	cfg.OwnerID = "worker-1"

	data, err := yaml.Marshal(&cfg)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(data), "sourceIdentifier: orders"))

	parsed, err := ParseConfig(data)
	require.NoError(t, err)
	require.Equal(t, cfg, parsed)
}
