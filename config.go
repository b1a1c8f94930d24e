package sourcecoord

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/arloliu/sourcecoord/store/natskv"
	"github.com/arloliu/sourcecoord/store/postgres"
	"github.com/arloliu/sourcecoord/types"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// ============================================================================
// Lease Timing
// ============================================================================
//
// Ownership is a lease, not a lock. Three durations interact:
//
//	OwnershipTimeout      lease granted to a worker when it acquires a partition
//	LeaderTickInterval    how often every worker contends for the leader partition
//	LeaderLeaseExtension  lease renewal written by the leader after each tick
//
// The leader renews its lease once per tick, so LeaderLeaseExtension must
// exceed LeaderTickInterval or leadership lapses between ticks. A margin of
// at least 2x absorbs a slow discovery call and modest clock skew.
//
// Clock skew between workers directly shortens or lengthens effective leases.
// Under enough skew a stalled leader's lease can be reclaimed while it still
// runs, causing a brief double discovery. Idempotent creation keeps that
// harmless, but conservative margins keep it rare.
//
// Completions are stamped with the completing worker's clock while the leader
// reads them relative to its own. CompletionLookback widens every completed
// query by that much and must exceed the worst expected skew.
//
// ============================================================================

// Config is the configuration for a Coordinator.
//
// All duration fields accept standard Go duration strings like "30s", "5m", "1h".
type Config struct {
	// SourceIdentifier names the source (e.g., "orders-table-export"). Partition
	// items are stored under "<SourceIdentifier>|<partitionType>".
	// Must not contain "|".
	SourceIdentifier string `yaml:"sourceIdentifier"`

	// OwnerID identifies this worker in partition leases.
	// Default: "<hostname>:<random uuid>"
	OwnerID string `yaml:"ownerId"`

	// OwnershipTimeout is the lease granted when a partition is acquired.
	// Workers must save progress more often than this to keep ownership.
	// Recommended: 10 minutes.
	OwnershipTimeout time.Duration `yaml:"ownershipTimeout"`

	// LeaderTickInterval is the leader scheduler tick period.
	// Recommended: 1 minute.
	LeaderTickInterval time.Duration `yaml:"leaderTickInterval"`

	// LeaderLeaseExtension is the lease written by the leader after each successful tick.
	// Must be greater than LeaderTickInterval.
	// Recommended: 3x LeaderTickInterval.
	LeaderLeaseExtension time.Duration `yaml:"leaderLeaseExtension"`

	// CompletionLookback is subtracted from the leader's last checked time when
	// querying completed partitions. Completions seen twice are absorbed by
	// idempotent creation.
	// Default: LeaderLeaseExtension
	CompletionLookback time.Duration `yaml:"completionLookback"`

	// IdlePollInterval is the first delay WaitForPartition sleeps after an empty acquire.
	// Default: 100ms
	IdlePollInterval time.Duration `yaml:"idlePollInterval"`

	// MaxIdlePollInterval caps the jittered idle poll delay.
	// Default: 5s
	MaxIdlePollInterval time.Duration `yaml:"maxIdlePollInterval"`

	// OperationTimeout bounds every individual store call made by the coordinator.
	// Recommended: 10 seconds.
	OperationTimeout time.Duration `yaml:"operationTimeout"`

	// MaxClosedCount is the default close limit used by ClosePartition when the
	// caller passes 0. 0 means unlimited.
	MaxClosedCount int64 `yaml:"maxClosedCount"`

	// KVBucket configures the NATS JetStream KV backend.
	KVBucket natskv.Config `yaml:"kvBucket"`

	// Postgres configures the PostgreSQL backend.
	Postgres postgres.Config `yaml:"postgres"`
}

// DefaultConfig returns a Config with sensible defaults.
//
// SourceIdentifier and OwnerID are left empty; SetDefaults generates OwnerID.
//
// Returns:
//   - Config: Configuration with default values
func DefaultConfig() Config {
	return Config{
		OwnershipTimeout:     10 * time.Minute,
		LeaderTickInterval:   1 * time.Minute,
		LeaderLeaseExtension: 3 * time.Minute,
		OperationTimeout:     10 * time.Second,
		IdlePollInterval:     100 * time.Millisecond,
		MaxIdlePollInterval:  5 * time.Second,
		KVBucket:             natskv.DefaultConfig(),
		Postgres:             postgres.DefaultConfig(),
	}
}

// SetDefaults fills in missing configuration values with production defaults.
//
// Parameters:
//   - cfg: Config to apply defaults to (modified in place)
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.OwnerID == "" {
		cfg.OwnerID = generateOwnerID()
	}
	if cfg.OwnershipTimeout == 0 {
		cfg.OwnershipTimeout = defaults.OwnershipTimeout
	}
	if cfg.LeaderTickInterval == 0 {
		cfg.LeaderTickInterval = defaults.LeaderTickInterval
	}
	if cfg.LeaderLeaseExtension == 0 {
		cfg.LeaderLeaseExtension = defaults.LeaderLeaseExtension
	}
	if cfg.CompletionLookback == 0 {
		cfg.CompletionLookback = cfg.LeaderLeaseExtension
	}
	if cfg.OperationTimeout == 0 {
		cfg.OperationTimeout = defaults.OperationTimeout
	}
	if cfg.IdlePollInterval == 0 {
		cfg.IdlePollInterval = defaults.IdlePollInterval
	}
	if cfg.MaxIdlePollInterval == 0 {
		cfg.MaxIdlePollInterval = defaults.MaxIdlePollInterval
	}
	if cfg.KVBucket.Bucket == "" {
		cfg.KVBucket.Bucket = defaults.KVBucket.Bucket
	}
	if cfg.KVBucket.Replicas == 0 {
		cfg.KVBucket.Replicas = defaults.KVBucket.Replicas
	}
	if cfg.KVBucket.CreateRetries == 0 {
		cfg.KVBucket.CreateRetries = defaults.KVBucket.CreateRetries
	}
	if cfg.Postgres.Table == "" {
		cfg.Postgres.Table = defaults.Postgres.Table
	}
	// ReclaimExpiredLeases and MaxClosedCount have meaningful zero values.
}

func generateOwnerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}

	return host + ":" + uuid.NewString()
}

// Validate checks configuration constraints and returns error for invalid values.
//
// Hard Validation Rules:
//   - SourceIdentifier is set and contains no "|"
//   - OwnerID is set
//   - All durations > 0
//   - LeaderLeaseExtension > LeaderTickInterval (leader renews before expiry)
//   - MaxClosedCount >= 0
//   - MaxIdlePollInterval >= IdlePollInterval
//   - CompletionLookback >= 0
//
// Returns:
//   - error: Validation error wrapping ErrInvalidConfig, nil if valid
func (cfg *Config) Validate() error {
	if cfg.SourceIdentifier == "" {
		return fmt.Errorf("%w: SourceIdentifier must be set", ErrInvalidConfig)
	}
	if strings.Contains(cfg.SourceIdentifier, types.IdentifierDelimiter) {
		return fmt.Errorf("%w: SourceIdentifier %q must not contain %q",
			ErrInvalidConfig, cfg.SourceIdentifier, types.IdentifierDelimiter)
	}
	if cfg.OwnerID == "" {
		return fmt.Errorf("%w: OwnerID must be set", ErrInvalidConfig)
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"OwnershipTimeout", cfg.OwnershipTimeout},
		{"LeaderTickInterval", cfg.LeaderTickInterval},
		{"LeaderLeaseExtension", cfg.LeaderLeaseExtension},
		{"OperationTimeout", cfg.OperationTimeout},
		{"IdlePollInterval", cfg.IdlePollInterval},
		{"MaxIdlePollInterval", cfg.MaxIdlePollInterval},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return fmt.Errorf("%w: %s must be > 0, got %v", ErrInvalidConfig, d.name, d.value)
		}
	}

	if cfg.LeaderLeaseExtension <= cfg.LeaderTickInterval {
		return fmt.Errorf(
			"%w: LeaderLeaseExtension (%v) must be > LeaderTickInterval (%v) so the leader can renew before expiry",
			ErrInvalidConfig, cfg.LeaderLeaseExtension, cfg.LeaderTickInterval,
		)
	}
	if cfg.MaxClosedCount < 0 {
		return fmt.Errorf("%w: MaxClosedCount must be >= 0, got %d", ErrInvalidConfig, cfg.MaxClosedCount)
	}
	if cfg.MaxIdlePollInterval < cfg.IdlePollInterval {
		return fmt.Errorf("%w: MaxIdlePollInterval (%v) must be >= IdlePollInterval (%v)",
			ErrInvalidConfig, cfg.MaxIdlePollInterval, cfg.IdlePollInterval)
	}
	if cfg.CompletionLookback < 0 {
		return fmt.Errorf("%w: CompletionLookback must be >= 0, got %v", ErrInvalidConfig, cfg.CompletionLookback)
	}

	return nil
}

// ValidateWithWarnings logs warnings for valid but non-recommended values.
//
// This is called after Validate() in NewCoordinator() to provide operator guidance.
//
// Parameters:
//   - logger: Logger instance for warning output
func (cfg *Config) ValidateWithWarnings(logger Logger) {
	if cfg.LeaderLeaseExtension < 2*cfg.LeaderTickInterval {
		logger.Warn(
			"LeaderLeaseExtension leaves little margin over LeaderTickInterval",
			"leaderLeaseExtension", cfg.LeaderLeaseExtension,
			"leaderTickInterval", cfg.LeaderTickInterval,
			"recommended", 2*cfg.LeaderTickInterval,
		)
	}

	if cfg.OperationTimeout >= cfg.OwnershipTimeout {
		logger.Warn(
			"OperationTimeout is not shorter than OwnershipTimeout, a slow store call can outlive a lease",
			"operationTimeout", cfg.OperationTimeout,
			"ownershipTimeout", cfg.OwnershipTimeout,
		)
	}
}

// TestConfig returns a configuration optimized for fast test execution.
//
// Returns:
//   - Config: Configuration with short leases and ticks
//
// Example:
//
//	cfg := sourcecoord.TestConfig()
//	cfg.SourceIdentifier = "test-source"
//	coord, err := sourcecoord.NewCoordinator(&cfg, memory.NewStore())
func TestConfig() Config {
	cfg := DefaultConfig()

	cfg.OwnershipTimeout = 2 * time.Second
	cfg.LeaderTickInterval = 100 * time.Millisecond
	cfg.LeaderLeaseExtension = 500 * time.Millisecond
	cfg.CompletionLookback = 500 * time.Millisecond
	cfg.OperationTimeout = 1 * time.Second
	cfg.IdlePollInterval = 5 * time.Millisecond
	cfg.MaxIdlePollInterval = 50 * time.Millisecond
	cfg.KVBucket.MemoryStorage = true

	return cfg
}

// LoadConfig reads a YAML configuration file, applies defaults and validates it.
//
// Parameters:
//   - path: Path to the YAML file
//
// Returns:
//   - Config: Loaded configuration
//   - error: Read, parse or validation error
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	return ParseConfig(data)
}

// ParseConfig parses YAML configuration, applies defaults and validates it.
//
// Fields absent from the document keep their DefaultConfig values.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	SetDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
