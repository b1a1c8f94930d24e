package natskv

import (
	"fmt"

	"github.com/arloliu/sourcecoord/types"
	"github.com/nats-io/nats.go/jetstream"
)

// Config configures the NATS KV coordination store.
type Config struct {
	// Bucket is the KV bucket holding partition items.
	Bucket string `yaml:"bucket"`

	// Replicas is the bucket replication factor.
	Replicas int `yaml:"replicas"`

	// MemoryStorage keeps the bucket in memory instead of on disk.
	MemoryStorage bool `yaml:"memoryStorage"`

	// ReclaimExpiredLeases makes ASSIGNED items whose ownership timeout has
	// passed available to the next acquire.
	ReclaimExpiredLeases bool `yaml:"reclaimExpiredLeases"`

	// CreateRetries bounds bucket creation attempts when several workers race.
	CreateRetries int `yaml:"createRetries"`
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{
		Bucket:               "sourcecoord-items",
		Replicas:             1,
		ReclaimExpiredLeases: true,
		CreateRetries:        3,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("%w: natskv bucket must not be empty", types.ErrInvalidConfig)
	}
	if c.Replicas < 1 {
		return fmt.Errorf("%w: natskv replicas must be >= 1, got %d", types.ErrInvalidConfig, c.Replicas)
	}

	return nil
}

func (c *Config) bucketConfig() jetstream.KeyValueConfig {
	storage := jetstream.FileStorage
	if c.MemoryStorage {
		storage = jetstream.MemoryStorage
	}

	return jetstream.KeyValueConfig{
		Bucket:      c.Bucket,
		Description: "sourcecoord partition items",
		History:     1,
		Storage:     storage,
		Replicas:    c.Replicas,
	}
}
