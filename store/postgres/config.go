package postgres

// Config configures the PostgreSQL coordination store.
type Config struct {
	// Table holds partition items.
	Table string `yaml:"table"`

	// ReclaimExpiredLeases makes ASSIGNED items whose ownership timeout has
	// passed available to the next acquire.
	ReclaimExpiredLeases bool `yaml:"reclaimExpiredLeases"`
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{
		Table:                DefaultTable,
		ReclaimExpiredLeases: true,
	}
}

// Options converts the configuration into store options.
func (c Config) Options() []Option {
	return []Option{WithTable(c.Table), WithLeaseReclaim(c.ReclaimExpiredLeases)}
}
