package config

import "time"

// DBConfig contains PostgreSQL job queue configuration.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"pullcheck"`
	Password string `env:"PASSWORD" envDefault:"pullcheck"`
	Name     string `env:"NAME"     envDefault:"pullcheck"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains Redis result store configuration.
type RedisConfig struct {
	Addr     string `env:"ADDR"     envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`
	DB       int    `env:"DB"       envDefault:"0"`
}

// StoreConfig contains TTL configuration for the result store namespaces.
type StoreConfig struct {
	// CacheTTL is the expiry of cached review payloads.
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"24h"`
	// RecordTTL is the expiry of job status records. It must be at least
	// CacheTTL so a cached result never outlives the record that produced it.
	RecordTTL time.Duration `env:"JOB_RECORD_TTL" envDefault:"48h"`
}

// Sanitize applies guardrails to store TTL values.
func (s *StoreConfig) Sanitize() {
	if s.CacheTTL <= 0 {
		s.CacheTTL = 24 * time.Hour
	}
	if s.RecordTTL < s.CacheTTL {
		s.RecordTTL = s.CacheTTL
	}
}
