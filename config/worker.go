package config

import "time"

// WorkerConfig contains worker executor configuration. Concurrency and the
// retry policy are deliberately explicit knobs rather than unbounded fan-out.
type WorkerConfig struct {
	// Concurrency is the number of worker goroutines pulling from the queue.
	Concurrency int `env:"WORKER_CONCURRENCY" envDefault:"4"`

	// Lease is how long a reserved job stays invisible to other workers.
	Lease time.Duration `env:"WORKER_LEASE" envDefault:"60s"`

	// MaxRetries bounds redelivery after transient infrastructure failures.
	// Fetch and analysis failures never trigger redelivery.
	MaxRetries int `env:"WORKER_MAX_RETRIES" envDefault:"3"`

	// RetryDelay is the fixed backoff before a failed delivery is retried.
	RetryDelay time.Duration `env:"WORKER_RETRY_DELAY" envDefault:"30s"`

	// PollInterval is how long an idle worker waits before checking the queue again.
	PollInterval time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"2s"`

	// FetchTimeout bounds the artifact fetch call.
	FetchTimeout time.Duration `env:"WORKER_FETCH_TIMEOUT" envDefault:"30s"`

	// AnalyzeTimeout bounds the analyzer call.
	AnalyzeTimeout time.Duration `env:"WORKER_ANALYZE_TIMEOUT" envDefault:"60s"`
}

// Sanitize applies guardrails to worker configuration values.
func (w *WorkerConfig) Sanitize() {
	if w.Concurrency < 1 {
		w.Concurrency = 1
	}
	if w.Lease < time.Second {
		w.Lease = 60 * time.Second
	}
	if w.MaxRetries < 0 {
		w.MaxRetries = 0
	}
	if w.RetryDelay < time.Second {
		w.RetryDelay = 30 * time.Second
	}
	if w.PollInterval <= 0 {
		w.PollInterval = 2 * time.Second
	}
	if w.FetchTimeout <= 0 {
		w.FetchTimeout = 30 * time.Second
	}
	if w.AnalyzeTimeout <= 0 {
		w.AnalyzeTimeout = 60 * time.Second
	}
}

// ReaperConfig contains queue cleanup configuration.
type ReaperConfig struct {
	// Interval between reaper sweeps.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// StalePendingAge is the age after which a pending queue row that was
	// never picked up is failed.
	StalePendingAge time.Duration `env:"REAPER_STALE_PENDING_AGE" envDefault:"24h"`

	// RetainTerminal is how long completed and failed queue rows are kept.
	RetainTerminal time.Duration `env:"REAPER_RETAIN_TERMINAL" envDefault:"72h"`

	// BatchSize bounds how many rows are touched per sweep.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"100"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	if r.Interval < time.Second {
		r.Interval = 5 * time.Minute
	}
	if r.StalePendingAge < time.Minute {
		r.StalePendingAge = 24 * time.Hour
	}
	if r.RetainTerminal < time.Hour {
		r.RetainTerminal = 72 * time.Hour
	}
	if r.BatchSize < 1 {
		r.BatchSize = 100
	}
}
