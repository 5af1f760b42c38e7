package consumer

import (
	"io"
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const (
	// DefaultCycleBudget is the number of records a cycle reads across all
	// shards.
	DefaultCycleBudget = 5000

	// DefaultPageLimit caps the records requested by a single GetRecords call.
	DefaultPageLimit = 25

	// MaxPageLimit is the largest PageLimit accepted.
	MaxPageLimit = 25

	// DefaultMaxRetries is the number of times a throttled call is retried.
	DefaultMaxRetries = 5

	// DefaultRetryDelay is the fixed wait between retries.
	DefaultRetryDelay = 5 * time.Second

	// DefaultStaleAfter is how long a shard may go without new records before
	// it is dropped from the shard map. Records stay in a stream for at
	// least 24 hours and closed shards linger for a few days after that.
	DefaultStaleAfter = 7 * 24 * time.Hour
)

// Config holds the tunables of the consumption engine.
type Config struct {
	// CycleBudget is the record quota of one cycle, split evenly (rounding
	// down) between the tracked shards.
	CycleBudget int `yaml:"cycle_budget"`

	// PageLimit is the maximum Limit passed to GetRecords, at most
	// MaxPageLimit.
	PageLimit int `yaml:"page_limit"`

	// MaxRetries bounds the retries of a throttled GetRecords call.
	MaxRetries int `yaml:"max_retries"`

	// RetryDelay is the fixed backoff between retries.
	RetryDelay time.Duration `yaml:"retry_delay"`

	// StaleAfter drops shards whose checkpoint did not advance for this long.
	StaleAfter time.Duration `yaml:"stale_after"`

	// MaxWorkers caps the shards read concurrently. Zero means one worker
	// per shard with no cap.
	MaxWorkers int `yaml:"max_workers"`

	// PollInterval is the minimum time between two GetRecords calls on the
	// same shard. Zero disables pacing.
	PollInterval time.Duration `yaml:"poll_interval"`

	// Aggregation enables de-aggregation of KPL aggregated records.
	Aggregation bool `yaml:"aggregation"`
}

// DefaultConfig returns the configuration used when no option overrides it.
func DefaultConfig() Config {
	return Config{
		CycleBudget: DefaultCycleBudget,
		PageLimit:   DefaultPageLimit,
		MaxRetries:  DefaultMaxRetries,
		RetryDelay:  DefaultRetryDelay,
		StaleAfter:  DefaultStaleAfter,
	}
}

// Validate checks the configuration for values the engine cannot work with.
func (c Config) Validate() error {
	switch {
	case c.CycleBudget < 0:
		return errors.Errorf("cycle budget must not be negative, got %d", c.CycleBudget)
	case c.PageLimit <= 0 || c.PageLimit > MaxPageLimit:
		return errors.Errorf("page limit must be between 1 and %d, got %d", MaxPageLimit, c.PageLimit)
	case c.MaxRetries < 0:
		return errors.Errorf("max retries must not be negative, got %d", c.MaxRetries)
	case c.RetryDelay <= 0:
		return errors.Errorf("retry delay must be positive, got %s", c.RetryDelay)
	case c.StaleAfter <= 0:
		return errors.Errorf("stale after must be positive, got %s", c.StaleAfter)
	case c.MaxWorkers < 0:
		return errors.Errorf("max workers must not be negative, got %d", c.MaxWorkers)
	case c.PollInterval < 0:
		return errors.Errorf("poll interval must not be negative, got %s", c.PollInterval)
	}
	return nil
}

// ReadConfig reads a YAML document from r on top of DefaultConfig. Keys not
// present in the document keep their default.
func ReadConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()

	data, err := ioutil.ReadAll(r)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, errors.Wrap(err, "parse config")
	}
	return cfg, cfg.Validate()
}
