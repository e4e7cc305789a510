package runner

import (
	"time"

	apperrors "github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"
)

const ErrCodeInvalidConfig = "RUNNER_INVALID_CONFIG"

// Config is the serializable form of a runner policy.
//
//	max_retries: 3
//	timeout: 2s
//	backoff:
//	  base: 100ms
//	  factor: 2
//	  max: 5s
type Config struct {
	MaxRetries int           `json:"max_retries" yaml:"max_retries"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
	Backoff    BackoffConfig `json:"backoff" yaml:"backoff"`
}

type BackoffConfig struct {
	Base   time.Duration `json:"base" yaml:"base"`
	Factor float64       `json:"factor" yaml:"factor"`
	Max    time.Duration `json:"max" yaml:"max"`
}

// ParseConfig reads a Config from YAML or JSON.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		// yaml can handle JSON too, so a single attempt is fine
		return cfg, apperrors.Wrap(err, apperrors.CategoryBadInput, "invalid runner config").
			WithTextCode(ErrCodeInvalidConfig)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	invalid := func(field string) error {
		return apperrors.New("runner config field must not be negative", apperrors.CategoryBadInput).
			WithTextCode(ErrCodeInvalidConfig).
			WithMetadata(map[string]any{"field": field})
	}

	switch {
	case c.MaxRetries < 0:
		return invalid("max_retries")
	case c.Timeout < 0:
		return invalid("timeout")
	case c.Backoff.Base < 0:
		return invalid("backoff.base")
	case c.Backoff.Factor < 0:
		return invalid("backoff.factor")
	case c.Backoff.Max < 0:
		return invalid("backoff.max")
	}
	return nil
}

// Options converts c to runner options. Without a backoff base retries
// run immediately.
func (c Config) Options() []Option {
	opts := []Option{WithMaxRetries(c.MaxRetries)}
	if c.Timeout > 0 {
		opts = append(opts, WithTimeout(c.Timeout))
	}
	if c.Backoff.Base > 0 {
		opts = append(opts, WithRetryStrategy(ExponentialBackoffStrategy{
			Base:   c.Backoff.Base,
			Factor: c.Backoff.Factor,
			Max:    c.Backoff.Max,
		}))
	}
	return opts
}
