package runner

import (
	stderrors "errors"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigYAML(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
max_retries: 3
timeout: 2s
backoff:
  base: 100ms
  factor: 2
  max: 5s
`))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
	assert.Equal(t, 100*time.Millisecond, cfg.Backoff.Base)
	assert.Equal(t, 2.0, cfg.Backoff.Factor)
	assert.Equal(t, 5*time.Second, cfg.Backoff.Max)

	r := New(cfg.Options()...)
	assert.Equal(t, 3, r.maxRetries)
	assert.Equal(t, 2*time.Second, r.timeout)
	assert.Equal(t, ExponentialBackoffStrategy{Base: 100 * time.Millisecond, Factor: 2, Max: 5 * time.Second}, r.retryStrategy)
}

func TestParseConfigJSON(t *testing.T) {
	cfg, err := ParseConfig([]byte(`{"max_retries": 1, "timeout": "50ms"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.MaxRetries)
	assert.Equal(t, 50*time.Millisecond, cfg.Timeout)

	r := New(cfg.Options()...)
	assert.Equal(t, NoDelayStrategy{}, r.retryStrategy)
}

func TestParseConfigRejectsNegativeValues(t *testing.T) {
	_, err := ParseConfig([]byte("max_retries: -1\n"))
	require.Error(t, err)

	var ge *goerrors.Error
	require.True(t, stderrors.As(err, &ge))
	assert.Equal(t, ErrCodeInvalidConfig, ge.TextCode)
	assert.Equal(t, "max_retries", ge.Metadata["field"])
}

func TestParseConfigRejectsMalformedInput(t *testing.T) {
	_, err := ParseConfig([]byte("max_retries: [nope"))
	require.Error(t, err)

	var ge *goerrors.Error
	require.True(t, stderrors.As(err, &ge))
	assert.Equal(t, ErrCodeInvalidConfig, ge.TextCode)
}
