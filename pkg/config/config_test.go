package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serviceConfig struct {
	Port     int           `env:"TEST_CFG_PORT" envDefault:"8010"`
	Brokers  []string      `env:"TEST_CFG_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	Timeout  time.Duration `env:"TEST_CFG_TIMEOUT" envDefault:"2s"`
	Weight   float64       `env:"TEST_CFG_WEIGHT" envDefault:"0.5"`
	ReadOnly bool          `env:"TEST_CFG_READ_ONLY" envDefault:"false"`
}

func TestLoad_Defaults(t *testing.T) {
	var cfg serviceConfig
	require.NoError(t, Load(&cfg))

	assert.Equal(t, 8010, cfg.Port)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Brokers)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
	assert.InDelta(t, 0.5, cfg.Weight, 1e-9)
	assert.False(t, cfg.ReadOnly)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("TEST_CFG_PORT", "9000")
	t.Setenv("TEST_CFG_BROKERS", "k1:9092,k2:9092")
	t.Setenv("TEST_CFG_TIMEOUT", "150ms")
	t.Setenv("TEST_CFG_READ_ONLY", "true")

	var cfg serviceConfig
	require.NoError(t, Load(&cfg))

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Brokers)
	assert.Equal(t, 150*time.Millisecond, cfg.Timeout)
	assert.True(t, cfg.ReadOnly)
}

func TestLoad_ParseError(t *testing.T) {
	t.Setenv("TEST_CFG_PORT", "eighty")

	var cfg serviceConfig
	err := Load(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoad_Required(t *testing.T) {
	var cfg struct {
		Token string `env:"TEST_CFG_TOKEN,required"`
	}
	assert.ErrorContains(t, Load(&cfg), "parse config")

	t.Setenv("TEST_CFG_TOKEN", "s3cret")
	require.NoError(t, Load(&cfg))
	assert.Equal(t, "s3cret", cfg.Token)
}

var errBadPort = errors.New("port out of range")

type checkedConfig struct {
	Port int `env:"TEST_CFG_CHECKED_PORT" envDefault:"8010"`
}

func (c *checkedConfig) Validate() error {
	if c.Port > 65535 {
		return errBadPort
	}
	return nil
}

func TestLoad_RunsValidate(t *testing.T) {
	var ok checkedConfig
	require.NoError(t, Load(&ok))

	t.Setenv("TEST_CFG_CHECKED_PORT", "70000")
	var bad checkedConfig
	err := Load(&bad)
	assert.ErrorIs(t, err, errBadPort)
	assert.Contains(t, err.Error(), "invalid config")
}
