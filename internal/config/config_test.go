package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Addr:             ":8080",
		DBUrl:            "ws://localhost:8000/rpc",
		DBNs:             "chattersphere",
		DBDb:             "chat",
		DBQueryTimeout:   5 * time.Second,
		DBExecuteTimeout: 10 * time.Second,
		SessionSecret:    "secret",
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRejectsMissingDatabaseURL(t *testing.T) {
	cfg := validConfig()
	cfg.DBUrl = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroTimeouts(t *testing.T) {
	cfg := validConfig()
	cfg.DBQueryTimeout = 0
	assert.Error(t, cfg.Validate())
}

func TestGetEnvFallsBack(t *testing.T) {
	t.Setenv("CHAT_TEST_PRESENT", "set")
	assert.Equal(t, "set", getEnv("CHAT_TEST_PRESENT", "default"))
	assert.Equal(t, "default", getEnv("CHAT_TEST_ABSENT", "default"))
}

func TestGetDurationEnv(t *testing.T) {
	t.Setenv("CHAT_TEST_DURATION", "250ms")
	assert.Equal(t, 250*time.Millisecond, getDurationEnv("CHAT_TEST_DURATION", time.Second))

	t.Setenv("CHAT_TEST_DURATION", "not-a-duration")
	assert.Equal(t, time.Second, getDurationEnv("CHAT_TEST_DURATION", time.Second))
}

func TestProviderAccessorsMirrorFields(t *testing.T) {
	cfg := validConfig()
	cfg.BotAPIKey = "key"
	cfg.TrainingDataPath = "/tmp/training.json"

	var p Provider = cfg
	assert.Equal(t, ":8080", p.GetAddr())
	assert.Equal(t, "ws://localhost:8000/rpc", p.GetDBURL())
	assert.Equal(t, "key", p.GetBotAPIKey())
	assert.Equal(t, "/tmp/training.json", p.GetTrainingDataPath())
}
