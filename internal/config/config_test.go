package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("SERVICE_PORT", "8085")
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
	t.Setenv("MONGO_NAME", "messaging")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("KAFKA_BROKER", "localhost:9092")
	t.Setenv("KAFKA_TOPIC", "message-events")
	t.Setenv("JWT_SECRET", "sekret")
	t.Setenv("APP_ENV", "test")
}

func loadWithEnv(t *testing.T) *Config {
	t.Helper()
	cfg := &Config{}
	overrideFromEnv(cfg)
	cfg.JWT.Alg = "HS256"
	require.NoError(t, validate(cfg))
	return cfg
}

func Test_Env_Overrides(t *testing.T) {
	req := require.New(t)
	setRequiredEnv(t)
	t.Setenv("KAFKA_BROKER", "k1:9092,k2:9092")

	cfg := loadWithEnv(t)
	req.Equal(8085, cfg.App.Port)
	req.Equal([]string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	req.Equal("messaging", cfg.Mongo.DB)
	req.True(cfg.App.Development())
}

func Test_Validate_Missing_Fields(t *testing.T) {
	req := require.New(t)

	cfg := &Config{}
	req.Error(validate(cfg))

	cfg.App.Port = 8085
	req.EqualError(validate(cfg), "mongo.uri missing")
}

func Test_Validate_JWT_Alg(t *testing.T) {
	req := require.New(t)
	setRequiredEnv(t)

	cfg := &Config{}
	overrideFromEnv(cfg)

	cfg.JWT.Alg = "none"
	req.Error(validate(cfg))

	cfg.JWT.Alg = "HS256"
	req.NoError(validate(cfg))

	cfg.JWT.Alg = "RS256"
	cfg.JWT.PublicKeyPath = ""
	req.Error(validate(cfg))
}

func Test_Dedup_TTL_Defaults_To_Seven_Days(t *testing.T) {
	req := require.New(t)

	d := &Dedup{}
	req.Equal(7*24*time.Hour, d.TTLDuration())

	d.TTL = "48h"
	req.Equal(48*time.Hour, d.TTLDuration())

	d.TTL = "bogus"
	req.Equal(7*24*time.Hour, d.TTLDuration())
}
