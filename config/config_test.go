package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplySectionsReadsGroupedKeys(t *testing.T) {
	raw := map[string]any{
		"app": map[string]any{
			"AppPort":        "9090",
			"JWTSecret":      "s3cret",
			"AllowedOrigins": []any{"https://novo.app", 42},
		},
		"database": map[string]any{"Driver": "postgres", "DBName": "journey"},
		"pesepay":  map[string]any{"IntegrationKey": "ik", "EncryptionKey": "ek"},
		"kafka":    map[string]any{"Brokers": []any{"k1:9092", "k2:9092"}},
		"signup":   map[string]any{"MaxPerIPPerDay": float64(7)},
	}

	var c AppConfig
	applySections(raw, &c)

	assert.Equal(t, "9090", c.AppPort)
	assert.Equal(t, "s3cret", c.JWTSecret)
	assert.Equal(t, []string{"https://novo.app"}, c.AllowedOrigins)
	assert.Equal(t, "postgres", c.DBDriver)
	assert.Equal(t, "journey", c.DBName)
	assert.Equal(t, "ik", c.PesepayIntegrationKey)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.KafkaBrokers)
	assert.Equal(t, 7, c.SignupMaxPerIPPerDay)
}

func TestApplyDefaultsFillsZeroValues(t *testing.T) {
	c := AppConfig{AppPort: "1234"}
	applyDefaults(&c)

	assert.Equal(t, "1234", c.AppPort)
	assert.Equal(t, "mysql", c.DBDriver)
	assert.Equal(t, "@every 24h", c.ReminderSchedule)
	assert.Equal(t, []string{"*"}, c.AllowedOrigins)
	assert.Equal(t, 24*30, c.TokenTTLHours)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("KAFKA_BROKERS", " a:1 , ,b:2 ")
	t.Setenv("LOG_COMPRESS", "true")
	t.Setenv("DB_DRIVER", "sqlite")

	c := AppConfig{JWTSecret: "from-file"}
	applyEnvOverrides(&c)

	assert.Equal(t, "from-env", c.JWTSecret)
	assert.Equal(t, []string{"a:1", "b:2"}, c.KafkaBrokers)
	assert.True(t, c.LogCompress)
	assert.Equal(t, "sqlite", c.DBDriver)
}

func TestDialectorForRejectsUnknownDriver(t *testing.T) {
	_, err := dialectorFor(AppConfig{DBDriver: "oracle"})
	require.Error(t, err)

	d, err := dialectorFor(AppConfig{DBDriver: "sqlite", DBName: "novo"})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.Name())
}
