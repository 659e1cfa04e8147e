package config

import (
	"context"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, DatastoreSQLite, cfg.DatastoreType)
	require.Equal(t, log.InfoLevel, cfg.Level())
}

func TestValidate_RejectsUnknownDatastore(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DatastoreType = "postgres"
	require.ErrorContains(t, cfg.Validate(), "unknown datastore type")
}

func TestValidate_RejectsBadLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "loud"
	require.Error(t, cfg.Validate())
	require.Equal(t, log.InfoLevel, cfg.Level())
}

func TestAllowedOrigins(t *testing.T) {
	cfg := Config{CORSOrigins: " http://a.test , ,http://b.test"}
	require.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins())

	cfg.CORSOrigins = ""
	require.Equal(t, []string{"*"}, cfg.AllowedOrigins())
}

func TestContextRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	ctx := WithContext(context.Background(), &cfg)
	require.Same(t, &cfg, FromContext(ctx))
	require.Nil(t, FromContext(context.Background()))
}
