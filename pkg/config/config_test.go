package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dispatch_portal/pkg/apperr"
)

func fullEnv() map[string]string {
	return map[string]string{
		"TENANT_ID":                       "tenant",
		"CLIENT_ID":                       "client",
		"CLIENT_SECRET":                   "s3cr3t",
		"DATAVERSE_URL":                   "https://org.crm7.dynamics.com/",
		"FLOW_URL_COMPLETE":               "https://prod.westus.logic.azure.com/workflows/x?sig=abc",
		"AZURE_STORAGE_CONNECTION_STRING": "AccountName=a;AccountKey=b",
	}
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(fullEnv())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "https://org.crm7.dynamics.com", cfg.Dataverse.URL)
	assert.Equal(t, "https://org.crm7.dynamics.com/.default", cfg.Dataverse.Scope())
	assert.Equal(t, "v9.2", cfg.Dataverse.APIVersion)
	assert.Equal(t, "new_sagyouin_mastas", cfg.Dataverse.Schema.WorkerEntitySet)
	assert.Equal(t, "new_mail", cfg.Dataverse.Schema.WorkerMailField)
	assert.Equal(t, []string{"new_day", "new_genbamei", "new_sagyou_naiyou", "new_start_time"}, cfg.Dataverse.Schema.DispatchFields)
	assert.Equal(t, "new_day desc", cfg.Dataverse.Schema.DispatchOrderBy)
	assert.Equal(t, 100000004, cfg.Flow.CompletedStatus)
	assert.Equal(t, time.Hour, cfg.Storage.SignedURLTTL)
	assert.Equal(t, "attachments", cfg.Storage.AttachmentContainer)
	assert.True(t, cfg.Storage.Enabled())

	assert.NoError(t, cfg.Dataverse.Validate())
	assert.NoError(t, cfg.Flow.Validate())
}

func TestLoadFrom_Overrides(t *testing.T) {
	vars := fullEnv()
	vars["SIGNED_URL_TTL"] = "15m"
	vars["DATAVERSE_WORKER_MAIL_FIELD"] = "emailaddress"
	vars["DATAVERSE_DISPATCH_FIELDS"] = "a,b"

	cfg, err := LoadFrom(vars)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.Storage.SignedURLTTL)
	assert.Equal(t, "emailaddress", cfg.Dataverse.Schema.WorkerMailField)
	assert.Equal(t, []string{"a", "b"}, cfg.Dataverse.Schema.DispatchFields)
}

func TestLoadFrom_InvalidDuration(t *testing.T) {
	vars := fullEnv()
	vars["SIGNED_URL_TTL"] = "an hour"

	_, err := LoadFrom(vars)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.Configuration("")))
}

func TestValidate_Missing(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{"CLIENT_ID": "client"})
	require.NoError(t, err)

	err = cfg.Dataverse.Validate()
	require.Error(t, err)
	_, body := apperr.Extract(err)
	assert.Equal(t, apperr.KindConfiguration, body.Error)
	assert.Equal(t, "missing environment variables: CLIENT_SECRET, DATAVERSE_URL, TENANT_ID", body.Detail)

	err = cfg.Flow.Validate()
	require.Error(t, err)
	assert.Equal(t, apperr.KindConfiguration, apperr.KindOf(err))

	assert.False(t, cfg.Storage.Enabled())
}

func TestValidate_RequiresHTTPS(t *testing.T) {
	vars := fullEnv()
	vars["DATAVERSE_URL"] = "http://org.crm7.dynamics.com"
	cfg, err := LoadFrom(vars)
	require.NoError(t, err)
	assert.Error(t, cfg.Dataverse.Validate())
}

func TestString_MasksSecrets(t *testing.T) {
	cfg, err := LoadFrom(fullEnv())
	require.NoError(t, err)

	s := cfg.String()
	assert.NotContains(t, s, "s3cr3t")
	assert.NotContains(t, s, "sig=abc")
	assert.NotContains(t, s, "AccountKey")
	assert.Contains(t, s, "https://org.crm7.dynamics.com")
}
