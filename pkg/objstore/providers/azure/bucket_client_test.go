package azure

import (
	"testing"

	"github.com/grafana/dskit/flagext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thanos-io/objstore/providers/azure"
	yaml "gopkg.in/yaml.v3"
)

func TestMarshalConfig(t *testing.T) {
	var cfg Config
	flagext.DefaultValues(&cfg)
	cfg.StorageAccountName = "account"
	cfg.StorageAccountKey = flagext.SecretWithValue("key")
	cfg.ContainerName = "symbols"

	serialized, err := marshalConfig(cfg)
	require.NoError(t, err)

	var got azure.Config
	require.NoError(t, yaml.Unmarshal(serialized, &got))
	assert.Equal(t, "account", got.StorageAccountName)
	assert.Equal(t, "key", got.StorageAccountKey)
	assert.Equal(t, "symbols", got.ContainerName)
	assert.Equal(t, 20, got.MaxRetries)
}
