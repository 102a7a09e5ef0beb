package azure

import (
	"github.com/go-kit/log"
	"github.com/thanos-io/objstore"
	"github.com/thanos-io/objstore/providers/azure"
	yaml "gopkg.in/yaml.v3"
)

func NewBucketClient(cfg Config, name string, logger log.Logger) (objstore.Bucket, error) {
	serialized, err := marshalConfig(cfg)
	if err != nil {
		return nil, err
	}
	return azure.NewBucket(logger, serialized, name, nil)
}

// marshalConfig starts from the default config so that every parameter,
// the HTTP config in particular, has a sensible value. The provider only
// accepts its config as YAML.
func marshalConfig(cfg Config) ([]byte, error) {
	bucketConfig := azure.DefaultConfig
	bucketConfig.StorageAccountName = cfg.StorageAccountName
	bucketConfig.StorageAccountKey = cfg.StorageAccountKey.String()
	bucketConfig.ContainerName = cfg.ContainerName
	bucketConfig.Endpoint = cfg.Endpoint
	bucketConfig.MaxRetries = cfg.MaxRetries
	bucketConfig.UserAssignedID = cfg.UserAssignedID
	return yaml.Marshal(bucketConfig)
}
