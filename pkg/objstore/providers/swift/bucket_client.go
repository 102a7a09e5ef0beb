package swift

import (
	"github.com/go-kit/log"
	"github.com/prometheus/common/model"
	"github.com/thanos-io/objstore"
	"github.com/thanos-io/objstore/providers/swift"
	yaml "gopkg.in/yaml.v3"
)

// NewBucketClient opens the container holding the symbol store.
func NewBucketClient(cfg Config, name string, logger log.Logger) (objstore.Bucket, error) {
	serialized, err := marshalConfig(cfg)
	if err != nil {
		return nil, err
	}
	return swift.NewContainer(log.With(logger, "bucket", name), serialized, nil)
}

// marshalConfig maps cfg onto the provider defaults. Symbol files are only
// read, so the large object settings keep their default values.
func marshalConfig(cfg Config) ([]byte, error) {
	c := swift.DefaultConfig
	c.AuthVersion = cfg.AuthVersion
	c.AuthUrl = cfg.AuthURL
	c.Username, c.UserId, c.Password = cfg.Username, cfg.UserID, cfg.Password.String()
	c.UserDomainName, c.UserDomainID = cfg.UserDomainName, cfg.UserDomainID
	c.DomainName, c.DomainId = cfg.DomainName, cfg.DomainID
	c.ProjectName, c.ProjectID = cfg.ProjectName, cfg.ProjectID
	c.ProjectDomainName, c.ProjectDomainID = cfg.ProjectDomainName, cfg.ProjectDomainID
	c.RegionName = cfg.RegionName
	c.ContainerName = cfg.ContainerName
	c.Retries = cfg.MaxRetries
	c.ConnectTimeout = model.Duration(cfg.ConnectTimeout)
	c.Timeout = model.Duration(cfg.RequestTimeout)
	return yaml.Marshal(c)
}
