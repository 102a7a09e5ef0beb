package s3

import (
	"github.com/go-kit/log"
	"github.com/thanos-io/objstore"
	"github.com/thanos-io/objstore/providers/s3"
)

// NewBucketClient creates a new S3 bucket client
func NewBucketClient(cfg Config, name string, logger log.Logger) (objstore.Bucket, error) {
	return s3.NewBucketWithConfig(logger, newS3Config(cfg), name, nil)
}

func newS3Config(cfg Config) s3.Config {
	s3Cfg := s3.DefaultConfig
	s3Cfg.Bucket = cfg.BucketName
	s3Cfg.Endpoint = cfg.Endpoint
	s3Cfg.Region = cfg.Region
	s3Cfg.AccessKey = cfg.AccessKeyID
	s3Cfg.SecretKey = cfg.SecretAccessKey.String()
	s3Cfg.Insecure = cfg.Insecure
	s3Cfg.BucketLookupType = getS3BucketLookupType(cfg.BucketLookupType)
	// Enforce signature version 2 if CLI flag is set
	s3Cfg.SignatureV2 = cfg.SignatureVersion == SignatureVersionV2
	return s3Cfg
}

func getS3BucketLookupType(lookupType string) s3.BucketLookupType {
	switch lookupType {
	case VirtualHostedStyleLookup:
		return s3.VirtualHostLookup
	case PathStyleLookup:
		return s3.PathLookup
	default:
		return s3.AutoLookup
	}
}
