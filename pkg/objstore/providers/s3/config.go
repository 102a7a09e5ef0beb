package s3

import (
	"flag"
	"fmt"
	"slices"

	"github.com/grafana/dskit/flagext"
)

const (
	SignatureVersionV4 = "v4"
	SignatureVersionV2 = "v2"

	AutoLookup               = "auto"
	VirtualHostedStyleLookup = "virtual-hosted"
	PathStyleLookup          = "path"
)

var (
	supportedSignatureVersions = []string{SignatureVersionV4, SignatureVersionV2}
	supportedBucketLookupTypes = []string{AutoLookup, VirtualHostedStyleLookup, PathStyleLookup}

	errUnsupportedSignatureVersion = fmt.Errorf("unsupported signature version (supported values: %v)", supportedSignatureVersions)
	errUnsupportedBucketLookupType = fmt.Errorf("unsupported bucket lookup type (supported values: %v)", supportedBucketLookupTypes)
)

// Config holds the config options for an S3 backend.
type Config struct {
	Endpoint         string         `yaml:"endpoint"`
	Region           string         `yaml:"region"`
	BucketName       string         `yaml:"bucket_name"`
	SecretAccessKey  flagext.Secret `yaml:"secret_access_key"`
	AccessKeyID      string         `yaml:"access_key_id"`
	Insecure         bool           `yaml:"insecure" category:"advanced"`
	SignatureVersion string         `yaml:"signature_version" category:"advanced"`
	BucketLookupType string         `yaml:"bucket_lookup_type" category:"advanced"`
}

// RegisterFlags registers the flags for the S3 backend without a prefix.
func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	cfg.RegisterFlagsWithPrefix("", f)
}

// RegisterFlagsWithPrefix registers the flags for S3 storage with the provided prefix.
func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.AccessKeyID, prefix+"s3.access-key-id", "", "S3 access key ID")
	f.Var(&cfg.SecretAccessKey, prefix+"s3.secret-access-key", "S3 secret access key")
	f.StringVar(&cfg.BucketName, prefix+"s3.bucket-name", "", "S3 bucket name")
	f.StringVar(&cfg.Region, prefix+"s3.region", "", "S3 region. If unset, the client will issue a S3 GetBucketLocation API call to autodetect it.")
	f.StringVar(&cfg.Endpoint, prefix+"s3.endpoint", "", "The S3 bucket endpoint. It could be an AWS S3 endpoint listed at https://docs.aws.amazon.com/general/latest/gr/s3.html or the address of an S3-compatible service in hostname:port format.")
	f.BoolVar(&cfg.Insecure, prefix+"s3.insecure", false, "If enabled, use http:// for the S3 endpoint instead of https://. This could be useful in local dev/test environments while using an S3-compatible backend storage, like Minio.")
	f.StringVar(&cfg.SignatureVersion, prefix+"s3.signature-version", SignatureVersionV4, fmt.Sprintf("The signature version to use for authenticating against S3. Supported values are: %v.", supportedSignatureVersions))
	f.StringVar(&cfg.BucketLookupType, prefix+"s3.bucket-lookup-type", AutoLookup, fmt.Sprintf("The bucket lookup style. Supported values are: %v.", supportedBucketLookupTypes))
}

// Validate config and returns error on failure
func (cfg *Config) Validate() error {
	if !slices.Contains(supportedSignatureVersions, cfg.SignatureVersion) {
		return errUnsupportedSignatureVersion
	}
	if cfg.BucketLookupType != "" && !slices.Contains(supportedBucketLookupTypes, cfg.BucketLookupType) {
		return errUnsupportedBucketLookupType
	}
	return nil
}
