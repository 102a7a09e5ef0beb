package client

import (
	"errors"
	"flag"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/grafana/breakpad-symbolizer/pkg/objstore/providers/azure"
	"github.com/grafana/breakpad-symbolizer/pkg/objstore/providers/filesystem"
	"github.com/grafana/breakpad-symbolizer/pkg/objstore/providers/s3"
	"github.com/grafana/breakpad-symbolizer/pkg/objstore/providers/swift"
)

const (
	// None disables the object store.
	None = ""
	// S3 is the value for the S3 storage backend.
	S3 = "s3"
	// Azure is the value for the Azure storage backend.
	Azure = "azure"
	// Swift is the value for the Openstack Swift storage backend.
	Swift = "swift"
	// Filesystem is the value for the filesystem storage backend.
	Filesystem = "filesystem"
)

var (
	SupportedBackends = []string{S3, Azure, Swift, Filesystem}

	ErrUnsupportedStorageBackend        = errors.New("unsupported storage backend")
	ErrInvalidCharactersInStoragePrefix = errors.New("storage prefix contains invalid characters, it may only contain digits, English alphabet letters and dashes")
	ErrMissingFilesystemDirectory       = errors.New("filesystem storage backend requires a directory")
)

var storagePrefixPattern = regexp.MustCompile(`^[\da-zA-Z][\da-zA-Z-]*$`)

// Config configures an object store bucket holding a symbol store.
type Config struct {
	Backend       string `yaml:"backend"`
	StoragePrefix string `yaml:"storage_prefix" category:"experimental"`

	S3         s3.Config         `yaml:"s3"`
	Azure      azure.Config      `yaml:"azure"`
	Swift      swift.Config      `yaml:"swift"`
	Filesystem filesystem.Config `yaml:"filesystem"`
}

func (cfg *Config) RegisterFlags(f *flag.FlagSet) {
	cfg.RegisterFlagsWithPrefix("", f)
}

// RegisterFlagsWithPrefix registers flags with the provided prefix.
func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	cfg.S3.RegisterFlagsWithPrefix(prefix, f)
	cfg.Azure.RegisterFlagsWithPrefix(prefix, f)
	cfg.Swift.RegisterFlagsWithPrefix(prefix, f)
	cfg.Filesystem.RegisterFlagsWithPrefix(prefix, f)

	f.StringVar(&cfg.Backend, prefix+"backend", None, fmt.Sprintf("Backend storage holding a symbol store. Supported backends are: %s. Empty to disable.", strings.Join(SupportedBackends, ", ")))
	f.StringVar(&cfg.StoragePrefix, prefix+"storage-prefix", "", "Prefix for all objects stored in the backend storage. For simplicity, it may only contain digits and English alphabet letters.")
}

// Enabled reports whether a backend is configured.
func (cfg *Config) Enabled() bool {
	return cfg.Backend != None
}

func (cfg *Config) Validate() error {
	if !cfg.Enabled() {
		return nil
	}
	if !slices.Contains(SupportedBackends, cfg.Backend) {
		return ErrUnsupportedStorageBackend
	}
	if cfg.StoragePrefix != "" && !storagePrefixPattern.MatchString(cfg.StoragePrefix) {
		return ErrInvalidCharactersInStoragePrefix
	}
	switch cfg.Backend {
	case S3:
		return cfg.S3.Validate()
	case Filesystem:
		if cfg.Filesystem.Directory == "" {
			return ErrMissingFilesystemDirectory
		}
	}
	return nil
}
