package filesystem

import "flag"

// Config stores the configuration for a filesystem backend.
type Config struct {
	Directory string `yaml:"dir"`
}

// RegisterFlagsWithPrefix registers the flags for filesystem storage with the provided prefix.
func (cfg *Config) RegisterFlagsWithPrefix(prefix string, f *flag.FlagSet) {
	f.StringVar(&cfg.Directory, prefix+"filesystem.dir", "", "Local filesystem directory holding a symbol store.")
}
