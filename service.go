package filemanager

import (
	"fmt"
	"slices"

	"github.com/gobeaver/beaver-kit/config"
)

// Builder provides a way to create registries with custom env prefixes
type Builder struct {
	prefix string
}

// WithPrefix creates a new Builder with the specified prefix
func WithPrefix(prefix string) *Builder {
	return &Builder{prefix: prefix}
}

// Registry loads the environment with the builder's prefix and builds the
// registry it describes.
func (b *Builder) Registry(opts ...StorageOption) (*Registry, error) {
	cfg := &EnvConfig{}
	if err := config.Load(cfg, config.LoadOptions{Prefix: b.prefix}); err != nil {
		return nil, err
	}
	return RegistryFromEnv(cfg, opts...)
}

// NewFromEnv builds a registry from BEAVER_FILEMANAGER_* variables (convenience constructor)
func NewFromEnv(opts ...StorageOption) (*Registry, error) {
	cfg, err := GetEnvConfig()
	if err != nil {
		return nil, err
	}
	return RegistryFromEnv(cfg, opts...)
}

// RegistryFromEnv builds the registry described by env. A config file, when
// named, describes every storage; otherwise a single storage is built from
// the variables.
func RegistryFromEnv(env *EnvConfig, opts ...StorageOption) (*Registry, error) {
	if env.ConfigFile != "" {
		return NewRegistryFromFile(env.ConfigFile, opts...)
	}
	return NewRegistryFromConfigs(map[string]*Config{env.Storage: env.StorageConfig()}, opts...)
}

// NewRegistryFromFile reads every storage of a config file.
func NewRegistryFromFile(file string, opts ...StorageOption) (*Registry, error) {
	v, err := ReadConfigFile(file)
	if err != nil {
		return nil, err
	}

	names := StorageNames(v)
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: %s defines no storages", ErrConfiguration, file)
	}

	configs := make(map[string]*Config, len(names))
	for _, name := range names {
		cfg, err := LoadConfig(v, name)
		if err != nil {
			return nil, err
		}
		configs[name] = cfg
	}
	return NewRegistryFromConfigs(configs, opts...)
}

// NewRegistryFromConfigs creates one storage per config, registers them and
// binds their thumbnail storages.
func NewRegistryFromConfigs(configs map[string]*Config, opts ...StorageOption) (*Registry, error) {
	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}
	slices.Sort(names)

	registry := NewRegistry()
	for _, name := range names {
		s, err := CreateDriver(name, configs[name], opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage %q: %w", name, err)
		}
		if err := registry.Register(s); err != nil {
			return nil, err
		}
	}

	if err := NewThumbnailFactory(registry, nil).Bind(); err != nil {
		return nil, err
	}
	return registry, nil
}
