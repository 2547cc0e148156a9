package filemanager

import (
	"sync"
)

// DriverFactory creates a storage named name from its config
type DriverFactory func(name string, cfg *Config, opts ...StorageOption) (Storage, error)

var (
	driverFactories = make(map[string]DriverFactory)
	factoryMutex    sync.RWMutex
)

// RegisterDriver registers a driver factory function
func RegisterDriver(kind string, factory DriverFactory) {
	factoryMutex.Lock()
	defer factoryMutex.Unlock()
	driverFactories[kind] = factory
}

// CreateDriver creates a storage instance from config
func CreateDriver(name string, cfg *Config, opts ...StorageOption) (Storage, error) {
	factoryMutex.RLock()
	factory, exists := driverFactories[cfg.Driver]
	factoryMutex.RUnlock()

	if !exists {
		return nil, NewPathError("create", cfg.Driver, LabelInvalidConfigOption, ErrDriverNotRegistered)
	}

	return factory(name, cfg, opts...)
}
