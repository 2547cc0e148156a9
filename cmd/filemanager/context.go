package main

import (
	"context"
	"errors"

	"github.com/gobeaver/filemanager"
)

// managerKey is the context key for storing the manager of the selected
// storage.
type managerKey struct{}

// registryKey is the context key for storing the registry, closed after the
// command ran.
type registryKey struct{}

// withManager returns a new context with the registry and manager stored.
func withManager(ctx context.Context, registry *filemanager.Registry, m *filemanager.Manager) context.Context {
	ctx = context.WithValue(ctx, registryKey{}, registry)
	return context.WithValue(ctx, managerKey{}, m)
}

// managerFromContext retrieves the manager from context.
// Returns an error if the manager is not found.
func managerFromContext(ctx context.Context) (*filemanager.Manager, error) {
	m, ok := ctx.Value(managerKey{}).(*filemanager.Manager)
	if !ok || m == nil {
		return nil, errors.New("manager not found in context")
	}
	return m, nil
}
