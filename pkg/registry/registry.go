// Package registry is the plugin dispatch table: it maps plugin ids to action
// handlers and supplies the fallbacks for unknown and missing ids.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"plugin"
	"slices"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dukex/taskpipe/pkg/protocol"
)

// PluginSymbol is the symbol a plugin binary must export.
const PluginSymbol = "Handler"

var (
	// ErrDuplicateHandler indicates a second registration of the same plugin id.
	ErrDuplicateHandler = errors.New("handler already registered")

	// ErrInvalidPlugin indicates a plugin binary that does not export a usable factory.
	ErrInvalidPlugin = errors.New("invalid plugin")
)

type Registry struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[string]protocol.Handler

	unregistered    protocol.Handler
	missingPluginID protocol.Handler
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:          log.With("module", "registry"),
		handlers:        make(map[string]protocol.Handler),
		unregistered:    protocol.HandlerFunc(unregisteredHandler),
		missingPluginID: protocol.HandlerFunc(missingPluginIDHandler),
	}
}

// Register binds handler to a plugin id.
func (r *Registry) Register(pluginID string, handler protocol.Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[pluginID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, pluginID)
	}

	r.handlers[pluginID] = handler

	r.logger.Debug("Registered handler", "plugin_id", pluginID)

	return nil
}

// RegisterFactory creates the factory's handler and registers it under the factory id.
func (r *Registry) RegisterFactory(factory protocol.HandlerFactory, deps protocol.Dependencies) error {
	handler, err := factory.Create(deps)
	if err != nil {
		return fmt.Errorf("failed to create handler %s: %w", factory.ID(), err)
	}

	return r.Register(factory.ID(), handler)
}

// Lookup returns the handler registered under pluginID.
func (r *Registry) Lookup(pluginID string) (protocol.Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handler, ok := r.handlers[pluginID]

	return handler, ok
}

// Resolve picks the handler for a task's plugin id: the registered handler, the
// unregistered fallback for unknown ids, or the missing-id handler when the
// task names no plugin.
func (r *Registry) Resolve(pluginID *string) protocol.Handler {
	if pluginID == nil {
		return r.missingPluginID
	}

	if handler, ok := r.Lookup(*pluginID); ok {
		return handler
	}

	return r.unregistered
}

// IDs returns the registered plugin ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Sorted(maps.Keys(r.handlers))
}

func unregisteredHandler(_ context.Context, inv protocol.Invocation) (any, error) {
	pluginID := ""
	if inv.Task.PluginID != nil {
		pluginID = *inv.Task.PluginID
	}

	return map[string]any{
		"message": fmt.Sprintf("Processed task %s :: plugin_id %s does not exist.", inv.Task.TaskID, pluginID),
	}, nil
}

func missingPluginIDHandler(_ context.Context, inv protocol.Invocation) (any, error) {
	return map[string]any{
		"message": fmt.Sprintf("Processed task %s :: no plugin_id found.", inv.Task.TaskID),
	}, nil
}

// LoadHandlerPlugins opens every .so under <pluginsPath>/actions, at any depth,
// and returns the factories they export.
func (r *Registry) LoadHandlerPlugins(pluginsPath string) ([]protocol.HandlerFactory, error) {
	return loadPlugin[protocol.HandlerFactory](r.logger, filepath.Join(pluginsPath, "actions"), PluginSymbol)
}

func loadPlugin[T any](logger *slog.Logger, rootPath string, symbolName string) ([]T, error) {
	if _, err := os.Stat(rootPath); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	pluginPathList, err := doublestar.Glob(os.DirFS(rootPath), "**/*.so")
	if err != nil {
		return nil, fmt.Errorf("failed to scan plugins in %s: %w", rootPath, err)
	}

	l := logger.With(slog.String("path", rootPath), slog.String("symbol", symbolName))
	l.Info("Loading plugins", "count", len(pluginPathList))

	pluginList := make([]T, 0, len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(filepath.Join(rootPath, p))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidPlugin, p, err)
		}

		v, err := plg.Lookup(symbolName)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrInvalidPlugin, p, err)
		}

		castV, ok := v.(T)
		if !ok {
			return nil, fmt.Errorf("%w: %s: symbol %s has type %T", ErrInvalidPlugin, p, symbolName, v)
		}

		pluginList = append(pluginList, castV)

		l.Info("Loaded plugin", slog.String("plugin", p))
	}

	return pluginList, nil
}
