// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/taskpipe/pkg/actions/formatdate"
	"github.com/dukex/taskpipe/pkg/actions/formattext"
	"github.com/dukex/taskpipe/pkg/actions/httpcall"
	logaction "github.com/dukex/taskpipe/pkg/actions/log"
	"github.com/dukex/taskpipe/pkg/actions/response"
	"github.com/dukex/taskpipe/pkg/actions/transform"
	"github.com/dukex/taskpipe/pkg/protocol"
	"github.com/dukex/taskpipe/pkg/registry"
	"github.com/go-resty/resty/v2"
)

func nativeHandlers() []protocol.HandlerFactory {
	return []protocol.HandlerFactory{
		httpcall.NewFactory(),
		response.NewFactory(),
		formattext.NewFactory(),
		formatdate.NewFactory(),
		logaction.NewActionFactory(),
		transform.NewActionFactory(),
	}
}

// NewHTTPClient returns the outbound client shared by every handler.
func NewHTTPClient(timeout time.Duration) *resty.Client {
	return resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", serviceName)
}

// NewRegistry registers the built-in handlers and then the plugins found under
// pluginsPath. A plugin may not reuse a built-in plugin id.
func NewRegistry(log *slog.Logger, pluginsPath string, deps protocol.Dependencies) (*registry.Registry, error) {
	reg := registry.NewRegistry(log)

	for _, factory := range nativeHandlers() {
		if err := reg.RegisterFactory(factory, deps); err != nil {
			return nil, err
		}
	}

	if pluginsPath == "" {
		return reg, nil
	}

	plugins, err := reg.LoadHandlerPlugins(pluginsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load plugins: %w", err)
	}

	for _, factory := range plugins {
		if err := reg.RegisterFactory(factory, deps); err != nil {
			return nil, err
		}
	}

	return reg, nil
}
