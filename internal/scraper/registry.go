// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package scraper

import (
	"log/slog"
	"sort"

	"github.com/taibuivan/yomira-worker/internal/platform/apperr"
)

// Registry resolves source names to their breaker-wrapped adapters.
type Registry struct {
	scrapers map[string]Scraper
}

// NewRegistry builds the shipped adapters behind one breaker each.
func NewRegistry(guard URLGuard, logger *slog.Logger) *Registry {
	registry := &Registry{scrapers: make(map[string]Scraper)}
	for _, adapter := range []Scraper{
		NewMangaDex(guard),
		NewComick(guard),
		NewMangaPark(guard),
	} {
		registry.scrapers[adapter.Name()] = WithBreaker(adapter, logger)
	}
	return registry
}

// Get returns the adapter for a source name.
//
// Returns:
//   - NotFound when no adapter is registered under the name.
func (registry *Registry) Get(source string) (Scraper, error) {
	adapter, found := registry.scrapers[source]
	if !found {
		return nil, apperr.NotFound("Scraper for source " + source)
	}
	return adapter, nil
}

// Sources lists the registered source names in stable order.
func (registry *Registry) Sources() []string {
	names := make([]string, 0, len(registry.scrapers))
	for name := range registry.scrapers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
