package memrepo

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/janzheng/mcp-navigator/internal/domain"
	"github.com/janzheng/mcp-navigator/internal/usecase"
)

// InMemoryToolRegistry is the local Tool Registry Store. It is filled from
// configuration at startup and read concurrently afterwards.
// NOTE: This implementation is not persistent and data will be lost on restart.
type InMemoryToolRegistry struct {
	mu     sync.RWMutex
	tools  map[string]domain.ToolDescriptor // Map tool name to descriptor
	logger *slog.Logger
}

// NewInMemoryToolRegistry creates an empty registry.
func NewInMemoryToolRegistry(logger *slog.Logger) *InMemoryToolRegistry {
	return &InMemoryToolRegistry{
		tools:  make(map[string]domain.ToolDescriptor),
		logger: logger.With("component", "mem_registry"),
	}
}

// Save stores the descriptors, replacing any with the same name. Descriptors
// are stored as local-source copies.
func (r *InMemoryToolRegistry) Save(ctx context.Context, tools []domain.ToolDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for i, tool := range tools {
		if tool.Name == "" {
			r.logger.Warn("Skipping tool with empty name during save", slog.Int("index", i))
			continue
		}
		stored := tool.Clone()
		stored.Source = domain.ToolSourceLocal
		if stored.RequireApproval == "" {
			stored.RequireApproval = domain.ApprovalNever
		}
		r.tools[tool.Name] = stored
		count++
	}
	r.logger.Info("Saved tool descriptors", slog.Int("count", count), slog.Int("total_tools", len(r.tools)))
	return nil
}

// List returns copies of all descriptors sorted by name.
func (r *InMemoryToolRegistry) List(ctx context.Context) ([]domain.ToolDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]domain.ToolDescriptor, 0, len(r.tools))
	for _, tool := range r.tools {
		list = append(list, tool.Clone())
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	r.logger.Debug("Listed tools from registry", slog.Int("count", len(list)))
	return list, nil
}

// FindToolByName returns a copy of the named descriptor.
func (r *InMemoryToolRegistry) FindToolByName(ctx context.Context, name string) (*domain.ToolDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	if !ok {
		r.logger.Debug("Tool not in local registry", slog.String("tool_name", name))
		return nil, usecase.ErrToolNotFound
	}
	out := tool.Clone()
	return &out, nil
}
