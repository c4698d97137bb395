package memcache

import (
	"log/slog"
	"sync"

	"github.com/janzheng/mcp-navigator/internal/domain"
	"github.com/janzheng/mcp-navigator/internal/observability"
)

// SchemaCache memoizes discovered functions per (tool name, server URL) for
// the life of the process. Concurrent writers race; the last one wins.
type SchemaCache struct {
	mu      sync.RWMutex
	entries map[string][]domain.ToolFunction
	metrics *observability.Metrics
	logger  *slog.Logger
}

// New creates an empty cache. metrics may be nil.
func New(metrics *observability.Metrics, logger *slog.Logger) *SchemaCache {
	return &SchemaCache{
		entries: make(map[string][]domain.ToolFunction),
		metrics: metrics,
		logger:  logger.With("component", "schema_cache"),
	}
}

func key(toolName, serverURL string) string {
	return toolName + "\x00" + serverURL
}

// Get returns a copy of the cached functions. A cached empty list is a hit.
func (c *SchemaCache) Get(toolName, serverURL string) ([]domain.ToolFunction, bool) {
	c.mu.RLock()
	fns, ok := c.entries[key(toolName, serverURL)]
	c.mu.RUnlock()

	c.metrics.SchemaCacheLookup(ok)
	if !ok {
		return nil, false
	}
	return copyFunctions(fns), true
}

// Set stores a copy of functions.
func (c *SchemaCache) Set(toolName, serverURL string, functions []domain.ToolFunction) {
	stored := copyFunctions(functions)
	c.mu.Lock()
	c.entries[key(toolName, serverURL)] = stored
	size := len(c.entries)
	c.mu.Unlock()
	c.logger.Debug("Cached functions",
		slog.String("tool_name", toolName),
		slog.String("server_url", serverURL),
		slog.Int("count", len(stored)),
		slog.Int("entries", size))
}

// Len reports the number of cached entries.
func (c *SchemaCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func copyFunctions(fns []domain.ToolFunction) []domain.ToolFunction {
	out := make([]domain.ToolFunction, len(fns))
	copy(out, fns)
	return out
}
