package memcache_test

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janzheng/mcp-navigator/internal/adapter/outbound/memcache"
	"github.com/janzheng/mcp-navigator/internal/domain"
)

func newCache() *memcache.SchemaCache {
	return memcache.New(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSchemaCache_GetSet(t *testing.T) {
	search := []domain.ToolFunction{{Name: "search", Description: "Web search"}}

	tests := []struct {
		name      string
		setTool   string
		setURL    string
		set       []domain.ToolFunction
		getTool   string
		getURL    string
		wantHit   bool
		wantValue []domain.ToolFunction
	}{
		{
			name:    "miss on empty cache",
			getTool: "deepwiki", getURL: "https://mcp.deepwiki.com/mcp",
			wantHit: false,
		},
		{
			name:    "hit on same key",
			setTool: "parallel", setURL: "https://mcp.parallel.ai", set: search,
			getTool: "parallel", getURL: "https://mcp.parallel.ai",
			wantHit: true, wantValue: search,
		},
		{
			name:    "empty list is cached",
			setTool: "empty", setURL: "https://empty.example.com", set: []domain.ToolFunction{},
			getTool: "empty", getURL: "https://empty.example.com",
			wantHit: true, wantValue: []domain.ToolFunction{},
		},
		{
			name:    "nil list is cached as empty",
			setTool: "nil", setURL: "https://nil.example.com", set: nil,
			getTool: "nil", getURL: "https://nil.example.com",
			wantHit: true, wantValue: []domain.ToolFunction{},
		},
		{
			name:    "same name different url misses",
			setTool: "search", setURL: "https://a.example.com", set: search,
			getTool: "search", getURL: "https://b.example.com",
			wantHit: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCache()
			if tt.setTool != "" {
				c.Set(tt.setTool, tt.setURL, tt.set)
			}
			got, ok := c.Get(tt.getTool, tt.getURL)
			assert.Equal(t, tt.wantHit, ok)
			if tt.wantHit {
				assert.Equal(t, tt.wantValue, got)
			}
		})
	}
}

func TestSchemaCache_CopiesOnReadAndWrite(t *testing.T) {
	c := newCache()
	fns := []domain.ToolFunction{{Name: "original"}}
	c.Set("t", "u", fns)
	fns[0].Name = "mutated-after-set"

	got, ok := c.Get("t", "u")
	require.True(t, ok)
	assert.Equal(t, "original", got[0].Name)

	got[0].Name = "mutated-after-get"
	again, _ := c.Get("t", "u")
	assert.Equal(t, "original", again[0].Name)
}

func TestSchemaCache_ConcurrentAccess(t *testing.T) {
	c := newCache()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Set("tool", "https://x.example.com", []domain.ToolFunction{{Name: "f"}})
		}()
		go func() {
			defer wg.Done()
			c.Get("tool", "https://x.example.com")
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, c.Len())
}
