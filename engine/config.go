package engine

import (
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"

	"github.com/wippyai/wasm-jit/vm"
)

// Config holds configuration for engine creation
type Config struct {
	// CacheDir persists native code between processes. Empty keeps the
	// compilation cache in memory.
	CacheDir string

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32

	// EnableThreads enables the WebAssembly threads proposal (experimental).
	EnableThreads bool
}

func (c *Config) apply(rc wazero.RuntimeConfig) wazero.RuntimeConfig {
	if c == nil {
		return rc
	}
	if c.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(c.MemoryLimitPages)
	}
	if c.EnableThreads {
		rc = rc.WithCoreFeatures(api.CoreFeaturesV2 | experimental.CoreFeaturesThreads)
	}
	return rc
}

// applyOptions layers per-compile options over the engine config.
func applyOptions(rc wazero.RuntimeConfig, opts vm.CompilerOptions) wazero.RuntimeConfig {
	if opts.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(opts.MemoryLimitPages)
	}
	return rc.WithDebugInfoEnabled(opts.DebugInfo)
}
