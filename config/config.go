package config

import (
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/wippyai/wasm-jit/engine"
	"github.com/wippyai/wasm-jit/errors"
	"github.com/wippyai/wasm-jit/jit"
	"github.com/wippyai/wasm-jit/profile"
	"github.com/wippyai/wasm-jit/vm"
)

// Config is the jitrun configuration file.
type Config struct {
	JIT     JIT     `toml:"jit"`
	Backend Backend `toml:"backend"`
	Log     Log     `toml:"log"`
}

// JIT configures the compilation manager.
type JIT struct {
	Workers      int    `toml:"workers"`
	Mode         string `toml:"mode"`
	HotThreshold uint64 `toml:"hot_threshold"`
	ProfilePath  string `toml:"profile_path"`
}

// Backend configures the wazero runtimes.
type Backend struct {
	MemoryLimitPages uint32 `toml:"memory_limit_pages"`
	CacheDir         string `toml:"cache_dir"`
	EnableThreads    bool   `toml:"enable_threads"`
	DebugInfo        bool   `toml:"debug_info"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		JIT: JIT{
			Mode:         vm.ModeAdaptive.String(),
			HotThreshold: jit.DefaultHotThreshold,
		},
		Log: Log{
			Level:  "info",
			Format: FormatConsole,
		},
	}
}

// Load reads path over the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidData).
			Detail("%s: failed to parse TOML", path).
			Cause(err).
			Build()
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Detail("%s: unknown keys: %s", path, strings.Join(keys, ", ")).
			Build()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that TOML decoding cannot.
func (c *Config) Validate() error {
	if c.JIT.Workers < 0 {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Detail("jit.workers must not be negative, got %d", c.JIT.Workers).
			Value(c.JIT.Workers).
			Build()
	}
	if _, err := vm.ParseMode(c.JIT.Mode); err != nil {
		return err
	}
	return c.Log.validate()
}

// Mode returns the configured execution mode.
func (c *Config) Mode() vm.Mode {
	m, _ := vm.ParseMode(c.JIT.Mode)
	return m
}

// Engine returns the wazero runtime settings.
func (c *Config) Engine() *engine.Config {
	return &engine.Config{
		CacheDir:         c.Backend.CacheDir,
		MemoryLimitPages: c.Backend.MemoryLimitPages,
		EnableThreads:    c.Backend.EnableThreads,
	}
}

// Manager returns the compilation manager options. prof may be nil.
func (c *Config) Manager(prof *profile.Profile) *jit.Options {
	return &jit.Options{
		Workers:      c.JIT.Workers,
		HotThreshold: c.JIT.HotThreshold,
		Compiler: vm.CompilerOptions{
			MemoryLimitPages: c.Backend.MemoryLimitPages,
			DebugInfo:        c.Backend.DebugInfo,
		},
		Profile: prof,
	}
}
