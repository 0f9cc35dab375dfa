// Package config loads the TOML configuration of the jitrun tool and turns
// it into engine settings, compilation manager options and a zap logger.
//
//	[jit]
//	workers = 4
//	mode = "adaptive"        # interpret | adaptive | compiled
//	hot_threshold = 1000
//	profile_path = ".jit/profile.mp"
//
//	[backend]
//	memory_limit_pages = 256
//	cache_dir = ".jit/cache"
//	enable_threads = false
//	debug_info = false
//
//	[log]
//	level = "info"
//	format = "console"       # console | json
package config
