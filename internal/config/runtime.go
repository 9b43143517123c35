package config

import (
	"runtime"
	"runtime/debug"
)

// RuntimeConfig tunes the Go runtime for small hosts. Zero leaves the
// runtime default in place.
type RuntimeConfig struct {
	MaxProcs      int `yaml:"max_procs"`
	MemoryLimitMB int `yaml:"memory_limit_mb"`
	GCPercent     int `yaml:"gc_percent"`
}

// Apply applies the configuration to the runtime.
func (c RuntimeConfig) Apply() {
	if c.MaxProcs > 0 {
		runtime.GOMAXPROCS(c.MaxProcs)
	}
	if c.GCPercent > 0 {
		debug.SetGCPercent(c.GCPercent)
	}
	// Soft limit; the GC works harder as the heap approaches it.
	if c.MemoryLimitMB > 0 {
		debug.SetMemoryLimit(int64(c.MemoryLimitMB) * 1024 * 1024)
	}
}
