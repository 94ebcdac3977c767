// Package scenario builds and runs canned workloads against a kernel:
// producer/consumer message passing, priority-inheritance contention,
// mailbox request/reply, and semaphore hand-off. The CLI uses it for the
// run and bench commands; the tests use it as an end-to-end harness.
package scenario

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config selects and sizes the workloads for one run. The zero value is
// not runnable; use Default or Load.
type Config struct {
	// Scenarios lists which workloads run, in order. Empty means all.
	Scenarios []string `toml:"scenarios"`
	// TraceSize is the ring tracer capacity; 0 disables tracing.
	TraceSize int `toml:"trace_size"`

	MsgQ    MsgQConfig    `toml:"msgq"`
	Inherit InheritConfig `toml:"inherit"`
	Mbox    MboxConfig    `toml:"mbox"`
	Sem     SemConfig     `toml:"sem"`
}

// MsgQConfig sizes the producer/consumer workload.
type MsgQConfig struct {
	Producers int `toml:"producers"`
	Consumers int `toml:"consumers"`
	Capacity  int `toml:"capacity"`
	Messages  int `toml:"messages"` // per producer
}

// InheritConfig sizes the priority-inheritance workload.
type InheritConfig struct {
	Sections int `toml:"sections"` // critical sections taken by the holder
	HoldFor  int `toml:"hold_for"` // ticks spent inside each section
}

// MboxConfig sizes the mailbox request/reply workload.
type MboxConfig struct {
	Clients  int `toml:"clients"`
	Requests int `toml:"requests"` // per client
	Payload  int `toml:"payload"`  // bytes
}

// SemConfig sizes the semaphore hand-off workload.
type SemConfig struct {
	Rounds int `toml:"rounds"`
}

// Default returns the sizing used when no config file is given.
func Default() Config {
	return Config{
		TraceSize: 4096,
		MsgQ:      MsgQConfig{Producers: 2, Consumers: 2, Capacity: 8, Messages: 64},
		Inherit:   InheritConfig{Sections: 8, HoldFor: 3},
		Mbox:      MboxConfig{Clients: 3, Requests: 32, Payload: 48},
		Sem:       SemConfig{Rounds: 256},
	}
}

// Load reads a TOML scenario file, filling unset sections from Default.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("load scenario config: %w", err)
	}
	if undec := meta.Undecoded(); len(undec) > 0 {
		return Config{}, fmt.Errorf("load scenario config: unknown key %q", undec[0].String())
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.MsgQ.Capacity < 1 {
		return fmt.Errorf("msgq capacity must be at least 1, got %d", c.MsgQ.Capacity)
	}
	if c.MsgQ.Producers < 1 || c.MsgQ.Consumers < 1 {
		return fmt.Errorf("msgq needs at least one producer and one consumer")
	}
	if c.Mbox.Payload < 1 {
		return fmt.Errorf("mbox payload must be at least 1 byte, got %d", c.Mbox.Payload)
	}
	for _, name := range c.Scenarios {
		if _, ok := builtins[name]; !ok {
			return fmt.Errorf("unknown scenario %q", name)
		}
	}
	return nil
}

// Names returns the scenarios a config selects, defaulting to all.
func (c Config) Names() []string {
	if len(c.Scenarios) > 0 {
		return append([]string(nil), c.Scenarios...)
	}
	return allNames()
}
