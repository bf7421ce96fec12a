// config_utils.go - environment variable documentation helpers
//
// This module contains:
// - EnvVar: metadata struct for a documented environment variable
// - AsMap: returns every configuration knob with its current value, for
//   --help's "Environment Variables" appendix
package envconfig

import "fmt"

// EnvVar describes one environment variable for CLI help output.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap returns all configuration knobs keyed by variable name.
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"LLAMA2_LOG_LEVEL":   {"LLAMA2_LOG_LEVEL", LogLevel(), "Log verbosity: debug, info, warn, error (default: info)"},
		"LLAMA2_NUM_THREADS": {"LLAMA2_NUM_THREADS", NumThreads(), "Worker pool size for matmul/attention (default: number of CPUs)"},
		"LLAMA2_SEED":        {"LLAMA2_SEED", seedValue(), "Fallback RNG seed used when -s is not given"},
	}
}

func seedValue() string {
	if seed, ok := Seed(); ok {
		return fmt.Sprintf("%d", seed)
	}
	return ""
}
