package main

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"gossipsim/pkg/gossipsim"
)

// runConfig is everything a simulate/analyze invocation can take from a
// config file.
type runConfig struct {
	Simulate gossipsim.SimulateRequest
	Window   int
	Degree   int
}

// loadConfigFile decodes a JSON or YAML config (chosen by extension) into a
// raw map.
func loadConfigFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return raw, nil
}

// applyConfig overlays the values present in raw onto cfg. Keys the file
// does not mention keep their current value.
func applyConfig(cfg *runConfig, raw map[string]any) error {
	for key, value := range raw {
		var ok bool
		switch key {
		case "nodes":
			cfg.Simulate.Nodes, ok = asInt(value)
		case "fanout":
			cfg.Simulate.Fanout, ok = asInt(value)
		case "loss":
			cfg.Simulate.Loss, ok = asFloat64(value)
		case "interval":
			cfg.Simulate.Interval, ok = asFloat64(value)
		case "max_time":
			cfg.Simulate.MaxTime, ok = asFloat64(value)
		case "runs":
			cfg.Simulate.Runs, ok = asInt(value)
		case "workers":
			cfg.Simulate.Workers, ok = asInt(value)
		case "seed":
			cfg.Simulate.Seed, ok = asInt64(value)
		case "window":
			cfg.Window, ok = asInt(value)
		case "degree":
			cfg.Degree, ok = asInt(value)
		default:
			continue
		}
		if !ok {
			return fmt.Errorf("config key %q has unsupported value %v", key, value)
		}
	}
	return nil
}

// overrideFromFlags reapplies explicitly set flags so they win over the
// config file.
func overrideFromFlags(cfg *runConfig, set map[string]bool, flagValue map[string]any) {
	for name := range set {
		v, ok := flagValue[name]
		if !ok {
			continue
		}
		switch name {
		case "nodes":
			cfg.Simulate.Nodes = v.(int)
		case "fanout":
			cfg.Simulate.Fanout = v.(int)
		case "loss":
			cfg.Simulate.Loss = v.(float64)
		case "interval":
			cfg.Simulate.Interval = v.(float64)
		case "max-time":
			cfg.Simulate.MaxTime = v.(float64)
		case "runs":
			cfg.Simulate.Runs = v.(int)
		case "workers":
			cfg.Simulate.Workers = v.(int)
		case "seed":
			cfg.Simulate.Seed = v.(int64)
		case "window":
			cfg.Window = v.(int)
		case "degree":
			cfg.Degree = v.(int)
		}
	}
}

// asInt accepts JSON numbers only when they are integral.
func asInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return int(x), true
	default:
		return 0, false
	}
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return int64(x), true
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	default:
		return 0, false
	}
}
