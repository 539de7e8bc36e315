package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigFileYAMLAndJSON(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "sim.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("nodes: 20\nloss: 0.25\nseed: 9\nwindow: 7\n"), 0o644))
	jsonPath := filepath.Join(dir, "sim.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"nodes": 20, "loss": 0.25, "seed": 9, "window": 7}`), 0o644))

	for _, path := range []string{yamlPath, jsonPath} {
		raw, err := loadConfigFile(path)
		require.NoError(t, err, path)

		cfg := runConfig{}
		cfg.Simulate.Fanout = 5
		require.NoError(t, applyConfig(&cfg, raw), path)
		require.Equal(t, 20, cfg.Simulate.Nodes, path)
		require.Equal(t, 0.25, cfg.Simulate.Loss, path)
		require.Equal(t, int64(9), cfg.Simulate.Seed, path)
		require.Equal(t, 7, cfg.Window, path)
		require.Equal(t, 5, cfg.Simulate.Fanout, "keys absent from the file keep their value")
	}
}

func TestApplyConfigIntegralLossFromYAML(t *testing.T) {
	cfg := runConfig{}
	require.NoError(t, applyConfig(&cfg, map[string]any{"loss": 1, "max_time": 30}))
	require.Equal(t, 1.0, cfg.Simulate.Loss)
	require.Equal(t, 30.0, cfg.Simulate.MaxTime)
}

func TestApplyConfigRejectsWrongType(t *testing.T) {
	cfg := runConfig{}
	require.Error(t, applyConfig(&cfg, map[string]any{"nodes": "many"}))
}

func TestApplyConfigRejectsFractionalIntegers(t *testing.T) {
	for _, key := range []string{"nodes", "fanout", "runs", "workers", "seed", "window", "degree"} {
		cfg := runConfig{}
		require.Error(t, applyConfig(&cfg, map[string]any{key: 10.7}), key)
		require.NoError(t, applyConfig(&cfg, map[string]any{key: 10.0}), key)
	}

	path := filepath.Join(t.TempDir(), "sim.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"nodes": 10.7}`), 0o644))
	raw, err := loadConfigFile(path)
	require.NoError(t, err)
	cfg := runConfig{}
	require.ErrorContains(t, applyConfig(&cfg, raw), `"nodes"`)
}

func TestOverrideFromFlagsOnlyTouchesSetFlags(t *testing.T) {
	cfg := runConfig{}
	cfg.Simulate.Nodes = 20
	cfg.Simulate.Runs = 3
	overrideFromFlags(&cfg,
		map[string]bool{"runs": true, "max-time": true},
		map[string]any{"nodes": 50, "runs": 7, "max-time": 12.5},
	)
	require.Equal(t, 20, cfg.Simulate.Nodes)
	require.Equal(t, 7, cfg.Simulate.Runs)
	require.Equal(t, 12.5, cfg.Simulate.MaxTime)
}

func TestLoadConfigFileMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yml")
	require.NoError(t, os.WriteFile(path, []byte("nodes: [unterminated\n"), 0o644))
	_, err := loadConfigFile(path)
	require.Error(t, err)
}
