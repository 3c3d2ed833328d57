package config

import (
	"os"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	m := NewManagerAt(dir)

	if m.Exists() {
		t.Fatal("config should not exist yet")
	}
	cfg, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DataDir != dir || cfg.Store != "json" || cfg.Tone != "neutral" || cfg.ProbePolicy != "first" {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestSaveAndLoad(t *testing.T) {
	m := NewManagerAt(t.TempDir())
	in := &Config{
		LLMProvider:    "anthropic",
		APIKey:         "sk-test",
		Model:          "claude-3-5-haiku-latest",
		Store:          "sqlite",
		Tone:           "casual",
		ProbePolicy:    "random",
		ParallelRounds: true,
		ContextTokens:  2000,
	}
	if err := m.Save(in); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(m.GetConfigPath())
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config file mode = %o", perm)
	}

	out, err := m.Load()
	if err != nil {
		t.Fatal(err)
	}
	if out.LLMProvider != "anthropic" || out.APIKey != "sk-test" || out.Store != "sqlite" ||
		!out.ParallelRounds || out.ContextTokens != 2000 || out.DataDir != m.Dir() {
		t.Errorf("loaded = %+v", out)
	}
}

func TestLoadRejectsBrokenJSON(t *testing.T) {
	m := NewManagerAt(t.TempDir())
	if err := os.WriteFile(m.GetConfigPath(), []byte("{"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Load(); err == nil {
		t.Error("broken config accepted")
	}
}
