package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/bbp-discovery/internal/config"
)

func TestApplyFlags(t *testing.T) {
	t.Setenv("LLM_BACKEND", "ollama")
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.Reference.Watch = true

	err = applyFlags(cfg, &options{
		backend:    "openai",
		model:      "gpt-4o-mini",
		references: []string{"docs/**/*.md"},
	})
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.LLM.Backend)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, []string{"docs/**/*.md"}, cfg.Reference.Patterns)
	assert.False(t, cfg.Reference.Watch)

	assert.Error(t, applyFlags(cfg, &options{backend: "carrier-pigeon"}))
}

func TestRootCommandFlags(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--out", "bbp.md", "--set", "industry=Retail", "--set", "module=Contracts"}))

	out, err := cmd.Flags().GetString("out")
	require.NoError(t, err)
	assert.Equal(t, "bbp.md", out)

	set, err := cmd.Flags().GetStringToString("set")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"industry": "Retail", "module": "Contracts"}, set)
}
