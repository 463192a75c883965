package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME and the working directory at temp dirs so neither a
// real config nor a stray .env leaks into the test.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("OPENROUTER_API_KEY", "")
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return home
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "none", c.Provider)
	assert.Equal(t, 50, c.MaxFileSizeMB)
	assert.Equal(t, []string{"csv", "tsv", "xlsx", "json"}, c.AllowedFileTypes)
	assert.Equal(t, 10, c.PreviewRows)
	assert.Equal(t, 30*time.Second, c.InsightTimeout())
	assert.Equal(t, time.Hour, c.CacheTTL())
	assert.Equal(t, 0.5, c.Profile.CategoricalMaxRatio)
	assert.Equal(t, 50, c.Profile.CategoricalMaxUnique)
	assert.Equal(t, "http://127.0.0.1:11434", c.OllamaHost)
	assert.Equal(t, "warn", c.LogLevel)
}

func TestEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("VIZLOOM_PROVIDER", "Ollama")
	t.Setenv("VIZLOOM_INSIGHT_TIMEOUT_SEC", "5")
	t.Setenv("VIZLOOM_PROFILE_NUMERIC_THRESHOLD", "0.75")
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "ollama", c.Provider)
	assert.Equal(t, 5*time.Second, c.InsightTimeout())
	assert.Equal(t, 0.75, c.Profile.NumericThreshold)
}

func TestOpenRouterKeyFallback(t *testing.T) {
	isolate(t)
	t.Setenv("OPENROUTER_API_KEY", "sk-or-test")
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-or-test", c.APIKey)
}

func TestDotEnvLoaded(t *testing.T) {
	isolate(t)
	require.NoError(t, os.WriteFile(".env", []byte("VIZLOOM_MODEL=dotenv/model\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("VIZLOOM_MODEL") })
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "dotenv/model", c.Model)
}

func TestSaveAndReload(t *testing.T) {
	home := isolate(t)
	c, err := Load("")
	require.NoError(t, err)
	require.NoError(t, c.Set("provider", "bedrock"))
	require.NoError(t, c.Set("insight.cache_ttl_sec", "0"))
	require.NoError(t, c.Set("allowed_file_types", "csv, json"))
	require.NoError(t, c.Set("profile.categorical_max_ratio", "0.3"))
	require.NoError(t, Save(c, ""))

	_, err = os.Stat(filepath.Join(home, ".vizloom", "config.yaml"))
	require.NoError(t, err)

	got, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "bedrock", got.Provider)
	assert.Zero(t, got.CacheTTL())
	assert.Equal(t, []string{"csv", "json"}, got.AllowedFileTypes)
	assert.Equal(t, 0.3, got.Profile.CategoricalMaxRatio)
}

func TestExplicitConfigFile(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model: custom/model\npreview_rows: 3\n"), 0o644))
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "custom/model", c.Model)
	assert.Equal(t, 3, c.PreviewRows)
}

func TestSetRejectsBadValues(t *testing.T) {
	c := &Global{}
	var uk *UnknownKeyError
	assert.ErrorAs(t, c.Set("nope", "1"), &uk)
	assert.Error(t, c.Set("provider", "openai"))
	assert.Error(t, c.Set("max_tokens", "-1"))
	assert.Error(t, c.Set("temperature", "3"))
	assert.Error(t, c.Set("log_format", "xml"))
	assert.NoError(t, c.Set("retry_max_attempts", "5"))
	assert.Equal(t, 5, c.RetryMaxAttempts)
	for _, k := range Keys {
		err := c.Set(k, "x")
		assert.NotErrorAs(t, err, &uk, k)
	}
}
