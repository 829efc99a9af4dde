package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/bryanwahyu/formpulse/internal/domain/analysis"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	require.NoError(t, err)
	require.Equal(t, "claude-sonnet-4-6", cfg.ModelName())
	require.Equal(t, "https://api.anthropic.com/v1/messages", cfg.Inference.Endpoint)
	require.Equal(t, 2048, cfg.Inference.MaxTokens)
	require.Equal(t, 60*time.Second, cfg.Inference.Timeout)
	require.Equal(t, 4, cfg.Inference.MaxRetries)
	require.Equal(t, 10*time.Second, cfg.Inference.BackoffStep)
	require.Equal(t, []string{"screencapture", "-x"}, cfg.Capture.Command)
	require.Equal(t, "/tmp/fa_screen.png", cfg.Capture.Path)
	require.Equal(t, 1500*time.Millisecond, cfg.Feedback.Pause)
	require.Equal(t, 'b', cfg.TriggerLetter())
	require.Equal(t, "", cfg.Addr())
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	p := writeFile(t, t.TempDir(), "formpulse.yaml", `
inference:
  model: claude-opus-x
  timeout: 5s
capture:
  command: ["gnome-screenshot", "-f"]
trigger:
  letter: k
server:
  port: 8088
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	require.Equal(t, "claude-opus-x", cfg.Inference.Model)
	require.Equal(t, 5*time.Second, cfg.Inference.Timeout)
	require.Equal(t, 2048, cfg.Inference.MaxTokens)
	require.Equal(t, []string{"gnome-screenshot", "-f"}, cfg.Capture.Command)
	require.Equal(t, 'k', cfg.TriggerLetter())
	require.Equal(t, "127.0.0.1:8088", cfg.Addr())
}

func TestLoadRejectsInvalid(t *testing.T) {
	p := writeFile(t, t.TempDir(), "bad.yaml", `
inference:
  timeout: 0s
trigger:
  letter: ab
`)
	_, err := Load(p)
	require.Error(t, err)
	require.Contains(t, err.Error(), "inference.timeout")
	require.Contains(t, err.Error(), "trigger.letter")
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"FORMPULSE_PROVIDER":  "openai",
		"FORMPULSE_MODEL":     "gpt-4o-mini",
		"FORMPULSE_ACTUATOR":  "/opt/vibrate",
		"FORMPULSE_PORT":      "9000",
		"FORMPULSE_LOG_LEVEL": "debug",
	}
	cfg := Default()
	require.NoError(t, cfg.applyEnv(func(k string) string { return env[k] }))
	require.Equal(t, ProviderOpenAI, cfg.Inference.Provider)
	require.Equal(t, "gpt-4o-mini", cfg.ModelName())
	cfg.Inference.Model = ""
	require.Equal(t, "gpt-4o", cfg.ModelName())
	require.Equal(t, "/opt/vibrate", cfg.Actuator.Path)
	require.Equal(t, 9000, cfg.Server.Port)
	require.Equal(t, "debug", cfg.Log.Level)

	err := cfg.applyEnv(func(k string) string {
		if k == "FORMPULSE_PORT" {
			return "http"
		}
		return ""
	})
	require.Error(t, err)
}

func TestValidateArchive(t *testing.T) {
	cfg := Default()
	cfg.Archive.Enabled = true
	require.Error(t, cfg.Validate())
	cfg.Archive.Endpoint = "127.0.0.1:9000"
	require.NoError(t, cfg.Validate())
}

func TestLoadCredentialFromEnv(t *testing.T) {
	key, err := LoadCredential(ProviderAnthropic, func(k string) string {
		if k == "ANTHROPIC_API_KEY" {
			return " sk-ant-env "
		}
		return ""
	}, nil)
	require.NoError(t, err)
	require.Equal(t, "sk-ant-env", key)
}

func TestLoadCredentialFromEnvFiles(t *testing.T) {
	parent := t.TempDir()
	exeDir := filepath.Join(parent, "bin")
	require.NoError(t, os.Mkdir(exeDir, 0o700))
	writeFile(t, parent, ".env", "ANTHROPIC_API_KEY=\"sk-ant-parent\"\n")
	noenv := func(string) string { return "" }

	key, err := LoadCredential(ProviderAnthropic, noenv, EnvFiles(exeDir))
	require.NoError(t, err)
	require.Equal(t, "sk-ant-parent", key)

	writeFile(t, exeDir, ".env", "OTHER=1\nANTHROPIC_API_KEY='sk-ant-local'\n")
	key, err = LoadCredential(ProviderAnthropic, noenv, EnvFiles(exeDir))
	require.NoError(t, err)
	require.Equal(t, "sk-ant-local", key)

	writeFile(t, exeDir, ".env", "OPENAI_API_KEY=sk-openai\n")
	key, err = LoadCredential(ProviderOpenAI, noenv, EnvFiles(exeDir))
	require.NoError(t, err)
	require.Equal(t, "sk-openai", key)
}

func TestLoadCredentialMissing(t *testing.T) {
	_, err := LoadCredential(ProviderAnthropic, func(string) string { return "" }, EnvFiles(t.TempDir()))
	require.Error(t, err)
	require.True(t, errors.Is(err, domain.ErrCredentialMissing))
	require.Equal(t, domain.KindCredentialMissing, domain.KindOf(err))
}
