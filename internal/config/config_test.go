package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `
bot:
  username: test_bot
llm:
  base_url: https://api.example.com
  api_key: dummy
  model: gpt-4o
  timeout: 3s
telegram:
  token: "123:abc"
store:
  driver: sqlite
  path: /tmp/summarizer.db
  compression: zstd
server:
  host: 127.0.0.1
  port: "9090"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	tmp, err := os.CreateTemp(t.TempDir(), "cfg-*.yaml")
	require.NoError(t, err)
	_, err = tmp.WriteString(body)
	require.NoError(t, err)
	require.NoError(t, tmp.Close())
	return tmp.Name()
}

// TestLoad_FromConfigPath verifies that Load reads the file named by CONFIG_PATH
// and fills everything else from defaults.
func TestLoad_FromConfigPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeConfig(t, sampleConfig))

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "test_bot", cfg.Bot.Username)
	require.Equal(t, "gpt-4o", cfg.LLM.Model)
	require.Equal(t, 3*time.Second, cfg.LLM.Timeout)
	require.Equal(t, "sqlite", cfg.Store.Driver)
	require.Equal(t, "zstd", cfg.Store.Compression)
	require.Equal(t, "9090", cfg.Server.Port)

	require.Equal(t, 500, cfg.LLM.MaxTokens)
	require.Equal(t, 3000, cfg.Prompt.SummaryMaxTokens)
	require.Equal(t, 100, cfg.Prompt.SummaryChunkChars)
	require.Equal(t, 100, cfg.Prompt.DialogueMaxTurns)
	require.Equal(t, 10000, cfg.History.MaxMessages)
	require.Equal(t, DefaultSystemPrompt, cfg.Bot.SystemPrompt)
	require.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeConfig(t, sampleConfig))
	t.Setenv("SUMMARIZER_LLM_API_KEY", "from-env")
	t.Setenv("SUMMARIZER_HISTORY_MAX_MESSAGES", "50")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "from-env", cfg.LLM.APIKey)
	require.Equal(t, 50, cfg.History.MaxMessages)
}

func TestLoadFile_MissingExplicitPathFails(t *testing.T) {
	_, err := LoadFile("/nonexistent/summarizer.yaml")
	require.Error(t, err)
}

func TestValidate_MissingCredentials(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_PATH", "")

	cfg, err := Load()
	require.NoError(t, err, "defaults only")

	err = cfg.Validate()
	require.ErrorContains(t, err, "telegram.token")
	require.ErrorContains(t, err, "llm.api_key")
}
