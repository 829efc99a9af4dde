package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	domain "github.com/bryanwahyu/formpulse/internal/domain/analysis"
)

// CredentialVar is the env var holding the API key for provider.
func CredentialVar(provider string) string {
	if provider == ProviderOpenAI {
		return "OPENAI_API_KEY"
	}
	return "ANTHROPIC_API_KEY"
}

// EnvFiles lists the .env candidates: next to the executable, then its parent directory.
func EnvFiles(exeDir string) []string {
	return []string{
		filepath.Join(exeDir, ".env"),
		filepath.Join(filepath.Dir(exeDir), ".env"),
	}
}

// LoadCredential resolves the API key: env var first, then the first .env file that defines it.
// Unreadable or missing files are skipped.
func LoadCredential(provider string, getenv func(string) string, files []string) (string, error) {
	name := CredentialVar(provider)
	if v := strings.TrimSpace(getenv(name)); v != "" {
		return v, nil
	}
	for _, f := range files {
		vals, err := godotenv.Read(f)
		if err != nil {
			continue
		}
		if v := strings.TrimSpace(vals[name]); v != "" {
			return v, nil
		}
	}
	return "", domain.NewError(domain.KindCredentialMissing, "", "credential", domain.ErrCredentialMissing)
}

// ExecutableDir is the directory of the running binary.
func ExecutableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}
