// Package config centralizes environment-variable and CLI-flag driven
// configuration: the remote credential, base-URL/output-directory
// overrides, and the date-window group's convenience-flag resolution
// (spec.md §6), following the env-lookup style of the example corpus's
// LoadFromEnv helpers.
package config

import (
	"os"

	"github.com/pocketsync/reconcile/internal/synerrors"
)

const (
	envAPIKey    = "POCKETSYNC_API_KEY"
	envBaseURL   = "POCKETSYNC_BASE_URL"
	envOutputDir = "POCKETSYNC_OUTPUT_DIR"
)

// Env holds the process's environment-derived configuration.
type Env struct {
	APIKey    string
	BaseURL   string
	OutputDir string
}

// LoadEnv reads the remote credential, base-URL override, and
// output-directory override from the environment (spec.md §6,
// "Environment"). A missing API key is a UserInputError only for the
// commands that need one; LoadEnv itself never fails.
func LoadEnv() Env {
	return Env{
		APIKey:    os.Getenv(envAPIKey),
		BaseURL:   os.Getenv(envBaseURL),
		OutputDir: os.Getenv(envOutputDir),
	}
}

// RequireAPIKey returns the configured API key or a UserInputError
// naming the missing environment variable.
func (e Env) RequireAPIKey() (string, error) {
	if e.APIKey == "" {
		return "", &synerrors.UserInputError{Msg: envAPIKey + " is not set"}
	}
	return e.APIKey, nil
}
