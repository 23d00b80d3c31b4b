// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC as the process timezone.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Resolve _FILE suffix variables from mounted secret files.
//  4. If APP_ENV != "local", resolve _SSM_PARAM suffix variables via the
//     SecretProvider.
//  5. Use envconfig to process struct tags and populate the Config struct.
//  6. Populate BuildInfo from linker-injected variables.
//  7. Validate the struct using go-playground/validator.
package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is a diagnostic error type returned by LoadConfig to aid debugging.
// It wraps a ConfigErrorType and an underlying error message.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

const (
	// fileSuffix marks a variable whose value is a path to a secret file,
	// e.g. DATABASE_URL_FILE=/run/secrets/database_url.
	fileSuffix = "_FILE"
	// ssmParamSuffix marks a variable whose value is an SSM parameter path,
	// e.g. SENDGRID_API_KEY_SSM_PARAM=/prod/upkeep/sendgrid_key.
	ssmParamSuffix = "_SSM_PARAM"
)

// secretEnvVars are the only variables that may be supplied by reference.
// Other *_FILE variables in the environment (SSL_CERT_FILE and the like)
// belong to other software and are ignored.
var secretEnvVars = map[string]bool{
	"DATABASE_URL":     true,
	"SENDGRID_API_KEY": true,
	"ADMIN_API_KEY":    true,
}

// localEnv is the APP_ENV value that bypasses SSM resolution.
const localEnv = "local"

// envLookup matches os.LookupEnv and allows injection for testing.
type envLookup func(key string) (string, bool)

// envSet matches os.Setenv and allows injection for testing.
type envSet func(key, value string) error

// environ matches os.Environ and allows injection for testing.
type environ func() []string

// loaderDeps holds the injectable dependencies for the loader, enabling
// testing without mutating global state.
type loaderDeps struct {
	lookupEnv envLookup
	setEnv    envSet
	environ   environ
	files     SecretProvider
}

// defaultDeps returns the standard OS-backed dependencies.
func defaultDeps() loaderDeps {
	return loaderDeps{
		lookupEnv: os.LookupEnv,
		setEnv:    os.Setenv,
		environ:   os.Environ,
		files:     NewFileSecretProvider(),
	}
}

// LoadConfig loads and validates the configuration.
//
// The provider resolves _SSM_PARAM references outside local environments; it
// may be nil when no such references are set. _FILE references are always
// resolved from the filesystem.
func LoadConfig(provider SecretProvider) (*Config, error) {
	return loadConfigWithDeps(provider, defaultDeps())
}

// loadConfigWithDeps is the internal implementation of LoadConfig that accepts
// injectable dependencies for testing.
func loadConfigWithDeps(provider SecretProvider, deps loaderDeps) (*Config, error) {
	// Step 1: Enforce UTC; schedule zones are applied explicitly.
	time.Local = time.UTC

	// Step 2: godotenv does NOT override existing environment variables.
	_ = godotenv.Load()

	// Step 3: Secret files.
	if err := resolveRefs(fileSuffix, deps.files, deps); err != nil {
		return nil, err
	}

	// Step 4: SSM parameters.
	appEnv, _ := deps.lookupEnv("APP_ENV")
	if appEnv != localEnv {
		if err := resolveRefs(ssmParamSuffix, provider, deps); err != nil {
			return nil, err
		}
	}

	// Step 5: envconfig with an empty prefix reads the exact tag names.
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	// Step 6
	cfg.Build = NewBuildInfo()

	// Step 7
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate runs struct validation on an already populated Config. Binaries
// that build a Config by hand (tests, job-runner overrides) call it directly.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}
	if cfg.Database.MinConns > cfg.Database.MaxConns {
		return &ConfigError{
			Type:    ErrValidation,
			Message: fmt.Sprintf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", cfg.Database.MinConns, cfg.Database.MaxConns),
		}
	}
	return nil
}

// resolveRefs scans the environment for variables ending in suffix, fetches
// the referenced secret values via the provider, and injects them back into
// the environment so that envconfig can process them.
//
// For example, DATABASE_URL_FILE=/run/secrets/db sets DATABASE_URL to the
// file's contents. A target variable that is already set is left alone.
func resolveRefs(suffix string, provider SecretProvider, deps loaderDeps) error {
	type binding struct {
		targetEnvVar string // e.g., DATABASE_URL
		ref          string // e.g., /run/secrets/db
	}

	var bindings []binding
	refToTarget := make(map[string][]string)

	for _, envEntry := range deps.environ() {
		key, value, ok := strings.Cut(envEntry, "=")
		if !ok || !strings.HasSuffix(key, suffix) {
			continue
		}

		targetEnvVar := strings.TrimSuffix(key, suffix)
		if !secretEnvVars[targetEnvVar] {
			continue
		}
		if _, exists := deps.lookupEnv(targetEnvVar); exists {
			continue
		}
		if value == "" {
			continue
		}

		bindings = append(bindings, binding{targetEnvVar: targetEnvVar, ref: value})
		refToTarget[value] = append(refToTarget[value], targetEnvVar)
	}

	if len(bindings) == 0 {
		return nil
	}

	if provider == nil {
		targetVars := make([]string, 0, len(bindings))
		for _, b := range bindings {
			targetVars = append(targetVars, b.targetEnvVar)
		}
		return &ConfigError{
			Type:    ErrSecretResolution,
			Message: fmt.Sprintf("a SecretProvider is required to resolve %s references: %s", suffix, strings.Join(targetVars, ", ")),
		}
	}

	refs := make([]string, 0, len(refToTarget))
	for ref := range refToTarget {
		refs = append(refs, ref)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resolved, err := provider.GetParametersBatch(ctx, refs)
	if err != nil {
		return &ConfigError{
			Type:    ErrSecretResolution,
			Message: fmt.Sprintf("failed to resolve %d %s references", len(refs), suffix),
			Err:     err,
		}
	}

	var missing []string
	for _, b := range bindings {
		value, ok := resolved[b.ref]
		if !ok {
			missing = append(missing, b.targetEnvVar)
			continue
		}
		if err := deps.setEnv(b.targetEnvVar, value); err != nil {
			return &ConfigError{
				Type:    ErrSecretResolution,
				Message: fmt.Sprintf("failed to set resolved value for %s", b.targetEnvVar),
				Err:     err,
			}
		}
	}
	if len(missing) > 0 {
		return &ConfigError{
			Type:    ErrSecretResolution,
			Message: fmt.Sprintf("%s references not resolved for: %s", suffix, strings.Join(missing, ", ")),
		}
	}

	return nil
}
