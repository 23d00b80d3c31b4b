package config

import "context"

// SecretProvider abstracts the retrieval of secrets referenced from the
// environment. SSMProvider reads AWS SSM Parameter Store; FileSecretProvider
// reads mounted secret files.
type SecretProvider interface {
	// GetParametersBatch resolves every key it can. Returns a map of
	// key -> plaintext value; unresolvable keys are omitted or reported as
	// an error, depending on the backend.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
