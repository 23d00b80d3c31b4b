package types

// redactedPlaceholder replaces secret values in logs and serialized output.
const redactedPlaceholder = "[redacted]"

// SecretString holds a credential (database URL, provider API key, admin
// key). fmt verbs and JSON encoding only ever see the placeholder; callers
// that need the raw value call Unmask.
type SecretString string

// String returns the placeholder.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// GoString keeps %#v from printing the raw value.
func (s SecretString) GoString() string {
	return redactedPlaceholder
}

// MarshalJSON encodes the placeholder.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redactedPlaceholder + `"`), nil
}

// Unmask returns the raw value. Keep call sites to the points where the
// secret is handed to a driver or an HTTP client.
func (s SecretString) Unmask() string {
	return string(s)
}

// IsSet reports whether a non-empty value was configured.
func (s SecretString) IsSet() bool {
	return s != ""
}
