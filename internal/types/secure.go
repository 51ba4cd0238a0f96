package types

const redacted = "***REDACTED***"

// SecretString holds credentials loaded from configuration. Formatting and
// JSON encoding print a placeholder; Unmask returns the real value.
type SecretString string

func (s SecretString) String() string {
	return redacted
}

func (s SecretString) GoString() string {
	return redacted
}

func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

// Unmask returns the plaintext secret.
func (s SecretString) Unmask() string {
	return string(s)
}

// IsZero reports whether the secret is unset.
func (s SecretString) IsZero() bool {
	return s == ""
}
