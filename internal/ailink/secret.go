package ailink

const redacted = "[REDACTED]"

// Secret wraps an API key so it cannot leak through fmt, zap or JSON.
// Expose returns the value for the Authorization header.
type Secret struct {
	value string
}

// NewSecret wraps value.
func NewSecret(value string) Secret {
	return Secret{value: value}
}

func (s Secret) String() string {
	return redacted
}

func (s Secret) GoString() string {
	return "ailink.Secret{" + redacted + "}"
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

func (s Secret) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

// Expose returns the underlying value.
func (s Secret) Expose() string {
	return s.value
}

// IsEmpty reports whether no value is held.
func (s Secret) IsEmpty() bool {
	return s.value == ""
}
