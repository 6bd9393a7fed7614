package config

import "os"

// APIKeySource represents where an API key comes from.
type APIKeySource string

const (
	KeySourceEnv    APIKeySource = "env"
	KeySourceConfig APIKeySource = "config"
	KeySourceNone   APIKeySource = "none"
)

// KeyStatus represents the status of an API key.
type KeyStatus struct {
	Name   string       `json:"name"`
	Source APIKeySource `json:"source"`
	IsSet  bool         `json:"is_set"`
	Masked string       `json:"masked,omitempty"` // e.g., "sk-...abc"
}

// CheckAPIKeys returns the status of the backend credentials. A local
// backend usually needs none.
func CheckAPIKeys(cfg *Config) []KeyStatus {
	statuses := []KeyStatus{
		checkKey("Backend API Key", cfg.LLM.APIKey, EnvPrefix+"_LLM_API_KEY"),
	}
	if auth, ok := cfg.LLM.Headers["authorization"]; ok {
		statuses = append(statuses, checkKey("Authorization Header", auth, ""))
	}
	return statuses
}

// checkKey checks if a key is set and where it came from.
func checkKey(name, value, envVar string) KeyStatus {
	status := KeyStatus{
		Name:  name,
		IsSet: value != "",
	}

	if value != "" {
		if envVar != "" && os.Getenv(envVar) != "" {
			status.Source = KeySourceEnv
		} else {
			status.Source = KeySourceConfig
		}
		status.Masked = MaskKey(value)
	} else {
		status.Source = KeySourceNone
	}

	return status
}

// MaskKey masks a secret for display, showing only first 3 and last 3 chars.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:3] + "..." + key[len(key)-3:]
}

// Redacted returns a copy of cfg with the API key and header values masked,
// safe to serve or print.
func (c *Config) Redacted() Config {
	out := *c
	if out.LLM.APIKey != "" {
		out.LLM.APIKey = MaskKey(out.LLM.APIKey)
	}
	if len(c.LLM.Headers) > 0 {
		out.LLM.Headers = make(map[string]string, len(c.LLM.Headers))
		for k, v := range c.LLM.Headers {
			out.LLM.Headers[k] = MaskKey(v)
		}
	}
	return out
}
