package config

import "fmt"

// apiKeyEnvs lists the environment variables consulted per provider, in order.
var apiKeyEnvs = map[string][]string{
	"anthropic": {"ANTHROPIC_API_KEY", "CLAUDE_API_KEY"},
	"gemini":    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

// ResolveAPIKey finds the credential for the configured provider. getenv is
// usually os.Getenv. It returns the key and the variable it came from.
func ResolveAPIKey(llm LLMConfig, getenv func(string) string) (key string, source string, err error) {
	names := apiKeyEnvs[llm.Provider]
	if llm.APIKeyEnv != "" {
		names = append([]string{llm.APIKeyEnv}, names...)
	}
	for _, name := range names {
		if v := getenv(name); v != "" {
			return v, name, nil
		}
	}
	return "", "", fmt.Errorf("no API key for provider %q (set one of %v)", llm.Provider, names)
}
