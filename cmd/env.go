package cmd

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/licensehub/internal/config"
)

// ConfigCheckResult holds the result of the environment check
type ConfigCheckResult struct {
	Missing  []string          // required settings found nowhere
	Present  map[string]string // variables that are set, masked
	Warnings []string
}

// requiredSettings maps each required setting to the variables that can
// provide it, in precedence order.
var requiredSettings = map[string][]string{
	"database.url":    {"DATABASE_URL", config.EnvPrefix + "DATABASE_URL"},
	"auth.jwt_secret": {config.EnvPrefix + "AUTH_JWT_SECRET"},
}

var optionalVars = []string{
	config.EnvPrefix + "SERVER_PORT",
	config.EnvPrefix + "SERVER_PUBLIC_RATE_LIMIT",
	config.EnvPrefix + "JOBS_ENABLED",
	config.EnvPrefix + "LOG_LEVEL",
}

// CheckRequiredConfig reports which required settings the environment
// provides. Settings may still come from the config file.
func CheckRequiredConfig() *ConfigCheckResult {
	result := &ConfigCheckResult{Present: make(map[string]string)}

	keys := make([]string, 0, len(requiredSettings))
	for k := range requiredSettings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		found := false
		for _, v := range requiredSettings[key] {
			if val := os.Getenv(v); val != "" {
				result.Present[v] = maskSecret(val)
				found = true
			}
		}
		if !found {
			result.Missing = append(result.Missing, key)
		}
	}

	for _, v := range optionalVars {
		if val := os.Getenv(v); val != "" {
			result.Present[v] = val
		}
	}

	if secret := os.Getenv(config.EnvPrefix + "AUTH_JWT_SECRET"); secret != "" && len(secret) < 16 {
		result.Warnings = append(result.Warnings, "auth.jwt_secret is shorter than 16 characters and will be rejected")
	}
	return result
}

// PrintConfigCheck prints the check results
func PrintConfigCheck(result *ConfigCheckResult) {
	fmt.Println("=== Environment Check ===")

	if len(result.Missing) > 0 {
		fmt.Println("Missing (set them in the environment or the config file):")
		for _, v := range result.Missing {
			fmt.Printf("   - %s\n", v)
		}
		fmt.Println("")
	}

	if len(result.Present) > 0 {
		names := make([]string, 0, len(result.Present))
		for k := range result.Present {
			names = append(names, k)
		}
		sort.Strings(names)
		fmt.Println("Set:")
		for _, k := range names {
			fmt.Printf("   - %s = %s\n", k, result.Present[k])
		}
		fmt.Println("")
	}

	for _, w := range result.Warnings {
		fmt.Printf("Warning: %s\n", w)
	}

	if len(result.Missing) == 0 {
		fmt.Println("All required configuration is present")
	}
}

// maskSecret masks a secret value for display, showing only first and last 2 chars
func maskSecret(value string) string {
	if len(value) <= 8 {
		return "****"
	}
	return value[:2] + "****" + value[len(value)-2:]
}

// LoadEnvFile loads KEY=VALUE lines from filename into the environment,
// overwriting existing variables.
func LoadEnvFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimPrefix(strings.TrimSpace(key), "export ")
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if err := os.Setenv(strings.TrimSpace(key), value); err != nil {
			return fmt.Errorf("failed to set env var %s: %w", key, err)
		}
	}
	return scanner.Err()
}
