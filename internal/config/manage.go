package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
)

// KeyInfo is one row of "mamette config show".
type KeyInfo struct {
	Key    string
	EnvVar string
	Value  string
	// FromEnv is set when EnvVar currently overrides the file value.
	FromEnv bool
}

// choices restricts string keys to a closed set of values.
var choices = map[string][]string{
	"generation.provider": {"dalle", "replicate"},
	"storage.driver":      {"sqlite", "postgres"},
	"log.format":          {"text", "json"},
	"log.level":           {"debug", "info", "warn", "error"},
}

// ShowAll lists every non-secret key with its effective value in cfg.
func ShowAll(cfg Config) []KeyInfo {
	var out []KeyInfo
	for _, s := range specs {
		if s.secret {
			continue
		}
		out = append(out, KeyInfo{
			Key:     s.key,
			EnvVar:  s.env,
			Value:   fmt.Sprint(s.extract(cfg)),
			FromEnv: os.Getenv(s.env) != "",
		})
	}
	return out
}

// SetKey persists a non-secret key in the config file.
func SetKey(key, value string) error {
	return setKeyWith(newFileBackend(configFilePath()), key, value)
}

// UnsetKey removes a key from the config file so its default applies again.
func UnsetKey(key string) error {
	s, err := lookupSettable(key)
	if err != nil {
		return err
	}
	return newFileBackend(configFilePath()).Delete(s.key)
}

func lookupSettable(key string) (keySpec, error) {
	i := slices.IndexFunc(specs, func(s keySpec) bool { return s.key == key })
	if i < 0 {
		return keySpec{}, fmt.Errorf("unknown config key %q (valid keys: %s)", key, strings.Join(ValidKeys(), ", "))
	}
	s := specs[i]
	if s.secret {
		return keySpec{}, fmt.Errorf("%s is a secret; set %s or add %q to the secrets file", key, s.env, s.account)
	}
	return s, nil
}

func setKeyWith(b ConfigBackend, key, value string) error {
	s, err := lookupSettable(key)
	if err != nil {
		return err
	}

	switch s.typ {
	case kInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s wants an integer: %w", key, err)
		}
		if n < 0 {
			return fmt.Errorf("%s must not be negative", key)
		}
		return b.SetInt(key, n)
	case kBool:
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s wants true or false: %w", key, err)
		}
		return b.SetString(key, strconv.FormatBool(v))
	default:
		if allowed, ok := choices[key]; ok && !slices.Contains(allowed, value) {
			return fmt.Errorf("%s must be one of %s", key, strings.Join(allowed, ", "))
		}
		return b.SetString(key, value)
	}
}

// ValidKeys returns the keys "config set" accepts.
func ValidKeys() []string {
	var keys []string
	for _, s := range specs {
		if !s.secret {
			keys = append(keys, s.key)
		}
	}
	return keys
}
