// Package config layers an optional YAML file under the command line. Keys
// are flag names; a file value only applies when the flag was not set
// explicitly, so the precedence stays flag, then environment, then file.
package config

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Apply reads the YAML file at path and sets every matching flag that is
// still unset. Unknown keys are rejected so typos fail loudly instead of
// silently running with defaults.
func Apply(fs *flag.FlagSet, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	var values map[string]any
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	for key, raw := range values {
		f := fs.Lookup(key)
		if f == nil {
			return fmt.Errorf("unknown option %q in %s", key, path)
		}
		if f.Changed {
			continue
		}
		if err := set(fs, key, raw); err != nil {
			return fmt.Errorf("option %q in %s: %w", key, path, err)
		}
	}
	return nil
}

func set(fs *flag.FlagSet, key string, raw any) error {
	switch value := raw.(type) {
	case []any:
		for _, item := range value {
			if _, nested := item.(map[string]any); nested {
				return fmt.Errorf("nested values are not supported")
			}
			if err := fs.Set(key, fmt.Sprint(item)); err != nil {
				return err
			}
		}
		return nil
	case map[string]any:
		return fmt.Errorf("nested values are not supported")
	default:
		return fs.Set(key, fmt.Sprint(value))
	}
}
