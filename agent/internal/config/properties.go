package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// readProperties parses a flat key=value file. YAML files are accepted when
// the extension says so; nested YAML values are rejected.
func readProperties(path string) (map[string]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
		props := map[string]string{}
		if err := yaml.Unmarshal(data, &props); err != nil {
			return nil, fmt.Errorf("config: parse yaml %q: %w", path, err)
		}
		return props, nil
	default:
		props, err := godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("config: parse properties %q: %w", path, err)
		}
		return props, nil
	}
}

func exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
