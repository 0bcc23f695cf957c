package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Parse decodes TOML on top of the defaults so missing keys keep their
// default value. Ranged values are clamped afterwards.
func Parse(data []byte) (Settings, error) {
	s := Defaults()
	if err := toml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("failed to parse settings: %w", err)
	}
	s.Clamp()
	return s, nil
}

func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read settings %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return Settings{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Encode returns the TOML form of the settings.
func Encode(s Settings) ([]byte, error) {
	return toml.Marshal(s)
}
