// control/loadfile.go
// Author: momentics <momentics@gmail.com>
//
// TOML tuning-file loader feeding a ConfigStore. Never accepts a base path
// from the file — the rendezvous base path is always supplied by the
// caller of ServerBind/ClientConnect, not configuration.

package control

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// LoadFile parses the TOML file at path and merges its top-level scalar
// keys into cs via SetConfig, triggering any registered reload hooks.
func LoadFile(path string, cs *ConfigStore) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("control: read config file: %w", err)
	}
	var values map[string]any
	if err := toml.Unmarshal(raw, &values); err != nil {
		return fmt.Errorf("control: parse config file %s: %w", path, err)
	}
	delete(values, "base_path")
	cs.SetConfig(values)
	return nil
}
