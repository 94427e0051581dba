package host

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// ModuleConfig is one configured module instance.
type ModuleConfig struct {
	Name    string
	Source  string
	Section Section
}

// LoadConfig reads the host INI file. Every section with a source option
// configures one module; other sections are ignored.
func LoadConfig(path string) ([]ModuleConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("ini")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var modules []ModuleConfig
	for name, raw := range v.AllSettings() {
		values, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		source, ok := values["source"].(string)
		if !ok || strings.TrimSpace(source) == "" {
			continue
		}

		section := make(Section, len(values))
		for k, val := range values {
			section[strings.ToLower(k)] = val
		}
		modules = append(modules, ModuleConfig{
			Name:    name,
			Source:  strings.TrimSpace(source),
			Section: section,
		})
	}

	sort.Slice(modules, func(i, j int) bool {
		return modules[i].Name < modules[j].Name
	})
	return modules, nil
}
