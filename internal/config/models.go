package config

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var modelsYAML []byte

// EmbeddingModel describes one known embedding model.
type EmbeddingModel struct {
	Name      string `yaml:"name"`
	Provider  string `yaml:"provider"`
	Dimension int    `yaml:"dimension"`
}

// ModelRegistry is the immutable table of known embedding models. It is
// loaded once from the embedded YAML; lookups never mutate it.
type ModelRegistry struct {
	models map[string]EmbeddingModel
	names  []string
}

type modelsFile struct {
	Models []EmbeddingModel `yaml:"models"`
}

var (
	registryOnce sync.Once
	registry     *ModelRegistry
	registryErr  error
)

// Models returns the process-wide embedding model registry, parsing the
// embedded YAML on first call.
func Models() (*ModelRegistry, error) {
	registryOnce.Do(func() {
		var file modelsFile
		if err := yaml.Unmarshal(modelsYAML, &file); err != nil {
			registryErr = fmt.Errorf("config: failed to parse embedded model registry: %w", err)
			return
		}

		reg := &ModelRegistry{models: make(map[string]EmbeddingModel, len(file.Models))}
		for _, m := range file.Models {
			if m.Name == "" || m.Dimension <= 0 {
				registryErr = fmt.Errorf("config: invalid model registry entry %q (dimension %d)", m.Name, m.Dimension)
				return
			}
			reg.models[m.Name] = m
			reg.names = append(reg.names, m.Name)
		}
		registry = reg
	})
	return registry, registryErr
}

// Lookup returns the metadata for a model name.
func (r *ModelRegistry) Lookup(name string) (EmbeddingModel, bool) {
	m, ok := r.models[name]
	return m, ok
}

// Names returns the registered model names in file order.
func (r *ModelRegistry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}
