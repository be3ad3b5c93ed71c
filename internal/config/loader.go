package config

import (
	"fmt"
	"sort"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load reads and validates the pipeline document at path.
func Load(path string) (*Document, error) {
	data, err := file.Provider(path).ReadBytes()
	if err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	doc, err := Parse(data)
	if err != nil {
		return nil, err
	}
	doc.Path = path
	return doc, nil
}

// Parse parses and validates a YAML pipeline document.
func Parse(data []byte) (*Document, error) {
	raw, err := yaml.Parser().Unmarshal(data)
	if err != nil {
		return nil, &ConfigurationError{Msg: "config must be a YAML mapping", Err: err}
	}

	var missing []string
	for _, section := range RequiredSections {
		if _, ok := raw[section]; !ok {
			missing = append(missing, section)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &MissingSectionsError{Sections: missing}
	}

	k := koanf.New(".")
	// The confmap provider gets an empty delimiter so it does not unflatten
	// raw; adapter names and template_context keys may contain dots.
	if err := k.Load(confmap.Provider(raw, ""), nil); err != nil {
		return nil, &ConfigurationError{Msg: "failed to load config", Err: err}
	}

	var doc Document
	if err := k.UnmarshalWithConf("", &doc, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, &ConfigurationError{Msg: "unable to decode config", Err: err}
	}

	for name, a := range doc.Adapters {
		expandAdapterEnvVars(&a)
		doc.Adapters[name] = a
	}

	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks that every step is complete and references a declared
// adapter, and that every adapter declares a kind and a valid timeout.
// Kinds and required per-kind fields are checked when the adapter is first used.
func (d *Document) Validate() error {
	for _, name := range d.AdapterNames() {
		a := d.Adapters[name]
		if a.Adapter == "" {
			return &ConfigurationError{Msg: fmt.Sprintf("adapter %q: adapter kind not specified", name)}
		}
		if _, err := a.ToSettings(name); err != nil {
			return err
		}
	}

	for i, q := range d.Queries {
		switch {
		case q.Table == "":
			return &ConfigurationError{Msg: fmt.Sprintf("query %d: table is required", i)}
		case q.Adapter == "":
			return &ConfigurationError{Msg: fmt.Sprintf("query %d: adapter is required", i)}
		case q.Query == "":
			return &ConfigurationError{Msg: fmt.Sprintf("query %d: query is required", i)}
		}
		if _, ok := d.Adapters[q.Adapter]; !ok {
			return &ConfigurationError{
				Msg: fmt.Sprintf("query %d (%s): adapter %q is not declared in adapter_settings", i, q.Table, q.Adapter),
			}
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
