// Package schemas holds the JSON Schemas that LLM responses are checked against.
package schemas

import (
	"embed"
	"fmt"
	"sort"
)

// Schema file names.
const (
	RankedResults    = "ranked_results.schema.json"
	TranslationBatch = "translation_batch.schema.json"
)

//go:embed *.schema.json
var files embed.FS

// Load returns the raw content of an embedded schema.
func Load(name string) (string, error) {
	data, err := files.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("schema %s not found: %w", name, err)
	}
	return string(data), nil
}

// Names lists the embedded schema files, sorted.
func Names() []string {
	entries, err := files.ReadDir(".")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}
