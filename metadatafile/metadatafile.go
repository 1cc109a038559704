// Package metadatafile loads crunch:table variable metadata from local JSON
// or YAML files, for creating datasets from a definition kept under version
// control. The optional Reloader re-reads the file whenever it changes, for
// long-running ingest processes.
package metadatafile

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode"

	"gopkg.in/ghodss/yaml.v1"
)

// Table is crunch:table metadata: variable definitions keyed by alias. It is
// accepted directly by Client.CreateDataset.
type Table map[string]interface{}

// Load reads a metadata table from a JSON or YAML file. The file may hold
// either the bare alias-to-definition map or a full crunch:table document
// with the map under "metadata".
func Load(path string) (Table, error) {
	rawData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read metadata file: %w", err)
	}
	var data map[string]interface{}
	if detectJSON(rawData) {
		err = json.Unmarshal(rawData, &data)
	} else {
		err = yaml.Unmarshal(rawData, &data)
	}
	if err != nil {
		return nil, fmt.Errorf("error parsing metadata file %s: %w", path, err)
	}

	if element, ok := data["element"].(string); ok && element == "crunch:table" {
		metadata, ok := data["metadata"].(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("metadata file %s: crunch:table document has no metadata map", path)
		}
		data = metadata
	}

	table := Table(data)
	if err := table.validate(); err != nil {
		return nil, fmt.Errorf("metadata file %s: %w", path, err)
	}
	return table, nil
}

func (t Table) validate() error {
	for alias, raw := range t {
		def, ok := raw.(map[string]interface{})
		if !ok {
			return fmt.Errorf("variable %q: definition must be an object", alias)
		}
		if _, ok := def["type"].(string); !ok {
			return fmt.Errorf("variable %q: missing type", alias)
		}
		if _, ok := def["name"].(string); !ok {
			return fmt.Errorf("variable %q: missing name", alias)
		}
	}
	return nil
}

func detectJSON(rawData []byte) bool {
	// A JSON table must be an object, so it starts with '{'
	return strings.HasPrefix(strings.TrimLeftFunc(string(rawData), unicode.IsSpace), "{")
}
