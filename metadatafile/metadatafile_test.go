package metadatafile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metadata")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

const jsonTable = `{
	"age": {"type": "numeric", "name": "Age"},
	"country": {
		"type": "categorical",
		"name": "Country",
		"categories": [{"id": 1, "name": "Argentina", "numeric_value": null, "missing": false}]
	}
}`

const yamlTable = `
age:
  type: numeric
  name: Age
country:
  type: categorical
  name: Country
`

func TestLoadJSON(t *testing.T) {
	table, err := Load(makeTempFile(t, jsonTable))
	require.NoError(t, err)
	require.Contains(t, table, "age")
	age := table["age"].(map[string]interface{})
	assert.Equal(t, "numeric", age["type"])
	assert.Equal(t, "Age", age["name"])
}

func TestLoadYAML(t *testing.T) {
	table, err := Load(makeTempFile(t, yamlTable))
	require.NoError(t, err)
	require.Contains(t, table, "country")
	country := table["country"].(map[string]interface{})
	assert.Equal(t, "categorical", country["type"])
}

func TestLoadUnwrapsCrunchTableDocument(t *testing.T) {
	wrapped := `{
		"element": "crunch:table",
		"metadata": {"age": {"type": "numeric", "name": "Age"}}
	}`
	table, err := Load(makeTempFile(t, wrapped))
	require.NoError(t, err)
	assert.Contains(t, table, "age")
	assert.NotContains(t, table, "element")
}

func TestLoadValidation(t *testing.T) {
	_, err := Load(makeTempFile(t, `{"age": {"name": "Age"}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing type")

	_, err = Load(makeTempFile(t, `{"age": {"type": "numeric"}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing name")

	_, err = Load(makeTempFile(t, `{"age": 42}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be an object")
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.Error(t, err)

	_, err = Load(makeTempFile(t, `{not json`))
	assert.Error(t, err)

	_, err = Load(makeTempFile(t, "\t- just\n- a\n- list\n"))
	assert.Error(t, err)
}

func TestDetectJSON(t *testing.T) {
	assert.True(t, detectJSON([]byte(`{"a": 1}`)))
	assert.True(t, detectJSON([]byte("  \n\t {\"a\": 1}")))
	assert.False(t, detectJSON([]byte("a: 1\n")))
}
