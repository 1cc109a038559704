package endpoints

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Crunch-io/scrunch/interfaces"
)

func TestSelectBaseURI(t *testing.T) {
	assert.Equal(t, DefaultAPIBaseURI, SelectBaseURI(interfaces.ServiceEndpoints{}))
	assert.Equal(t, "https://corp.crunch.io/api/",
		SelectBaseURI(interfaces.ServiceEndpoints{API: "https://corp.crunch.io/api"}))
	assert.Equal(t, "https://corp.crunch.io/api/",
		SelectBaseURI(interfaces.ServiceEndpoints{API: "https://corp.crunch.io/api/"}))
}

func TestIsCustom(t *testing.T) {
	assert.False(t, IsCustom(interfaces.ServiceEndpoints{}))
	assert.False(t, IsCustom(interfaces.ServiceEndpoints{API: DefaultAPIBaseURI}))
	assert.True(t, IsCustom(interfaces.ServiceEndpoints{API: "https://corp.crunch.io/api/"}))
}

func TestAddPath(t *testing.T) {
	assert.Equal(t, "https://app.crunch.io/api/datasets/",
		AddPath("https://app.crunch.io/api/", "datasets"))
	assert.Equal(t, "https://app.crunch.io/api/datasets/abc/",
		AddPath("https://app.crunch.io/api", "datasets/", "abc"))
}

func TestResolveRelative(t *testing.T) {
	base := "https://app.crunch.io/api/datasets/abc/variables/"
	assert.Equal(t, "https://app.crunch.io/api/datasets/abc/variables/001/",
		ResolveRelative(base, "001/"))
	assert.Equal(t, "https://app.crunch.io/api/datasets/123/",
		ResolveRelative(base, "../../123/"))
	assert.Equal(t, "https://other.crunch.io/api/",
		ResolveRelative(base, "https://other.crunch.io/api/"))
}

func TestIsVariableURL(t *testing.T) {
	assert.True(t, IsVariableURL("https://app.crunch.io/api/datasets/abc/variables/001/"))
	assert.True(t, IsVariableURL("https://app.crunch.io/api/datasets/abc/variables/001/subvariables/002/"))
	assert.False(t, IsVariableURL("https://app.crunch.io/api/datasets/abc/"))
	assert.False(t, IsVariableURL("abc"))
}

func TestIsDatasetURL(t *testing.T) {
	assert.True(t, IsDatasetURL("https://app.crunch.io/api/datasets/abc/"))
	assert.True(t, IsDatasetURL("http://local.crunch.io/api/datasets/abc"))
	assert.False(t, IsDatasetURL("https://app.crunch.io/api/datasets/abc/variables/001/"))
}

func TestEntityID(t *testing.T) {
	assert.Equal(t, "abc", EntityID("https://app.crunch.io/api/datasets/abc/"))
	assert.Equal(t, "001", EntityID("https://app.crunch.io/api/datasets/abc/variables/001"))
}
