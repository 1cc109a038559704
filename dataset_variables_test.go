package scrunch

import (
	"context"
	"net/http"
	"testing"

	"github.com/launchdarkly/go-test-helpers/v3/httphelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Crunch-io/scrunch/testhelpers/shojiservices"
)

// multipleResponseDataset builds a dataset holding one multiple_response
// variable ("brands") with two subvariables, plus the tuples the recode
// operations resolve their results against.
func multipleResponseDataset(t *testing.T) (*Dataset, *shojiservices.Site, <-chan httphelpers.HTTPRequestInfo) {
	t.Helper()
	site := shojiservices.NewConnectedSite()
	site.AddDataset("ds1", "My Data", map[string]map[string]interface{}{
		"v1": shojiservices.VariableTuple("v1", "brands", "Brands", "multiple_response"),
		"v2": shojiservices.VariableTuple("v2", "brands_comb", "Brands combined", "categorical"),
		"v3": shojiservices.VariableTuple("v3", "country", "Country", "categorical"),
		"v4": shojiservices.VariableTuple("v4", "region", "Region", "categorical"),
	})

	brandsURL := shojiservices.VariableURL("ds1", "v1")
	subvarsURL := brandsURL + "subvariables/"
	doc := shojiservices.EntityDocument(brandsURL, map[string]interface{}{"derivation": nil})
	doc["catalogs"] = map[string]interface{}{"subvariables": subvarsURL}
	site.Set(brandsURL, doc)
	site.Set(subvarsURL, shojiservices.CatalogDocument(subvarsURL, map[string]interface{}{
		subvarsURL + "s1/": map[string]interface{}{"alias": "brands_1", "name": "Coke"},
		subvarsURL + "s2/": map[string]interface{}{"alias": "brands_2", "name": "Pepsi"},
	}))

	countryURL := shojiservices.VariableURL("ds1", "v3")
	site.Set(countryURL, shojiservices.EntityDocument(countryURL, map[string]interface{}{
		"categories": []interface{}{
			map[string]interface{}{"id": 1, "name": "Argentina", "numeric_value": nil, "missing": false},
			map[string]interface{}{"id": 2, "name": "Uruguay", "numeric_value": nil, "missing": false},
		},
		"derivation": nil,
	}))

	handler, requestsCh := httphelpers.RecordingHandler(site)
	client := connectTestClient(t, handler)
	ds, err := client.GetDataset(context.Background(), "ds1")
	require.NoError(t, err)
	drainRequests(requestsCh)
	return ds, site, requestsCh
}

func TestCreateVariableValidation(t *testing.T) {
	ds, _, _ := testDataset(t)
	ctx := context.Background()

	_, err := ds.CreateVariable(ctx, VariableDefinition{Type: "numeric", Name: "X"})
	var paramErr InvalidParamError
	assert.ErrorAs(t, err, &paramErr)

	_, err = ds.CreateVariable(ctx, VariableDefinition{Type: "weird", Name: "X", Alias: "x"})
	var typeErr InvalidTypeError
	assert.ErrorAs(t, err, &typeErr)

	_, err = ds.CreateVariable(ctx, VariableDefinition{Type: "datetime", Name: "When", Alias: "when"})
	require.ErrorAs(t, err, &paramErr)
	assert.Equal(t, "Resolution", paramErr.Param)

	_, err = ds.CreateVariable(ctx, VariableDefinition{Type: "multiple_response", Name: "MR", Alias: "mr"})
	require.ErrorAs(t, err, &paramErr)
	assert.Equal(t, "Subvariables", paramErr.Param)
}

func TestCreateVariablePayload(t *testing.T) {
	ds, site, requestsCh := testDataset(t)
	// The new variable must be resolvable after creation.
	variablesURL := shojiservices.DatasetURL("ds1") + "variables/"
	catalog := shojiservices.CatalogDocument(variablesURL, map[string]interface{}{
		shojiservices.VariableURL("ds1", "v1"): shojiservices.VariableTuple("v1", "age", "Age", "numeric"),
		shojiservices.VariableURL("ds1", "v2"): shojiservices.VariableTuple("v2", "country", "Country", "categorical"),
		shojiservices.VariableURL("ds1", "v3"): shojiservices.VariableTuple("v3", "when", "When", "datetime"),
	})
	catalog["orders"] = map[string]interface{}{"hier": variablesURL + "hier/"}
	site.Set(variablesURL, catalog)

	v, err := ds.CreateVariable(context.Background(), VariableDefinition{
		Type:       "datetime",
		Name:       "When",
		Alias:      "when",
		Resolution: "D",
	})
	require.NoError(t, err)
	assert.Equal(t, "when", v.Alias())

	payload := findRequest(t, drainRequests(requestsCh), http.MethodPost, "/api/datasets/ds1/variables/")
	body := innerBody(t, payload)
	assert.Equal(t, "datetime", body["type"])
	assert.Equal(t, "D", body["resolution"])
	assert.NotContains(t, body, "description")
}

func TestCombineCategoriesPayload(t *testing.T) {
	ds, _, requestsCh := multipleResponseDataset(t)

	v, err := ds.CombineCategories(context.Background(), "country", []Combination{
		{ID: 1, Name: "South America", CombinedIDs: []int{1, 2}},
		{ID: 99, Name: "Other", Missing: true, CombinedIDs: []int{}},
	}, "Region", "region", "Recoded country")
	require.NoError(t, err)
	assert.Equal(t, "region", v.Alias())

	payload := findRequest(t, drainRequests(requestsCh), http.MethodPost, "/api/datasets/ds1/variables/")
	body := innerBody(t, payload)
	assert.Equal(t, "Region", body["name"])
	assert.Equal(t, "region", body["alias"])
	derivation := body["derivation"].(map[string]interface{})
	assert.Equal(t, "combine_categories", derivation["function"])
	args := derivation["args"].([]interface{})
	assert.Equal(t, shojiservices.VariableURL("ds1", "v3"), args[0].(map[string]interface{})["var"])
	combined := args[1].(map[string]interface{})["value"].([]interface{})
	require.Len(t, combined, 2)
	first := combined[0].(map[string]interface{})
	assert.Equal(t, "South America", first["name"])
	assert.Equal(t, []interface{}{float64(1), float64(2)}, first["combined_ids"])
	assert.Equal(t, true, combined[1].(map[string]interface{})["missing"])
}

func TestCombineResponsesPayload(t *testing.T) {
	ds, _, requestsCh := multipleResponseDataset(t)

	v, err := ds.CombineResponses(context.Background(), "brands", []Combination{
		{ID: 1, Name: "Any cola", CombinedIDs: []int{1, 2}},
	}, "Brands combined", "brands_comb", "")
	require.NoError(t, err)
	assert.Equal(t, "brands_comb", v.Alias())

	payload := findRequest(t, drainRequests(requestsCh), http.MethodPost, "/api/datasets/ds1/variables/")
	derivation := innerBody(t, payload)["derivation"].(map[string]interface{})
	assert.Equal(t, "combine_responses", derivation["function"])
	args := derivation["args"].([]interface{})
	assert.Equal(t, shojiservices.VariableURL("ds1", "v1"), args[0].(map[string]interface{})["variable"])
	responses := args[1].(map[string]interface{})["value"].([]interface{})
	require.Len(t, responses, 1)
	response := responses[0].(map[string]interface{})
	assert.Equal(t, "brands_comb_1", response["alias"])
	subvarsURL := shojiservices.VariableURL("ds1", "v1") + "subvariables/"
	assert.ElementsMatch(t,
		[]interface{}{subvarsURL + "s1/", subvarsURL + "s2/"},
		response["combined_ids"])
}

func TestCombineCategoriesDispatchesMultipleResponse(t *testing.T) {
	ds, _, requestsCh := multipleResponseDataset(t)

	_, err := ds.CombineCategories(context.Background(), "brands", []Combination{
		{ID: 1, Name: "Any", CombinedIDs: []int{1}},
	}, "Brands combined", "brands_comb", "")
	require.NoError(t, err)

	payload := findRequest(t, drainRequests(requestsCh), http.MethodPost, "/api/datasets/ds1/variables/")
	derivation := innerBody(t, payload)["derivation"].(map[string]interface{})
	assert.Equal(t, "combine_responses", derivation["function"])
}

func TestCombineResponsesUnknownSubvariable(t *testing.T) {
	ds, _, _ := multipleResponseDataset(t)

	_, err := ds.CombineResponses(context.Background(), "brands", []Combination{
		{ID: 1, CombinedIDs: []int{7}},
	}, "X", "x", "")
	var refErr InvalidReferenceError
	require.ErrorAs(t, err, &refErr)
	assert.Equal(t, "brands_7", refErr.Reference)
}

func TestReorderSubvariables(t *testing.T) {
	ds, _, requestsCh := multipleResponseDataset(t)
	v, err := ds.Variable(context.Background(), "brands")
	require.NoError(t, err)
	drainRequests(requestsCh)

	require.NoError(t, v.ReorderSubvariables(context.Background(), []string{"brands_2", "brands_1"}))

	// Subvariables are patched bare, not wrapped in a shoji:entity.
	payload := findRequest(t, drainRequests(requestsCh), http.MethodPatch, "/api/datasets/ds1/variables/v1/")
	assert.NotContains(t, payload, "element")
	subvarsURL := shojiservices.VariableURL("ds1", "v1") + "subvariables/"
	assert.Equal(t,
		[]interface{}{subvarsURL + "s2/", subvarsURL + "s1/"},
		payload["subvariables"])

	var paramErr InvalidParamError
	assert.ErrorAs(t, v.ReorderSubvariables(context.Background(), []string{"brands_1"}), &paramErr)
	assert.ErrorAs(t, v.ReorderSubvariables(context.Background(), []string{"brands_1", "brands_1"}), &paramErr)
}
