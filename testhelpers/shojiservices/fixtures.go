package shojiservices

import (
	"net/http"
	"sort"

	"github.com/launchdarkly/go-test-helpers/v3/httphelpers"

	"github.com/Crunch-io/scrunch/interfaces"
)

// Common fixture URLs, all under APIBase.
const (
	RootURL            = APIBase
	UserURL            = APIBase + "users/me/"
	DatasetsByNameURL  = APIBase + "datasets/by_name/"
	FeatureFlagURL     = APIBase + "feature_flag/"
	DatasetsCatalogURL = APIBase + "datasets/"
)

// DatasetURL returns the entity URL for a dataset id.
func DatasetURL(id string) string { return DatasetsCatalogURL + id + "/" }

// VariableURL returns the entity URL for a variable of a dataset.
func VariableURL(datasetID, variableID string) string {
	return DatasetURL(datasetID) + "variables/" + variableID + "/"
}

// APIRootDocument builds the API root entity advertising the catalogs and
// views a client discovers at connect time.
func APIRootDocument() map[string]interface{} {
	root := EntityDocument(RootURL, map[string]interface{}{})
	root["catalogs"] = map[string]interface{}{
		"datasets": DatasetsCatalogURL,
	}
	root["views"] = map[string]interface{}{
		"user":             UserURL,
		"datasets_by_name": DatasetsByNameURL,
		"feature_flag":     FeatureFlagURL,
	}
	return root
}

// NewConnectedSite builds a Site holding everything Connect touches: the API
// root and an inactive feature_flag view.
func NewConnectedSite() *Site {
	site := NewSite()
	site.Set(RootURL, APIRootDocument())
	site.Set(FeatureFlagURL, ViewDocument(FeatureFlagURL, map[string]interface{}{"active": false}))
	return site
}

// DatasetDocument builds a dataset entity with the standard subresources.
// Extra body attributes merge over the defaults.
func DatasetDocument(id, name string, body map[string]interface{}) map[string]interface{} {
	datasetURL := DatasetURL(id)
	fullBody := map[string]interface{}{
		"id":          id,
		"name":        name,
		"description": "",
		"streaming":   "no",
		"owner":       APIBase + "users/owner/",
		"permissions": map[string]interface{}{"edit": true},
	}
	for k, v := range body {
		fullBody[k] = v
	}
	doc := EntityDocument(datasetURL, fullBody)
	doc["catalogs"] = map[string]interface{}{
		"variables":  datasetURL + "variables/",
		"forks":      datasetURL + "forks/",
		"batches":    datasetURL + "batches/",
		"savepoints": datasetURL + "savepoints/",
	}
	doc["fragments"] = map[string]interface{}{
		"exclusion": datasetURL + "exclusion/",
		"settings":  datasetURL + "settings/",
	}
	doc["views"] = map[string]interface{}{
		"export": datasetURL + "export/",
	}
	return doc
}

// VariableTuple builds a variable catalog tuple.
func VariableTuple(id, alias, name, varType string) map[string]interface{} {
	return map[string]interface{}{
		"id":          id,
		"alias":       alias,
		"name":        name,
		"type":        varType,
		"description": "",
		"derived":     false,
		"discarded":   false,
	}
}

// AddDataset registers a dataset entity plus empty subresource catalogs on
// the site. Variable tuples are keyed by variable id.
func (s *Site) AddDataset(id, name string, variables map[string]map[string]interface{}) *Site {
	datasetURL := DatasetURL(id)
	s.Set(datasetURL, DatasetDocument(id, name, nil))

	variableIDs := make([]string, 0, len(variables))
	for variableID := range variables {
		variableIDs = append(variableIDs, variableID)
	}
	sort.Strings(variableIDs)

	index := map[string]interface{}{}
	graph := []interface{}{}
	for _, variableID := range variableIDs {
		variableURL := VariableURL(id, variableID)
		index[variableURL] = variables[variableID]
		graph = append(graph, variableURL)
	}
	variablesCatalog := CatalogDocument(datasetURL+"variables/", index)
	variablesCatalog["orders"] = map[string]interface{}{
		"hier": datasetURL + "variables/hier/",
	}
	s.Set(datasetURL+"variables/", variablesCatalog)
	s.Set(datasetURL+"variables/hier/", OrderDocument(datasetURL+"variables/hier/", graph))
	s.Set(datasetURL+"forks/", CatalogDocument(datasetURL+"forks/", map[string]interface{}{}))
	s.Set(datasetURL+"savepoints/", CatalogDocument(datasetURL+"savepoints/", map[string]interface{}{}))
	s.Set(datasetURL+"exclusion/", EntityDocument(datasetURL+"exclusion/", map[string]interface{}{}))
	s.Set(datasetURL+"settings/", EntityDocument(datasetURL+"settings/", map[string]interface{}{
		"viewers_can_export": false,
	}))
	return s
}

// HTTPConfigurationForHandler returns an HTTP configuration factory whose
// client routes every request to the handler, for use in a Config.
func HTTPConfigurationForHandler(handler http.Handler) interfaces.HTTPConfigurationFactory {
	return handlerHTTPConfigurationFactory{handler: handler}
}

type handlerHTTPConfigurationFactory struct {
	handler http.Handler
}

func (f handlerHTTPConfigurationFactory) CreateHTTPConfiguration(
	basic interfaces.BasicConfiguration,
) (interfaces.HTTPConfiguration, error) {
	headers := make(http.Header)
	if basic.APIKey != "" {
		headers.Set("Authorization", "Bearer "+basic.APIKey)
	}
	return interfaces.HTTPConfiguration{
		DefaultHeaders: headers,
		CreateHTTPClient: func() *http.Client {
			return httphelpers.ClientFromHandler(f.handler)
		},
	}, nil
}
