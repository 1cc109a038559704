package endpoints

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/Crunch-io/scrunch/interfaces"
)

var variableURLRegex = regexp.MustCompile(
	`^https?://.*/api/datasets/[\w]+/variables/[\w]+(/subvariables/[\w]*)?/?$`)

var datasetURLRegex = regexp.MustCompile(
	`^https?://.*/api/datasets/[\w]+/?$`)

// SelectBaseURI determines the API base URI from the service endpoints, falling
// back to the production default. The result always has a trailing slash so that
// relative resource paths can be appended directly.
func SelectBaseURI(serviceEndpoints interfaces.ServiceEndpoints) string {
	uri := serviceEndpoints.API
	if uri == "" {
		uri = DefaultAPIBaseURI
	}
	return strings.TrimSuffix(uri, "/") + "/"
}

// IsCustom returns true if the API endpoint has been overridden with a
// non-default value.
func IsCustom(serviceEndpoints interfaces.ServiceEndpoints) bool {
	uri := serviceEndpoints.API
	return uri != "" && strings.TrimSuffix(uri, "/") != strings.TrimSuffix(DefaultAPIBaseURI, "/")
}

// AddPath joins resource path segments onto a base URI, preserving the trailing
// slash that all shoji resource URLs carry.
func AddPath(baseURI string, parts ...string) string {
	uri := strings.TrimSuffix(baseURI, "/")
	for _, p := range parts {
		uri = uri + "/" + strings.Trim(p, "/")
	}
	return uri + "/"
}

// ResolveRelative resolves a possibly relative resource reference against a base
// URL. Shoji documents routinely contain references like "../123/".
func ResolveRelative(baseURL, ref string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return ref
	}
	rel, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(rel).String()
}

// IsVariableURL tests whether a reference is a variable (or subvariable) entity URL.
func IsVariableURL(ref string) bool {
	return variableURLRegex.MatchString(ref)
}

// IsDatasetURL tests whether a reference is a dataset entity URL.
func IsDatasetURL(ref string) bool {
	return datasetURLRegex.MatchString(ref)
}

// EntityID extracts the trailing identifier from an entity URL such as
// ".../datasets/abc123/" or ".../variables/000001/".
func EntityID(entityURL string) string {
	trimmed := strings.TrimSuffix(entityURL, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 {
		return trimmed[i+1:]
	}
	return trimmed
}
