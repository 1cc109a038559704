package shojiservices

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
)

// APIBase is the fixed base URI used by all canned documents. Requests are
// routed by path, so the host never resolves.
const APIBase = "http://crunch.test/api/"

// EntityDocument builds a shoji:entity with the given body and optional
// subresource maps.
func EntityDocument(self string, body map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"element": "shoji:entity",
		"self":    self,
		"body":    body,
	}
}

// CatalogDocument builds a shoji:catalog from an index of tuples keyed by
// entity URL.
func CatalogDocument(self string, index map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"element": "shoji:catalog",
		"self":    self,
		"index":   index,
	}
}

// OrderDocument builds a shoji:order with the given graph.
func OrderDocument(self string, graph []interface{}) map[string]interface{} {
	return map[string]interface{}{
		"element": "shoji:order",
		"self":    self,
		"graph":   graph,
	}
}

// ViewDocument builds a shoji:view with the given value.
func ViewDocument(self string, value interface{}) map[string]interface{} {
	return map[string]interface{}{
		"element": "shoji:view",
		"self":    self,
		"value":   value,
	}
}

type mutationResponse struct {
	status   int
	location string
	body     interface{}
}

// Site is an in-memory shoji resource tree. GET requests serve the document
// registered at the request path; mutating requests answer with the response
// configured for the path, defaulting to 204.
type Site struct {
	mu        sync.Mutex
	documents map[string]interface{}
	mutations map[string]mutationResponse
}

// NewSite creates an empty Site.
func NewSite() *Site {
	return &Site{
		documents: make(map[string]interface{}),
		mutations: make(map[string]mutationResponse),
	}
}

func pathOf(url string) string {
	if i := strings.Index(url, "://"); i >= 0 {
		rest := url[i+3:]
		if j := strings.Index(rest, "/"); j >= 0 {
			return rest[j:]
		}
		return "/"
	}
	return url
}

// Set registers the document served for GETs of the given URL or path.
func (s *Site) Set(url string, document interface{}) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[pathOf(url)] = document
	return s
}

// SetMutation configures the response for POST/PATCH/PUT/DELETE requests to
// the given URL or path. A non-empty location is sent as the Location header.
func (s *Site) SetMutation(url string, status int, location string, body interface{}) *Site {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mutations[pathOf(url)] = mutationResponse{status: status, location: location, body: body}
	return s
}

// ServeHTTP implements http.Handler.
func (s *Site) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	document, haveDocument := s.documents[r.URL.Path]
	mutation, haveMutation := s.mutations[r.URL.Path]
	s.mu.Unlock()

	if r.Method == http.MethodGet {
		if !haveDocument {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(document)
		return
	}

	if !haveMutation {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if mutation.location != "" {
		w.Header().Set("Location", mutation.location)
	}
	if mutation.body != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(mutation.status)
		_ = json.NewEncoder(w).Encode(mutation.body)
		return
	}
	w.WriteHeader(mutation.status)
}
