package shoji

import (
	"encoding/json"

	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
)

// Element type identifiers used by the protocol.
const (
	EntityElement  = "shoji:entity"
	CatalogElement = "shoji:catalog"
	OrderElement   = "shoji:order"
	ViewElement    = "shoji:view"
)

// Entity is a shoji:entity document: a single resource with a body of
// attributes plus references to its subresources.
type Entity struct {
	Element     string                   `json:"element"`
	Self        string                   `json:"self,omitempty"`
	Description string                   `json:"description,omitempty"`
	Body        map[string]ldvalue.Value `json:"body"`
	Catalogs    map[string]string        `json:"catalogs,omitempty"`
	Fragments   map[string]string        `json:"fragments,omitempty"`
	Views       map[string]string        `json:"views,omitempty"`
}

// BodyValue returns a body attribute, or a null value if absent.
func (e *Entity) BodyValue(key string) ldvalue.Value {
	if e.Body == nil {
		return ldvalue.Null()
	}
	return e.Body[key]
}

// BodyString returns a body attribute as a string, or "" if absent or not a string.
func (e *Entity) BodyString(key string) string {
	return e.BodyValue(key).StringValue()
}

// Tuple is the summary representation of a resource inside a catalog index.
type Tuple struct {
	// EntityURL is the absolute URL of the resource the tuple summarizes.
	EntityURL string
	// Body holds the tuple's attributes.
	Body map[string]ldvalue.Value
}

// UnmarshalJSON decodes the tuple attributes. The entity URL is the index key
// of the enclosing catalog and is filled in separately.
func (t *Tuple) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &t.Body)
}

// MarshalJSON encodes the tuple attributes.
func (t Tuple) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Body)
}

// Value returns a tuple attribute, or a null value if absent.
func (t Tuple) Value(key string) ldvalue.Value {
	return t.Body[key]
}

// String returns a tuple attribute as a string, or "" if absent or not a string.
func (t Tuple) String(key string) string {
	return t.Body[key].StringValue()
}

// Bool returns a tuple attribute as a bool, or false if absent or not a bool.
func (t Tuple) Bool(key string) bool {
	return t.Body[key].BoolValue()
}

// Catalog is a shoji:catalog document: an index of tuples keyed by entity URL.
type Catalog struct {
	Element string            `json:"element"`
	Self    string            `json:"self,omitempty"`
	Index   map[string]Tuple  `json:"index"`
	Orders  map[string]string `json:"orders,omitempty"`
}

// ByField returns the catalog tuples re-keyed by the string value of the given
// tuple attribute, such as "alias", "name", or "id". Tuples without that
// attribute are omitted; on duplicate values the last tuple wins.
func (c *Catalog) ByField(field string) map[string]Tuple {
	out := make(map[string]Tuple, len(c.Index))
	for _, tup := range c.Index {
		if v := tup.String(field); v != "" {
			out[v] = tup
		}
	}
	return out
}

// View is a shoji:view document, used for single-value resources such as
// progress references and export locations.
type View struct {
	Element string        `json:"element"`
	Self    string        `json:"self,omitempty"`
	Value   ldvalue.Value `json:"value"`
}

// WrapEntity wraps a body in a shoji:entity envelope, the form the API expects
// for POST and PATCH payloads.
func WrapEntity(body map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"element": EntityElement,
		"body":    body,
	}
}
