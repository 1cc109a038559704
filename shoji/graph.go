package shoji

import (
	"encoding/json"
	"fmt"

	"github.com/launchdarkly/go-jsonstream/v3/jreader"
)

// Order is a shoji:order document: a nested graph of entity references and
// named groups that controls display order.
type Order struct {
	Element string         `json:"element"`
	Self    string         `json:"self,omitempty"`
	Graph   []GraphElement `json:"graph"`
}

// GraphElement is one element of an order graph: either an entity URL or a
// named group of further elements. Exactly one of URL and Group is set.
type GraphElement struct {
	URL   string
	Group *GraphGroup
}

// GraphGroup is a named group inside an order graph.
type GraphGroup struct {
	Name     string
	Elements []GraphElement
}

// MarshalJSON writes the element in its wire form: a bare URL string for
// references, or a single-key object for groups.
func (el GraphElement) MarshalJSON() ([]byte, error) {
	if el.Group != nil {
		elements := el.Group.Elements
		if elements == nil {
			elements = []GraphElement{}
		}
		return json.Marshal(map[string][]GraphElement{el.Group.Name: elements})
	}
	return json.Marshal(el.URL)
}

// UnmarshalJSON accepts either wire form of a graph element.
func (el *GraphElement) UnmarshalJSON(data []byte) error {
	r := jreader.NewReader(data)
	*el = readGraphElement(&r)
	return r.Error()
}

// ParseOrder reads a shoji:order document. The graph is an array whose elements
// are heterogeneous (strings or group objects), so this uses a streaming parse
// rather than struct decoding.
func ParseOrder(data []byte) (*Order, error) {
	r := jreader.NewReader(data)
	var ord Order
	for obj := r.Object(); obj.Next(); {
		switch string(obj.Name()) {
		case "element":
			ord.Element = r.String()
		case "self":
			ord.Self = r.String()
		case "graph":
			ord.Graph = readGraphElements(&r)
		}
	}
	if err := r.Error(); err != nil {
		return nil, err
	}
	if ord.Element != OrderElement {
		return nil, fmt.Errorf("expected a %s document, got %q", OrderElement, ord.Element)
	}
	return &ord, nil
}

func readGraphElements(r *jreader.Reader) []GraphElement {
	var out []GraphElement
	for arr := r.Array(); arr.Next(); {
		out = append(out, readGraphElement(r))
	}
	return out
}

func readGraphElement(r *jreader.Reader) GraphElement {
	av := r.Any()
	switch av.Kind {
	case jreader.StringValue:
		return GraphElement{URL: av.String}
	case jreader.ObjectValue:
		group := &GraphGroup{}
		for obj := av.Object; obj.Next(); {
			group.Name = string(obj.Name())
			group.Elements = readGraphElements(r)
		}
		return GraphElement{Group: group}
	default:
		r.AddError(fmt.Errorf("unexpected value of kind %v in order graph", av.Kind))
		return GraphElement{}
	}
}
