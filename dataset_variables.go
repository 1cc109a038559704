package scrunch

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/Crunch-io/scrunch/expr"
	"github.com/Crunch-io/scrunch/internal/endpoints"
	"github.com/Crunch-io/scrunch/shoji"
)

var validVariableTypes = map[string]bool{
	"text":              true,
	"numeric":           true,
	"categorical":       true,
	"datetime":          true,
	"multiple_response": true,
	"categorical_array": true,
}

var validDatetimeResolutions = map[string]bool{
	"Y": true, "Q": true, "M": true, "W": true, "D": true,
	"h": true, "m": true, "s": true, "ms": true,
}

// variables returns the dataset's variable catalog, fetching it at most once
// until the next mutation. Concurrent refreshes coalesce into one request.
func (ds *Dataset) variables(ctx context.Context) (*shoji.Catalog, error) {
	ds.mu.Lock()
	cached := ds.vars
	ds.mu.Unlock()
	if cached != nil {
		return cached, nil
	}

	v, err, _ := ds.varsSF.Do("variables", func() (interface{}, error) {
		variablesURL, err := ds.catalogURL("variables")
		if err != nil {
			return nil, err
		}
		catalog, err := ds.session.GetCatalog(ctx, variablesURL)
		if err != nil {
			return nil, err
		}
		ds.mu.Lock()
		ds.vars = catalog
		ds.mu.Unlock()
		return catalog, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*shoji.Catalog), nil
}

func (ds *Dataset) invalidateVariables() {
	ds.mu.Lock()
	ds.vars = nil
	ds.mu.Unlock()
}

// Variables lists the dataset's variables, ordered by alias.
func (ds *Dataset) Variables(ctx context.Context) ([]*Variable, error) {
	catalog, err := ds.variables(ctx)
	if err != nil {
		return nil, err
	}
	urls := maps.Keys(catalog.Index)
	slices.SortFunc(urls, func(a, b string) bool {
		return catalog.Index[a].String("alias") < catalog.Index[b].String("alias")
	})
	vars := make([]*Variable, 0, len(urls))
	for _, u := range urls {
		vars = append(vars, newVariable(ds, catalog.Index[u]))
	}
	return vars, nil
}

// Variable finds a variable by alias, name, ID, or URL.
func (ds *Dataset) Variable(ctx context.Context, ref string) (*Variable, error) {
	tuple, err := ds.variableTuple(ctx, ref)
	if err != nil {
		return nil, err
	}
	return newVariable(ds, tuple), nil
}

func (ds *Dataset) variableTuple(ctx context.Context, ref string) (shoji.Tuple, error) {
	catalog, err := ds.variables(ctx)
	if err != nil {
		return shoji.Tuple{}, err
	}
	if strings.Contains(ref, "://") {
		if tuple, ok := catalog.Index[ref]; ok {
			return tuple, nil
		}
		return shoji.Tuple{}, InvalidReferenceError{Reference: ref}
	}
	for _, field := range []string{"alias", "name", "id"} {
		for entityURL, tuple := range catalog.Index {
			if tuple.String(field) == ref {
				t := tuple
				t.EntityURL = entityURL
				return t, nil
			}
		}
	}
	return shoji.Tuple{}, InvalidReferenceError{Reference: ref}
}

func (ds *Dataset) variableURL(ctx context.Context, ref string) (string, error) {
	if endpoints.IsVariableURL(ref) {
		return ref, nil
	}
	tuple, err := ds.variableTuple(ctx, ref)
	if err != nil {
		return "", err
	}
	return tuple.EntityURL, nil
}

// resolveExpression rewrites {"variable": <alias>} terms into variable URLs
// so the expression can be sent to the server.
func (ds *Dataset) resolveExpression(ctx context.Context, e expr.Expression) (map[string]interface{}, error) {
	resolved, err := ds.resolveValue(ctx, map[string]interface{}(e))
	if err != nil {
		return nil, err
	}
	return resolved.(map[string]interface{}), nil
}

func (ds *Dataset) resolveValue(ctx context.Context, value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case expr.Expression:
		return ds.resolveValue(ctx, map[string]interface{}(v))
	case map[string]interface{}:
		if ref, ok := v["variable"].(string); ok && len(v) == 1 {
			u, err := ds.variableURL(ctx, ref)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{"variable": u}, nil
		}
		out := make(map[string]interface{}, len(v))
		for key, inner := range v {
			resolved, err := ds.resolveValue(ctx, inner)
			if err != nil {
				return nil, err
			}
			out[key] = resolved
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, inner := range v {
			resolved, err := ds.resolveValue(ctx, inner)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return value, nil
	}
}

// VariableDefinition describes a variable to create.
type VariableDefinition struct {
	// Type is one of text, numeric, categorical, datetime,
	// multiple_response, or categorical_array.
	Type        string
	Name        string
	Alias       string
	Description string
	Notes       string
	// Resolution is required for datetime variables: one of Y, Q, M, W, D,
	// h, m, s, ms.
	Resolution string
	// Categories define a categorical type's categories.
	Categories []CategoryDefinition
	// Subvariables are required for multiple_response and categorical_array.
	Subvariables []SubvariableDefinition
	// Values is the optional initial column of data.
	Values interface{}
}

// SubvariableDefinition describes one subvariable of an array variable.
type SubvariableDefinition struct {
	Name  string `json:"name"`
	Alias string `json:"alias"`
}

func (def *VariableDefinition) validate() error {
	if def.Alias == "" || def.Name == "" {
		return InvalidParamError{Param: "Name", Message: "name and alias are required"}
	}
	if !validVariableTypes[def.Type] {
		return InvalidTypeError{Operation: "create", Type: def.Type}
	}
	switch def.Type {
	case "datetime":
		if !validDatetimeResolutions[def.Resolution] {
			return InvalidParamError{Param: "Resolution", Message: "datetime variables need a resolution out of Y, Q, M, W, D, h, m, s, ms"}
		}
	case "multiple_response", "categorical_array":
		if len(def.Subvariables) == 0 {
			return InvalidParamError{Param: "Subvariables", Message: def.Type + " variables need subvariables"}
		}
	}
	return nil
}

func (def *VariableDefinition) body() map[string]interface{} {
	body := map[string]interface{}{
		"type":  def.Type,
		"name":  def.Name,
		"alias": def.Alias,
	}
	if def.Description != "" {
		body["description"] = def.Description
	}
	if def.Notes != "" {
		body["notes"] = def.Notes
	}
	if def.Resolution != "" {
		body["resolution"] = def.Resolution
	}
	if len(def.Categories) > 0 {
		body["categories"] = categoryBodies(def.Categories)
	}
	if len(def.Subvariables) > 0 {
		body["subvariables"] = def.Subvariables
	}
	if def.Values != nil {
		body["values"] = def.Values
	}
	return body
}

// CreateVariable creates a variable in the dataset and returns its proxy.
func (ds *Dataset) CreateVariable(ctx context.Context, def VariableDefinition) (*Variable, error) {
	if err := def.validate(); err != nil {
		return nil, err
	}
	variablesURL, err := ds.catalogURL("variables")
	if err != nil {
		return nil, err
	}
	if _, err := ds.session.PostAndWait(ctx, variablesURL, shoji.WrapEntity(def.body())); err != nil {
		return nil, err
	}
	ds.invalidateVariables()
	return ds.Variable(ctx, def.Alias)
}

// Combination describes one combined category (or response) of a recode: the
// new category's id and name and the source ids merged into it.
type Combination struct {
	ID          int
	Name        string
	Missing     bool
	CombinedIDs []int
}

// CombineCategories derives a new variable that recodes an existing one by
// merging categories. Multiple-response variables are dispatched to
// CombineResponses; for those the combination ids refer to subvariables.
func (ds *Dataset) CombineCategories(ctx context.Context, ref string, combinations []Combination, name, alias, description string) (*Variable, error) {
	if name == "" || alias == "" {
		return nil, InvalidParamError{Param: "name", Message: "name and alias are required"}
	}
	variable, err := ds.Variable(ctx, ref)
	if err != nil {
		return nil, err
	}
	if variable.Type() == "multiple_response" {
		return ds.CombineResponses(ctx, ref, combinations, name, alias, description)
	}

	combined := make([]interface{}, 0, len(combinations))
	for _, c := range combinations {
		combName := c.Name
		if combName == "" {
			combName = fmt.Sprintf("Category %d", c.ID)
		}
		combined = append(combined, map[string]interface{}{
			"id":           c.ID,
			"name":         combName,
			"missing":      c.Missing,
			"combined_ids": c.CombinedIDs,
		})
	}
	derivation := map[string]interface{}{
		"function": "combine_categories",
		"args": []interface{}{
			map[string]interface{}{"var": variable.URL()},
			map[string]interface{}{"value": combined},
		},
	}
	return ds.createDerived(ctx, name, alias, description, derivation)
}

// CombineResponses derives a categorical variable from a multiple-response
// one by merging its subvariables. Combination ids name the source
// subvariables by their response id.
func (ds *Dataset) CombineResponses(ctx context.Context, ref string, combinations []Combination, name, alias, description string) (*Variable, error) {
	if name == "" || alias == "" {
		return nil, InvalidParamError{Param: "name", Message: "name and alias are required"}
	}
	variable, err := ds.Variable(ctx, ref)
	if err != nil {
		return nil, err
	}
	subvariables, err := variable.subvariablesByAlias(ctx)
	if err != nil {
		return nil, err
	}

	parentAlias := variable.Alias()
	responses := make([]interface{}, 0, len(combinations))
	for _, c := range combinations {
		respName := c.Name
		if respName == "" {
			respName = fmt.Sprintf("Response %d", c.ID)
		}
		combinedURLs := make([]string, 0, len(c.CombinedIDs))
		for _, id := range c.CombinedIDs {
			sourceAlias := subvariableAlias(parentAlias, id)
			subvarURL, ok := subvariables[sourceAlias]
			if !ok {
				return nil, InvalidReferenceError{Reference: sourceAlias}
			}
			combinedURLs = append(combinedURLs, subvarURL)
		}
		responses = append(responses, map[string]interface{}{
			"name":         respName,
			"alias":        subvariableAlias(alias, c.ID),
			"combined_ids": combinedURLs,
		})
	}
	derivation := map[string]interface{}{
		"function": "combine_responses",
		"args": []interface{}{
			map[string]interface{}{"variable": variable.URL()},
			map[string]interface{}{"value": responses},
		},
	}
	return ds.createDerived(ctx, name, alias, description, derivation)
}

func (ds *Dataset) createDerived(ctx context.Context, name, alias, description string, derivation map[string]interface{}) (*Variable, error) {
	variablesURL, err := ds.catalogURL("variables")
	if err != nil {
		return nil, err
	}
	payload := shoji.WrapEntity(map[string]interface{}{
		"name":        name,
		"alias":       alias,
		"description": description,
		"derivation":  derivation,
	})
	if _, err := ds.session.PostAndWait(ctx, variablesURL, payload); err != nil {
		return nil, err
	}
	ds.invalidateVariables()
	return ds.Variable(ctx, alias)
}

func subvariableAlias(parentAlias string, responseID int) string {
	return fmt.Sprintf("%s_%d", parentAlias, responseID)
}
