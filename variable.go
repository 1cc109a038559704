package scrunch

import (
	"context"
	"fmt"
	"sync"

	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"

	"github.com/Crunch-io/scrunch/shoji"
)

// Attributes of a variable entity that may be changed through Edit. The alias
// is additionally editable on non-derived variables of non-streaming
// datasets.
var variableMutableAttributes = map[string]bool{
	"name":          true,
	"description":   true,
	"uniform_basis": true,
	"view":          true,
	"notes":         true,
	"format":        true,
	"derived":       true,
}

// Variable is a proxy over a variable of a dataset. Summary attributes come
// from the catalog tuple; the full entity is fetched lazily when an
// operation needs it.
type Variable struct {
	dataset *Dataset
	session *shoji.Session

	mu     sync.Mutex
	tuple  shoji.Tuple
	entity *shoji.Entity
}

func newVariable(ds *Dataset, tuple shoji.Tuple) *Variable {
	return &Variable{dataset: ds, session: ds.session, tuple: tuple}
}

// URL returns the variable's entity URL.
func (v *Variable) URL() string { return v.tuple.EntityURL }

// ID returns the variable's identifier.
func (v *Variable) ID() string { return v.tuple.String("id") }

// Alias returns the variable's alias.
func (v *Variable) Alias() string { return v.tuple.String("alias") }

// Name returns the variable's name.
func (v *Variable) Name() string { return v.tuple.String("name") }

// Description returns the variable's description.
func (v *Variable) Description() string { return v.tuple.String("description") }

// Type returns the variable's type, such as "numeric" or "categorical".
func (v *Variable) Type() string { return v.tuple.String("type") }

// Notes returns the variable's notes field.
func (v *Variable) Notes() string { return v.tuple.String("notes") }

// Derived reports whether the variable is derived from others.
func (v *Variable) Derived() bool { return v.tuple.Bool("derived") }

// Discarded reports whether the variable is hidden.
func (v *Variable) Discarded() bool { return v.tuple.Bool("discarded") }

// resource fetches and caches the full variable entity.
func (v *Variable) resource(ctx context.Context) (*shoji.Entity, error) {
	v.mu.Lock()
	cached := v.entity
	v.mu.Unlock()
	if cached != nil {
		return cached, nil
	}
	entity, err := v.session.GetEntity(ctx, v.URL())
	if err != nil {
		return nil, err
	}
	v.mu.Lock()
	v.entity = entity
	v.mu.Unlock()
	return entity, nil
}

func (v *Variable) invalidate() {
	v.mu.Lock()
	v.entity = nil
	v.mu.Unlock()
	v.dataset.invalidateVariables()
}

func (v *Variable) aliasMutable() bool {
	return v.dataset.bodyString("streaming") == "no" && !v.Derived()
}

// Edit changes mutable variable attributes (name, description, notes, format,
// view, uniform_basis, derived). The alias may be edited only on non-derived
// variables of non-streaming datasets. Anything else is rejected with
// InvalidParamError.
func (v *Variable) Edit(ctx context.Context, attrs map[string]interface{}) error {
	for key := range attrs {
		if key == "alias" {
			if !v.aliasMutable() {
				return InvalidParamError{Param: "alias", Message: "alias is only editable on non-derived variables of non-streaming datasets"}
			}
			continue
		}
		if !variableMutableAttributes[key] {
			return InvalidParamError{Param: key, Message: "variable attribute is not editable"}
		}
	}
	if err := v.patchSelf(ctx, attrs); err != nil {
		return err
	}
	for key, value := range attrs {
		v.tuple.Body[key] = ldvalue.CopyArbitraryValue(value)
	}
	return nil
}

func (v *Variable) patchSelf(ctx context.Context, body map[string]interface{}) error {
	if err := v.session.Patch(ctx, v.URL(), shoji.WrapEntity(body)); err != nil {
		return err
	}
	v.invalidate()
	return nil
}

// Delete deletes the variable on the server.
func (v *Variable) Delete(ctx context.Context) error {
	if err := v.session.Delete(ctx, v.URL()); err != nil {
		return err
	}
	v.invalidate()
	return nil
}

// Hide discards the variable: it stays in the dataset but is omitted from
// views.
func (v *Variable) Hide(ctx context.Context) error {
	return v.patchSelf(ctx, map[string]interface{}{"discarded": true})
}

// Unhide restores a discarded variable.
func (v *Variable) Unhide(ctx context.Context) error {
	return v.patchSelf(ctx, map[string]interface{}{"discarded": false})
}

// Integrate materializes a derived variable, breaking its link to the
// variables it derives from. It does nothing on non-derived variables.
func (v *Variable) Integrate(ctx context.Context) error {
	if !v.Derived() {
		return nil
	}
	return v.patchSelf(ctx, map[string]interface{}{"derived": false})
}

func (v *Variable) categorical() error {
	if !categoricalTypes[v.Type()] {
		return InvalidTypeError{Operation: "categories", Type: v.Type()}
	}
	return nil
}

// derivedGuard rejects category edits on derived variables; their categories
// come from the derivation expression.
func (v *Variable) derivedGuard(ctx context.Context) error {
	entity, err := v.resource(ctx)
	if err != nil {
		return err
	}
	if !entity.BodyValue("derivation").IsNull() {
		return InvalidTypeError{Operation: "category editing", Type: "derived " + v.Type()}
	}
	return nil
}

// Categories returns the variable's categories. Only categorical types have
// them.
func (v *Variable) Categories(ctx context.Context) (CategoryList, error) {
	if err := v.categorical(); err != nil {
		return nil, err
	}
	entity, err := v.resource(ctx)
	if err != nil {
		return nil, err
	}
	raw := entity.BodyValue("categories")
	categories := make(CategoryList, 0, raw.Count())
	for i := 0; i < raw.Count(); i++ {
		categories = append(categories, categoryFromValue(raw.GetByIndex(i)))
	}
	return categories, nil
}

func (v *Variable) putCategories(ctx context.Context, categories []interface{}) error {
	return v.patchSelf(ctx, map[string]interface{}{"categories": categories})
}

// AddCategory adds a category. With beforeID non-zero the new category is
// inserted before the category with that id, otherwise it is appended.
func (v *Variable) AddCategory(ctx context.Context, def CategoryDefinition, beforeID int) error {
	if err := v.categorical(); err != nil {
		return err
	}
	if err := v.derivedGuard(ctx); err != nil {
		return err
	}
	if err := def.validate(); err != nil {
		return err
	}
	existing, err := v.Categories(ctx)
	if err != nil {
		return err
	}
	if _, ok := existing.ByID(def.ID); ok {
		return InvalidParamError{Param: "ID", Message: fmt.Sprintf("category id %d already exists", def.ID)}
	}

	entity, err := v.resource(ctx)
	if err != nil {
		return err
	}
	raw := entity.BodyValue("categories")
	categories := make([]interface{}, 0, raw.Count()+1)
	inserted := false
	for i := 0; i < raw.Count(); i++ {
		value := raw.GetByIndex(i)
		if beforeID != 0 && value.GetByKey("id").IntValue() == beforeID {
			categories = append(categories, def.body())
			inserted = true
		}
		categories = append(categories, value)
	}
	if beforeID != 0 && !inserted {
		return InvalidReferenceError{Reference: fmt.Sprintf("category id %d", beforeID)}
	}
	if !inserted {
		categories = append(categories, def.body())
	}
	return v.putCategories(ctx, categories)
}

// EditCategory updates the category with def.ID, replacing its editable
// attributes with the definition's.
func (v *Variable) EditCategory(ctx context.Context, def CategoryDefinition) error {
	if err := v.categorical(); err != nil {
		return err
	}
	if err := v.derivedGuard(ctx); err != nil {
		return err
	}
	if err := def.validate(); err != nil {
		return err
	}
	existing, err := v.Categories(ctx)
	if err != nil {
		return err
	}
	categories := make([]interface{}, 0, len(existing))
	found := false
	for _, c := range existing {
		if c.ID == def.ID {
			categories = append(categories, def.body())
			found = true
		} else {
			categories = append(categories, c.definition().body())
		}
	}
	if !found {
		return InvalidReferenceError{Reference: fmt.Sprintf("category id %d", def.ID)}
	}
	return v.putCategories(ctx, categories)
}

// DeleteCategory removes the category with the given id.
func (v *Variable) DeleteCategory(ctx context.Context, id int) error {
	if err := v.categorical(); err != nil {
		return err
	}
	if err := v.derivedGuard(ctx); err != nil {
		return err
	}
	existing, err := v.Categories(ctx)
	if err != nil {
		return err
	}
	categories := make([]interface{}, 0, len(existing))
	found := false
	for _, c := range existing {
		if c.ID == id {
			found = true
			continue
		}
		categories = append(categories, c.definition().body())
	}
	if !found {
		return InvalidReferenceError{Reference: fmt.Sprintf("category id %d", id)}
	}
	return v.putCategories(ctx, categories)
}

// ReorderCategories rearranges the categories into the given id order. The
// list must be a complete, duplicate-free permutation of the current ids.
func (v *Variable) ReorderCategories(ctx context.Context, ids []int) error {
	if err := v.categorical(); err != nil {
		return err
	}
	existing, err := v.Categories(ctx)
	if err != nil {
		return err
	}
	byID := make(map[int]Category, len(existing))
	for _, c := range existing {
		byID[c.ID] = c
	}
	if len(ids) != len(existing) {
		return InvalidParamError{Param: "ids", Message: "must list every category id exactly once"}
	}
	categories := make([]interface{}, 0, len(ids))
	seen := make(map[int]bool, len(ids))
	for _, id := range ids {
		c, ok := byID[id]
		if !ok || seen[id] {
			return InvalidParamError{Param: "ids", Message: "must list every category id exactly once"}
		}
		seen[id] = true
		categories = append(categories, c.definition().body())
	}
	return v.putCategories(ctx, categories)
}

// subvariablesByAlias maps subvariable aliases to entity URLs.
func (v *Variable) subvariablesByAlias(ctx context.Context) (map[string]string, error) {
	entity, err := v.resource(ctx)
	if err != nil {
		return nil, err
	}
	subvariablesURL, ok := entity.Catalogs["subvariables"]
	if !ok {
		return nil, InvalidTypeError{Operation: "subvariables", Type: v.Type()}
	}
	catalog, err := v.session.GetCatalog(ctx, subvariablesURL)
	if err != nil {
		return nil, err
	}
	byAlias := make(map[string]string, len(catalog.Index))
	for entityURL, tuple := range catalog.Index {
		byAlias[tuple.String("alias")] = entityURL
	}
	return byAlias, nil
}

// ReorderSubvariables rearranges an array variable's subvariables into the
// given alias order. The list must be a complete, duplicate-free permutation
// of the current aliases.
func (v *Variable) ReorderSubvariables(ctx context.Context, aliases []string) error {
	byAlias, err := v.subvariablesByAlias(ctx)
	if err != nil {
		return err
	}
	if len(aliases) != len(byAlias) {
		return InvalidParamError{Param: "aliases", Message: "must list every subvariable alias exactly once"}
	}
	urls := make([]string, 0, len(aliases))
	seen := make(map[string]bool, len(aliases))
	for _, alias := range aliases {
		u, ok := byAlias[alias]
		if !ok || seen[alias] {
			return InvalidParamError{Param: "aliases", Message: "must list every subvariable alias exactly once"}
		}
		seen[alias] = true
		urls = append(urls, u)
	}
	// The subvariables fragment is patched bare, not as a shoji:entity.
	if err := v.session.Patch(ctx, v.URL(), map[string]interface{}{"subvariables": urls}); err != nil {
		return err
	}
	v.invalidate()
	return nil
}
