package scrunch

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
	"golang.org/x/sync/singleflight"

	"github.com/Crunch-io/scrunch/expr"
	"github.com/Crunch-io/scrunch/internal/endpoints"
	"github.com/Crunch-io/scrunch/shoji"
)

// Attributes of a dataset entity that may be changed through Edit. Everything
// else in the body is server-maintained.
var datasetMutableAttributes = map[string]bool{
	"name":         true,
	"notes":        true,
	"description":  true,
	"is_published": true,
	"archived":     true,
	"end_date":     true,
	"start_date":   true,
	"streaming":    true,
}

var datasetEditableSettings = map[string]bool{
	"viewers_can_export":        true,
	"viewers_can_change_weight": true,
	"viewers_can_share":         true,
	"dashboard_deck":            true,
	"variable_folders":          true,
}

// Dataset is a proxy over a remote dataset entity. All methods round-trip to
// the server; the local copy of the entity body refreshes on Refresh and
// after successful edits.
//
// A Dataset is safe for concurrent use.
type Dataset struct {
	client  *Client
	session *shoji.Session
	loggers ldlog.Loggers

	mu     sync.Mutex
	entity *shoji.Entity
	vars   *shoji.Catalog
	varsSF singleflight.Group
}

func newDataset(client *Client, entity *shoji.Entity) *Dataset {
	return &Dataset{
		client:  client,
		session: client.session,
		loggers: client.loggers,
		entity:  entity,
	}
}

// URL returns the dataset's entity URL.
func (ds *Dataset) URL() string {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.entity.Self
}

// ID returns the dataset's identifier, falling back to the trailing segment
// of the entity URL for bodies that omit it.
func (ds *Dataset) ID() string {
	if id := ds.bodyString("id"); id != "" {
		return id
	}
	return endpoints.EntityID(ds.URL())
}

// Name returns the dataset's name.
func (ds *Dataset) Name() string { return ds.bodyString("name") }

// Description returns the dataset's description.
func (ds *Dataset) Description() string { return ds.bodyString("description") }

// Notes returns the dataset's notes field.
func (ds *Dataset) Notes() string { return ds.bodyString("notes") }

// IsPublished reports whether the dataset is visible to viewers.
func (ds *Dataset) IsPublished() bool { return ds.bodyValue("is_published").BoolValue() }

// Archived reports whether the dataset has been archived.
func (ds *Dataset) Archived() bool { return ds.bodyValue("archived").BoolValue() }

// StartDate returns the dataset's start date as the server renders it.
func (ds *Dataset) StartDate() string { return ds.bodyString("start_date") }

// EndDate returns the dataset's end date as the server renders it.
func (ds *Dataset) EndDate() string { return ds.bodyString("end_date") }

// Size returns the dataset's row and column counts.
func (ds *Dataset) Size() (rows, columns int) {
	size := ds.bodyValue("size")
	return size.GetByKey("rows").IntValue(), size.GetByKey("columns").IntValue()
}

func (ds *Dataset) bodyValue(key string) ldvalue.Value {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.entity.BodyValue(key)
}

func (ds *Dataset) bodyString(key string) string {
	return ds.bodyValue(key).StringValue()
}

func (ds *Dataset) catalogURL(name string) (string, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	u, ok := ds.entity.Catalogs[name]
	if !ok {
		return "", fmt.Errorf("scrunch: dataset %s has no %q catalog", ds.entity.Self, name)
	}
	return u, nil
}

func (ds *Dataset) fragmentURL(name string) (string, error) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	u, ok := ds.entity.Fragments[name]
	if !ok {
		return "", fmt.Errorf("scrunch: dataset %s has no %q fragment", ds.entity.Self, name)
	}
	return u, nil
}

// Refresh re-fetches the dataset entity and drops the cached variable catalog.
func (ds *Dataset) Refresh(ctx context.Context) error {
	entity, err := ds.session.GetEntity(ctx, ds.URL())
	if err != nil {
		return err
	}
	ds.mu.Lock()
	ds.entity = entity
	ds.vars = nil
	ds.mu.Unlock()
	return nil
}

// Edit changes mutable dataset attributes (name, description, notes,
// start_date, end_date, is_published, archived, streaming). Editing any other
// attribute is rejected with InvalidParamError. time.Time values for the date
// attributes are serialized as RFC 3339.
func (ds *Dataset) Edit(ctx context.Context, attrs map[string]interface{}) error {
	body := make(map[string]interface{}, len(attrs))
	for key, value := range attrs {
		if !datasetMutableAttributes[key] {
			return InvalidParamError{Param: key, Message: "dataset attribute is not editable"}
		}
		if t, ok := value.(time.Time); ok {
			value = t.Format(time.RFC3339)
		}
		body[key] = value
	}
	if err := ds.session.Patch(ctx, ds.URL(), shoji.WrapEntity(body)); err != nil {
		return err
	}
	ds.mu.Lock()
	for key, value := range body {
		ds.entity.Body[key] = ldvalue.CopyArbitraryValue(value)
	}
	ds.mu.Unlock()
	return nil
}

// Delete deletes the dataset on the server.
func (ds *Dataset) Delete(ctx context.Context) error {
	return ds.session.Delete(ctx, ds.URL())
}

// ChangeEditor makes the given user the dataset's current editor.
func (ds *Dataset) ChangeEditor(ctx context.Context, userURL string) error {
	return ds.session.Patch(ctx, ds.URL(), shoji.WrapEntity(map[string]interface{}{
		"current_editor": userURL,
	}))
}

// ChangeCurrentEditor makes the authenticated user the dataset's editor.
func (ds *Dataset) ChangeCurrentEditor(ctx context.Context) error {
	userURL, ok := ds.client.root.Views[authenticatedUserView]
	if !ok {
		return fmt.Errorf("scrunch: API root has no %q view", authenticatedUserView)
	}
	return ds.ChangeEditor(ctx, userURL)
}

// ForkOptions controls Fork. The zero value forks with a generated
// "FORK #<n> of <name>" name, the parent's description, unpublished, and the
// parent's owner preserved.
type ForkOptions struct {
	Name        string
	Description string
	IsPublished bool
	// DropOwner gives the fork to the session user instead of keeping the
	// parent dataset's owner.
	DropOwner bool
}

// Fork creates a fork of the dataset and switches its editor to the
// authenticated user.
func (ds *Dataset) Fork(ctx context.Context, opts ForkOptions) (*Dataset, error) {
	forksURL, err := ds.catalogURL("forks")
	if err != nil {
		return nil, err
	}
	forks, err := ds.session.GetCatalog(ctx, forksURL)
	if err != nil {
		return nil, err
	}

	name := opts.Name
	if name == "" {
		name = fmt.Sprintf("FORK #%d of %s", len(forks.Index)+1, ds.Name())
	}
	description := opts.Description
	if description == "" {
		description = ds.Description()
	}
	body := map[string]interface{}{
		"name":         name,
		"description":  description,
		"is_published": opts.IsPublished,
	}
	if !opts.DropOwner {
		body["owner"] = ds.bodyString("owner")
	}

	result, err := ds.session.PostAndWait(ctx, forksURL, shoji.WrapEntity(body))
	if err != nil {
		return nil, err
	}
	entity, err := ds.session.GetEntity(ctx, result.Location)
	if err != nil {
		return nil, err
	}
	fork := newDataset(ds.client, entity)
	if err := fork.ChangeCurrentEditor(ctx); err != nil {
		return nil, err
	}
	ds.loggers.Infof("Forked dataset %s as %q", ds.ID(), name)
	return fork, nil
}

// DeleteForks deletes every fork of the dataset. This cannot be undone.
func (ds *Dataset) DeleteForks(ctx context.Context) error {
	forksURL, err := ds.catalogURL("forks")
	if err != nil {
		return err
	}
	forks, err := ds.session.GetCatalog(ctx, forksURL)
	if err != nil {
		return err
	}
	for entityURL := range forks.Index {
		if err := ds.session.Delete(ctx, entityURL); err != nil {
			return err
		}
	}
	return nil
}

// Merge merges a fork back into the dataset. The fork may be referenced by
// name, by ID, or by number ("2" means "FORK #2 of <name>"). With
// autorollback, a failed merge restores the dataset to its previous state.
func (ds *Dataset) Merge(ctx context.Context, forkRef string, autorollback bool) error {
	if forkRef == "" {
		return InvalidParamError{Param: "forkRef", Message: "fork id, name or number required"}
	}
	if isAllDigits(forkRef) {
		forkRef = fmt.Sprintf("FORK #%s of %s", forkRef, ds.Name())
	}

	forksURL, err := ds.catalogURL("forks")
	if err != nil {
		return err
	}
	forks, err := ds.session.GetCatalog(ctx, forksURL)
	if err != nil {
		return err
	}
	var matches []string
	for entityURL, tuple := range forks.Index {
		if tuple.String("name") == forkRef || tuple.String("id") == forkRef {
			matches = append(matches, entityURL)
		}
	}
	if len(matches) != 1 {
		return InvalidReferenceError{Reference: forkRef}
	}

	batchesURL, err := ds.catalogURL("batches")
	if err != nil {
		return err
	}
	_, err = ds.session.PostAndWait(ctx, batchesURL, shoji.WrapEntity(map[string]interface{}{
		"dataset":      matches[0],
		"autorollback": autorollback,
	}))
	if err != nil {
		return err
	}
	ds.loggers.Infof("Merged fork %q into dataset %s", forkRef, ds.ID())
	return ds.Refresh(ctx)
}

// JoinOptions controls Join.
type JoinOptions struct {
	// Columns limits the join to the named variables of the right dataset.
	Columns []string
	// Filter drops right-dataset rows that do not match. Aliases in the
	// expression refer to the right dataset.
	Filter expr.Expression
	// NoWait returns as soon as the server accepts the join instead of
	// polling the progress resource until it completes.
	NoWait bool
}

// Join performs a left join, bringing variables from another dataset into
// this one by matching key variables. Crunch joins are always left joins:
// this dataset keeps its rows, the right dataset contributes columns.
func (ds *Dataset) Join(ctx context.Context, leftVar string, right *Dataset, rightVar string, opts JoinOptions) error {
	leftURL, err := ds.variableURL(ctx, leftVar)
	if err != nil {
		return err
	}
	rightURL, err := right.variableURL(ctx, rightVar)
	if err != nil {
		return err
	}

	adapter := map[string]interface{}{
		"function": "adapt",
		"args": []interface{}{
			map[string]interface{}{"dataset": right.URL()},
			map[string]interface{}{"variable": rightURL},
			map[string]interface{}{"variable": leftURL},
		},
	}
	body := adapter
	if len(opts.Columns) > 0 {
		selected := map[string]interface{}{}
		for _, column := range opts.Columns {
			columnURL, err := right.variableURL(ctx, column)
			if err != nil {
				return err
			}
			selected[columnURL] = map[string]interface{}{"variable": columnURL}
		}
		body = map[string]interface{}{
			"frame":    adapter,
			"function": "select",
			"args":     []interface{}{map[string]interface{}{"map": selected}},
		}
	}
	if opts.Filter != nil {
		resolved, err := right.resolveExpression(ctx, opts.Filter)
		if err != nil {
			return err
		}
		body["filter"] = map[string]interface{}{"expression": resolved}
	}

	variablesURL, err := ds.catalogURL("variables")
	if err != nil {
		return err
	}
	payload := map[string]interface{}{"element": shoji.EntityElement, "body": body}
	if opts.NoWait {
		_, err = ds.session.Post(ctx, variablesURL, payload)
	} else {
		_, err = ds.session.PostAndWait(ctx, variablesURL, payload)
	}
	if err != nil {
		return err
	}
	ds.invalidateVariables()
	return nil
}

// AppendOptions controls AppendDataset.
type AppendOptions struct {
	// Variables limits the append to the named variables of the source.
	Variables []string
	// Filter drops source rows that do not match. Aliases refer to the
	// source dataset.
	Filter expr.Expression
	// NoRollback leaves both datasets dirty when the append fails, instead
	// of rolling this dataset back.
	NoRollback bool
}

// AppendDataset appends another dataset's rows to this one. Variables and
// subvariables match on alias, categories match on name.
func (ds *Dataset) AppendDataset(ctx context.Context, other *Dataset, opts AppendOptions) error {
	if ds.URL() == other.URL() {
		return InvalidParamError{Param: "other", Message: "cannot append dataset to itself"}
	}

	body := map[string]interface{}{"dataset": other.URL()}
	if len(opts.Variables) > 0 {
		selected := map[string]interface{}{}
		for _, name := range opts.Variables {
			varURL, err := other.variableURL(ctx, name)
			if err != nil {
				return err
			}
			selected[varURL] = map[string]interface{}{"variable": varURL}
		}
		body["where"] = map[string]interface{}{
			"function": "select",
			"args":     []interface{}{map[string]interface{}{"map": selected}},
		}
	}
	if opts.Filter != nil {
		resolved, err := other.resolveExpression(ctx, opts.Filter)
		if err != nil {
			return err
		}
		body["filter"] = resolved
	}

	batchesURL, err := ds.catalogURL("batches")
	if err != nil {
		return err
	}
	payload := shoji.WrapEntity(body)
	payload["autorollback"] = !opts.NoRollback
	if _, err := ds.session.PostAndWait(ctx, batchesURL, payload); err != nil {
		return err
	}
	ds.loggers.Infof("Appended dataset %s into %s", other.ID(), ds.ID())
	return ds.Refresh(ctx)
}

// Exclude applies an exclusion filter: rows matching the expression are
// omitted from all views and calculations until the filter is lifted. A nil
// expression clears the current exclusion.
func (ds *Dataset) Exclude(ctx context.Context, e expr.Expression) error {
	exclusionURL, err := ds.fragmentURL("exclusion")
	if err != nil {
		return err
	}
	var expression interface{} = map[string]interface{}{}
	if e != nil {
		resolved, err := ds.resolveExpression(ctx, e)
		if err != nil {
			return err
		}
		expression = resolved
	}
	return ds.session.Patch(ctx, exclusionURL, map[string]interface{}{
		"expression": expression,
	})
}

// Exclusion returns the current exclusion filter expression, or a null value
// if no exclusion is set.
func (ds *Dataset) Exclusion(ctx context.Context) (ldvalue.Value, error) {
	exclusionURL, err := ds.fragmentURL("exclusion")
	if err != nil {
		return ldvalue.Null(), err
	}
	entity, err := ds.session.GetEntity(ctx, exclusionURL)
	if err != nil {
		return ldvalue.Null(), err
	}
	return entity.BodyValue("expression"), nil
}

// CreateSavepoint creates a savepoint with the given description. A
// description already carried by another savepoint is rejected.
func (ds *Dataset) CreateSavepoint(ctx context.Context, description string) error {
	savepointsURL, err := ds.catalogURL("savepoints")
	if err != nil {
		return err
	}
	existing, err := ds.SavepointDescriptions(ctx)
	if err != nil {
		return err
	}
	for _, d := range existing {
		if d == description {
			return InvalidParamError{Param: "description", Message: "a savepoint with this description already exists"}
		}
	}
	_, err = ds.session.PostAndWait(ctx, savepointsURL, shoji.WrapEntity(map[string]interface{}{
		"description": description,
	}))
	return err
}

// LoadSavepoint reverts the dataset to the named savepoint. All savepoints
// created after it are destroyed. An empty description means the "initial
// import" savepoint.
func (ds *Dataset) LoadSavepoint(ctx context.Context, description string) error {
	if description == "" {
		description = "initial import"
	}
	savepointsURL, err := ds.catalogURL("savepoints")
	if err != nil {
		return err
	}
	savepoints, err := ds.session.GetCatalog(ctx, savepointsURL)
	if err != nil {
		return err
	}
	var revertURL string
	for _, tuple := range savepoints.Index {
		if tuple.String("description") == description {
			revertURL = tuple.String("revert")
			break
		}
	}
	if revertURL == "" {
		return InvalidReferenceError{Reference: description}
	}
	if _, err := ds.session.PostAndWait(ctx, revertURL, nil); err != nil {
		return err
	}
	ds.loggers.Infof("Reverted dataset %s to savepoint %q", ds.ID(), description)
	return ds.Refresh(ctx)
}

// SavepointDescriptions lists the descriptions of the dataset's savepoints.
func (ds *Dataset) SavepointDescriptions(ctx context.Context) ([]string, error) {
	savepointsURL, err := ds.catalogURL("savepoints")
	if err != nil {
		return nil, err
	}
	savepoints, err := ds.session.GetCatalog(ctx, savepointsURL)
	if err != nil {
		return nil, err
	}
	descriptions := make([]string, 0, len(savepoints.Index))
	for _, tuple := range savepoints.Index {
		descriptions = append(descriptions, tuple.String("description"))
	}
	return descriptions, nil
}

// Settings fetches the dataset's settings fragment.
func (ds *Dataset) Settings(ctx context.Context) (map[string]ldvalue.Value, error) {
	settingsURL, err := ds.fragmentURL("settings")
	if err != nil {
		return nil, err
	}
	entity, err := ds.session.GetEntity(ctx, settingsURL)
	if err != nil {
		return nil, err
	}
	return entity.Body, nil
}

// ChangeSettings updates dataset settings. Only the editable settings
// (viewers_can_export, viewers_can_change_weight, viewers_can_share,
// dashboard_deck, variable_folders) are accepted.
func (ds *Dataset) ChangeSettings(ctx context.Context, settings map[string]interface{}) error {
	for key := range settings {
		if !datasetEditableSettings[key] {
			return InvalidParamError{Param: key, Message: "invalid or read-only setting"}
		}
	}
	settingsURL, err := ds.fragmentURL("settings")
	if err != nil {
		return err
	}
	return ds.session.Patch(ctx, settingsURL, settings)
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	return strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }) < 0
}

// ExportFormatCSV and ExportFormatSPSS are the supported export formats.
const (
	ExportFormatCSV  = "csv"
	ExportFormatSPSS = "spss"
)

var validExportOptions = map[string]bool{
	"use_category_ids":    true,
	"prefix_subvariables": true,
	"var_label_field":     true,
	"missing_values":      true,
}

// ExportOptions controls Export and Download.
type ExportOptions struct {
	// Format is csv (default) or spss.
	Format string
	// Variables limits the export to the named variables.
	Variables []string
	// IncludeHidden also exports hidden variables. Only dataset editors may
	// do this, and it cannot be combined with Variables.
	IncludeHidden bool
	// Filter drops rows that do not match.
	Filter expr.Expression
	// Options are format-specific export options (use_category_ids,
	// prefix_subvariables, var_label_field, missing_values). They override
	// the per-format defaults.
	Options map[string]interface{}
}

func (opts *ExportOptions) payloadOptions() (map[string]interface{}, error) {
	options := map[string]interface{}{}
	switch opts.Format {
	case ExportFormatCSV:
		options["use_category_ids"] = true
	case ExportFormatSPSS:
		options["prefix_subvariables"] = false
		options["var_label_field"] = "description"
	}
	for key, value := range opts.Options {
		if !validExportOptions[key] {
			return nil, InvalidParamError{Param: key, Message: "invalid export option"}
		}
		options[key] = value
	}
	if field, ok := options["var_label_field"].(string); ok && field != "name" && field != "description" {
		return nil, InvalidParamError{Param: "var_label_field", Message: `must be "name" or "description"`}
	}
	return options, nil
}

// Export writes the dataset to w in the requested format. The server prepares
// the export asynchronously; Export polls until it is ready and then streams
// the result.
func (ds *Dataset) Export(ctx context.Context, w io.Writer, opts ExportOptions) error {
	if opts.Format == "" {
		opts.Format = ExportFormatCSV
	}
	if opts.Format != ExportFormatCSV && opts.Format != ExportFormatSPSS {
		return InvalidParamError{Param: "Format", Message: `allowed formats are "csv" and "spss"`}
	}
	options, err := opts.payloadOptions()
	if err != nil {
		return err
	}
	payload := map[string]interface{}{"options": options}

	if opts.Filter != nil {
		resolved, err := ds.resolveExpression(ctx, opts.Filter)
		if err != nil {
			return err
		}
		payload["filter"] = resolved
	}

	if len(opts.Variables) > 0 {
		selected := map[string]interface{}{}
		for _, name := range opts.Variables {
			varURL, err := ds.variableURL(ctx, name)
			if err != nil {
				return err
			}
			selected[varURL] = map[string]interface{}{"variable": varURL}
		}
		payload["where"] = selectMap(selected)
	} else if opts.IncludeHidden {
		if !ds.bodyValue("permissions").GetByKey("edit").BoolValue() {
			return InvalidParamError{Param: "IncludeHidden", Message: "only dataset editors can export hidden variables"}
		}
		catalog, err := ds.variables(ctx)
		if err != nil {
			return err
		}
		selected := map[string]interface{}{}
		for varURL := range catalog.Index {
			selected[varURL] = map[string]interface{}{"variable": varURL}
		}
		payload["where"] = selectMap(selected)
	}

	exportsURL, ok := ds.viewsURL("export")
	if !ok {
		return fmt.Errorf("scrunch: dataset %s has no export view", ds.URL())
	}
	exports, err := ds.session.GetEntity(ctx, exportsURL)
	if err != nil {
		return err
	}
	formatURL, ok := exports.Views[opts.Format]
	if !ok {
		return fmt.Errorf("scrunch: export format %q not offered by the server", opts.Format)
	}

	result, err := ds.session.PostAndWait(ctx, formatURL, payload)
	if err != nil {
		return err
	}
	if result.Location == "" {
		return fmt.Errorf("scrunch: export response carried no download location")
	}
	return ds.session.Download(ctx, result.Location, w)
}

// Download exports the dataset to a local file. See Export.
func (ds *Dataset) Download(ctx context.Context, path string, opts ExportOptions) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := ds.Export(ctx, f, opts); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (ds *Dataset) viewsURL(name string) (string, bool) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	u, ok := ds.entity.Views[name]
	return u, ok
}

func selectMap(selected map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"function": "select",
		"args":     []interface{}{map[string]interface{}{"map": selected}},
	}
}
