package scrunch

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/Crunch-io/scrunch/shoji"
)

// Path addresses a group in an order tree. Segments are separated by '|';
// "|" alone is the root. A path is absolute when it starts with '|';
// absolute paths resolve only from the root group.
type Path string

// IsRoot reports whether the path addresses the root group.
func (p Path) IsRoot() bool { return p == "|" }

// IsAbsolute reports whether the path starts at the root.
func (p Path) IsAbsolute() bool { return strings.HasPrefix(string(p), "|") }

// Parts returns the path's segments, trimmed, with empty segments dropped.
func (p Path) Parts() []string {
	var parts []string
	for _, part := range strings.Split(string(p), "|") {
		part = strings.TrimSpace(part)
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

func (p Path) String() string { return string(p) }

// Group names may contain word characters, spaces, and a few punctuation
// marks. The pipe is reserved as the path separator.
var groupNameRegex = regexp.MustCompile(`^[\w\s,&()\-/\\]+$`)

const rootGroupName = "__root__"

// orderElement is one entry of a group: either a variable leaf (key is the
// alias, entityURL its URL) or a nested group.
type orderElement struct {
	key       string
	entityURL string
	group     *Group
}

// Group is a named node of an order tree holding an ordered set of variables
// and subgroups. Element keys (variable aliases and group names) are unique
// within a group. All mutating methods write the whole updated graph to the
// server; on a rejected write the tree reloads itself and the mutation
// returns OrderUpdateError.
type Group struct {
	name     string
	order    *Order
	parent   *Group
	elements []orderElement
}

// Order is a dataset's hierarchical variable order: the root group plus the
// remote shoji:order resource the tree is written to.
//
// An Order is safe for concurrent use, but Group values obtained from it are
// positions in a shared tree: a reload after a failed write invalidates them.
type Order struct {
	dataset  *Dataset
	session  *shoji.Session
	orderURL string

	mu          sync.Mutex
	root        *Group
	nameByURL   map[string]string
	aliasByURL  map[string]string
	urlsByAlias map[string]string
}

// VariablesOrder loads the dataset's variable catalog and hierarchical order
// graph and returns an editor over it.
func (ds *Dataset) VariablesOrder(ctx context.Context) (*Order, error) {
	variablesURL, err := ds.catalogURL("variables")
	if err != nil {
		return nil, err
	}
	order := &Order{dataset: ds, session: ds.session}
	if err := order.load(ctx, variablesURL); err != nil {
		return nil, err
	}
	return order, nil
}

func (o *Order) load(ctx context.Context, variablesURL string) error {
	catalog, err := o.session.GetCatalog(ctx, variablesURL)
	if err != nil {
		return err
	}
	orderURL, ok := catalog.Orders["hier"]
	if !ok {
		return InvalidReferenceError{Reference: "hier order"}
	}
	doc, err := o.session.GetOrder(ctx, orderURL)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.orderURL = orderURL
	o.aliasByURL = make(map[string]string, len(catalog.Index))
	o.nameByURL = make(map[string]string, len(catalog.Index))
	o.urlsByAlias = make(map[string]string, len(catalog.Index))
	for entityURL, tuple := range catalog.Index {
		alias := tuple.String("alias")
		o.aliasByURL[entityURL] = alias
		o.nameByURL[entityURL] = tuple.String("name")
		o.urlsByAlias[alias] = entityURL
	}
	o.root = o.buildGroup(rootGroupName, nil, doc.Graph)
	return nil
}

// buildGroup turns a shoji graph into a tree. Variable URLs missing from the
// catalog are dropped, the way stale order entries are.
func (o *Order) buildGroup(name string, parent *Group, graph []shoji.GraphElement) *Group {
	g := &Group{name: name, order: o, parent: parent}
	for _, element := range graph {
		if element.Group != nil {
			sub := o.buildGroup(element.Group.Name, g, element.Group.Elements)
			g.elements = append(g.elements, orderElement{key: sub.name, group: sub})
			continue
		}
		alias, ok := o.aliasByURL[element.URL]
		if !ok {
			continue
		}
		g.elements = append(g.elements, orderElement{key: alias, entityURL: element.URL})
	}
	return g
}

// reload refetches the catalog and graph after a failed write.
func (o *Order) reload(ctx context.Context) {
	variablesURL, err := o.dataset.catalogURL("variables")
	if err != nil {
		return
	}
	if err := o.load(ctx, variablesURL); err != nil {
		o.dataset.loggers.Errorf("Reloading variable order failed: %s", err)
	}
}

// update writes the whole graph to the order resource. Callers hold o.mu.
func (o *Order) update(ctx context.Context) error {
	body := map[string]interface{}{
		"element": shoji.OrderElement,
		"graph":   o.root.graph(),
	}
	if err := o.session.Put(ctx, o.orderURL, body); err != nil {
		o.mu.Unlock()
		o.reload(ctx)
		o.mu.Lock()
		return OrderUpdateError{Cause: err}
	}
	return nil
}

// Sync writes the current graph to the server without changing it.
func (o *Order) Sync(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.update(ctx)
}

// Root returns the root group.
func (o *Order) Root() *Group {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.root
}

// Group navigates to the group at the given path.
func (o *Order) Group(path Path) (*Group, error) {
	return o.Root().Group(path)
}

// Place inserts a variable at the given absolute path.
func (o *Order) Place(ctx context.Context, v *Variable, path Path, opts InsertOptions) error {
	if !path.IsAbsolute() {
		return InvalidPathError{Path: path.String()}
	}
	target, err := o.Group(path)
	if err != nil {
		return err
	}
	return target.Insert(ctx, []string{v.Alias()}, opts)
}

// Remove takes variables out of whatever groups currently hold them and
// reparents them at the end of the root group, so no element is ever
// orphaned from the tree.
func (o *Order) Remove(ctx context.Context, refs []string) error {
	root := o.Root()
	return root.Insert(ctx, refs, InsertOptions{Position: -1})
}

func (o *Order) String() string {
	return o.Root().String()
}

// graph renders the group as shoji:order graph elements.
func (g *Group) graph() []interface{} {
	elements := make([]interface{}, 0, len(g.elements))
	for _, el := range g.elements {
		if el.group != nil {
			elements = append(elements, map[string]interface{}{el.group.name: el.group.graph()})
		} else {
			elements = append(elements, el.entityURL)
		}
	}
	return elements
}

// Name returns the group's name.
func (g *Group) Name() string { return g.name }

// IsRoot reports whether this is the tree's root group.
func (g *Group) IsRoot() bool { return g.parent == nil && g.name == rootGroupName }

// Keys lists the group's element keys (variable aliases and group names) in
// order.
func (g *Group) Keys() []string {
	g.order.mu.Lock()
	defer g.order.mu.Unlock()
	return g.keys()
}

func (g *Group) keys() []string {
	keys := make([]string, len(g.elements))
	for i, el := range g.elements {
		keys[i] = el.key
	}
	return keys
}

func (g *Group) indexOf(key string) int {
	for i, el := range g.elements {
		if el.key == key {
			return i
		}
	}
	return -1
}

// Group navigates to a subgroup. Absolute paths are only valid from the root
// group; a path segment that does not name a subgroup fails with
// InvalidPathError.
func (g *Group) Group(path Path) (*Group, error) {
	g.order.mu.Lock()
	defer g.order.mu.Unlock()
	return g.navigate(path)
}

func (g *Group) navigate(path Path) (*Group, error) {
	if path.IsRoot() && g.IsRoot() {
		return g, nil
	}
	if path.IsAbsolute() && !g.IsRoot() {
		return nil, InvalidPathError{Path: path.String()}
	}
	node := g
	for _, part := range path.Parts() {
		i := node.indexOf(part)
		if i < 0 || node.elements[i].group == nil {
			return nil, InvalidPathError{Path: path.String()}
		}
		node = node.elements[i].group
	}
	return node, nil
}

// String renders the group as indented JSON of variable names and nested
// groups.
func (g *Group) String() string {
	g.order.mu.Lock()
	defer g.order.mu.Unlock()
	data, err := json.MarshalIndent(g.describe(), "", "    ")
	if err != nil {
		return "[]"
	}
	return string(data)
}

func (g *Group) describe() []interface{} {
	described := make([]interface{}, 0, len(g.elements))
	for _, el := range g.elements {
		if el.group != nil {
			described = append(described, map[string]interface{}{el.group.name: el.group.describe()})
		} else {
			described = append(described, g.order.nameByURL[el.entityURL])
		}
	}
	return described
}

// findLeafHolder returns the group holding a leaf with the given key.
func (g *Group) findLeafHolder(key string) *Group {
	for _, el := range g.elements {
		if el.group != nil {
			if found := el.group.findLeafHolder(key); found != nil {
				return found
			}
		} else if el.key == key {
			return g
		}
	}
	return nil
}

// findGroup returns the group with the given name, searching from g down.
func (g *Group) findGroup(name string) *Group {
	if g.name == name {
		return g
	}
	for _, el := range g.elements {
		if el.group != nil {
			if found := el.group.findGroup(name); found != nil {
				return found
			}
		}
	}
	return nil
}

func (g *Group) isDescendantOf(other *Group) bool {
	for node := g; node != nil; node = node.parent {
		if node == other {
			return true
		}
	}
	return false
}

func (g *Group) validateName(name string) error {
	if strings.Contains(name, "|") {
		return InvalidParamError{Param: "name", Message: "the pipe (|) character is not allowed"}
	}
	if !groupNameRegex.MatchString(name) {
		return InvalidParamError{Param: "name", Message: "invalid character in group name"}
	}
	if g.indexOf(name) >= 0 {
		return InvalidParamError{Param: "name", Message: "an element with this name already exists in the group"}
	}
	return nil
}

// InsertOptions selects where in a group elements land. Position counts from
// zero; -1 means the end. Before and After position relative to an existing
// sibling key instead and take precedence over Position.
type InsertOptions struct {
	Position int
	Before   string
	After    string
}

// resolvePosition turns the options into an index into the sibling set,
// ignoring elements that are about to move.
func (g *Group) resolvePosition(opts InsertOptions, moving map[string]bool) (int, error) {
	if opts.Before != "" || opts.After != "" {
		reference := opts.Before
		if reference == "" {
			reference = opts.After
		}
		if g.indexOf(reference) < 0 {
			return 0, InvalidReferenceError{Reference: reference}
		}
		i := 0
		for _, el := range g.elements {
			if moving[el.key] {
				continue
			}
			if el.key == reference {
				if opts.Before != "" {
					return i, nil
				}
				return i + 1, nil
			}
			i++
		}
		return i, nil
	}
	if opts.Position == -1 {
		return len(g.elements), nil
	}
	if opts.Position < -1 || opts.Position > len(g.elements) {
		return 0, InvalidParamError{Param: "Position", Message: "position out of range"}
	}
	return opts.Position, nil
}

// Insert places elements into the group at a position. References may be
// variable aliases or group names living anywhere in the tree; they migrate
// here from their current location.
func (g *Group) Insert(ctx context.Context, refs []string, opts InsertOptions) error {
	g.order.mu.Lock()
	defer g.order.mu.Unlock()
	if err := g.insert(refs, opts); err != nil {
		return err
	}
	return g.order.update(ctx)
}

func (g *Group) insert(refs []string, opts InsertOptions) error {
	if len(refs) == 0 {
		return InvalidParamError{Param: "refs", Message: "nothing to insert"}
	}
	moving := make(map[string]bool, len(refs))
	for _, ref := range refs {
		if moving[ref] {
			return InvalidParamError{Param: "refs", Message: "duplicate reference: " + ref}
		}
		moving[ref] = true
	}
	position, err := g.resolvePosition(opts, moving)
	if err != nil {
		return err
	}

	// Resolve every reference to its current holder before touching the
	// tree, so a bad reference leaves the graph exactly as it was.
	type migration struct {
		holder *Group
		key    string
	}
	planned := make([]migration, 0, len(refs))
	for _, ref := range refs {
		if g.indexOf(ref) >= 0 {
			planned = append(planned, migration{holder: g, key: ref})
			continue
		}
		if holder := g.order.root.findLeafHolder(ref); holder != nil {
			planned = append(planned, migration{holder: holder, key: ref})
			continue
		}
		if moved := g.order.root.findGroup(ref); moved != nil {
			if g.isDescendantOf(moved) {
				return InvalidPathError{Path: ref}
			}
			planned = append(planned, migration{holder: moved.parent, key: ref})
			continue
		}
		return InvalidReferenceError{Reference: ref}
	}

	// Detach migrants from their current holders. Elements already in this
	// group stay put; the kept filter below drops them from their old slots.
	placed := make([]orderElement, 0, len(refs))
	for _, plan := range planned {
		i := plan.holder.indexOf(plan.key)
		element := plan.holder.elements[i]
		if plan.holder != g {
			plan.holder.elements = append(plan.holder.elements[:i], plan.holder.elements[i+1:]...)
		}
		if element.group != nil {
			element.group.parent = g
		}
		placed = append(placed, element)
	}

	kept := make([]orderElement, 0, len(g.elements))
	for _, el := range g.elements {
		if !moving[el.key] {
			kept = append(kept, el)
		}
	}
	if position > len(kept) {
		position = len(kept)
	}

	elements := make([]orderElement, 0, len(kept)+len(placed))
	elements = append(elements, kept[:position]...)
	elements = append(elements, placed...)
	elements = append(elements, kept[position:]...)
	g.elements = elements
	return nil
}

// Append places elements at the end of the group. See Insert.
func (g *Group) Append(ctx context.Context, refs []string) error {
	return g.Insert(ctx, refs, InsertOptions{Position: -1})
}

// Reorder rearranges the group's direct elements into the given key order.
// The list must be a complete, duplicate-free permutation of the current
// keys.
func (g *Group) Reorder(ctx context.Context, keys []string) error {
	g.order.mu.Lock()
	defer g.order.mu.Unlock()

	if len(keys) != len(g.elements) {
		return InvalidParamError{Param: "keys", Message: "must list every element exactly once"}
	}
	elements := make([]orderElement, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		i := g.indexOf(key)
		if i < 0 || seen[key] {
			return InvalidParamError{Param: "keys", Message: "must list every element exactly once"}
		}
		seen[key] = true
		elements = append(elements, g.elements[i])
	}
	if slices.Equal(keys, g.keys()) {
		return nil
	}
	g.elements = elements
	return g.order.update(ctx)
}

// CreateGroupOptions seeds and positions a new group. A nil Refs creates an
// empty group. The zero Position appends; use Before/After or a positive
// Position to place the group elsewhere.
type CreateGroupOptions struct {
	Refs     []string
	Position int
	Before   string
	After    string
}

// CreateGroup creates a subgroup, optionally seeded with elements migrated
// from elsewhere in the tree.
func (g *Group) CreateGroup(ctx context.Context, name string, opts CreateGroupOptions) error {
	g.order.mu.Lock()
	defer g.order.mu.Unlock()

	if err := g.validateName(name); err != nil {
		return err
	}
	sub := &Group{name: name, order: g.order, parent: g}
	g.elements = append(g.elements, orderElement{key: name, group: sub})

	if len(opts.Refs) > 0 {
		if err := sub.insert(opts.Refs, InsertOptions{Position: -1}); err != nil {
			g.elements = g.elements[:len(g.elements)-1]
			return err
		}
	}
	insertOpts := InsertOptions{Position: opts.Position, Before: opts.Before, After: opts.After}
	if opts.Before == "" && opts.After == "" && opts.Position == 0 {
		insertOpts.Position = -1
	}
	if err := g.insert([]string{name}, insertOpts); err != nil {
		return err
	}
	return g.order.update(ctx)
}

// Rename changes the group's name. The root group cannot be renamed, and the
// new name must not collide with a sibling.
func (g *Group) Rename(ctx context.Context, name string) error {
	g.order.mu.Lock()
	defer g.order.mu.Unlock()

	if g.IsRoot() {
		return InvalidParamError{Param: "name", Message: "renaming the root group is not allowed"}
	}
	if name == g.name {
		return nil
	}
	if err := g.parent.validateName(name); err != nil {
		return err
	}
	i := g.parent.indexOf(g.name)
	g.name = name
	g.parent.elements[i].key = name
	return g.order.update(ctx)
}

// MoveTo moves the group under the group at an absolute path. A group cannot
// move into itself or one of its descendants.
func (g *Group) MoveTo(ctx context.Context, path Path, opts InsertOptions) error {
	g.order.mu.Lock()
	defer g.order.mu.Unlock()

	if g.IsRoot() {
		return InvalidParamError{Param: "path", Message: "the root group cannot be moved"}
	}
	if !path.IsAbsolute() {
		return InvalidPathError{Path: path.String()}
	}
	target, err := g.order.root.navigate(path)
	if err != nil {
		return err
	}
	if target.isDescendantOf(g) {
		return InvalidPathError{Path: path.String()}
	}
	if err := target.insert([]string{g.name}, opts); err != nil {
		return err
	}
	return g.order.update(ctx)
}

// Delete removes the group from the tree. Only empty groups may be deleted,
// and never the root.
func (g *Group) Delete(ctx context.Context) error {
	g.order.mu.Lock()
	defer g.order.mu.Unlock()

	if g.IsRoot() {
		return InvalidParamError{Param: "group", Message: "the root group cannot be deleted"}
	}
	if len(g.elements) > 0 {
		return InvalidParamError{Param: "group", Message: "only empty groups can be deleted"}
	}
	i := g.parent.indexOf(g.name)
	g.parent.elements = append(g.parent.elements[:i], g.parent.elements[i+1:]...)
	return g.order.update(ctx)
}
