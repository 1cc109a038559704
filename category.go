package scrunch

import (
	"regexp"

	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
)

var categoricalTypes = map[string]bool{
	"categorical":       true,
	"multiple_response": true,
	"categorical_array": true,
}

var categoricalDateFormat = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Category is one category of a categorical variable, as read from the
// variable entity. Mutations go through the Variable methods.
type Category struct {
	ID           int
	Name         string
	NumericValue ldvalue.Value
	Missing      bool
	Selected     bool
	Date         string
}

// CategoryList is a variable's categories in their server order.
type CategoryList []Category

// ByID finds a category by id.
func (cl CategoryList) ByID(id int) (Category, bool) {
	for _, c := range cl {
		if c.ID == id {
			return c, true
		}
	}
	return Category{}, false
}

// IDs returns the category ids in order.
func (cl CategoryList) IDs() []int {
	ids := make([]int, len(cl))
	for i, c := range cl {
		ids[i] = c.ID
	}
	return ids
}

// CategoryDefinition describes a category to create or the edits to apply to
// an existing one.
type CategoryDefinition struct {
	ID   int
	Name string
	// NumericValue is the category's numeric value, or nil for none.
	NumericValue interface{}
	Missing      bool
	Selected     bool
	// Date, if set, must be in YYYY-MM-DD form.
	Date string
}

func (def CategoryDefinition) validate() error {
	if def.Date != "" && !categoricalDateFormat.MatchString(def.Date) {
		return InvalidParamError{Param: "Date", Message: "must conform to Y-m-d format"}
	}
	return nil
}

func (def CategoryDefinition) body() map[string]interface{} {
	body := map[string]interface{}{
		"id":            def.ID,
		"name":          def.Name,
		"numeric_value": def.NumericValue,
		"missing":       def.Missing,
	}
	if def.Selected {
		body["selected"] = true
	}
	if def.Date != "" {
		body["date"] = def.Date
	}
	return body
}

func categoryBodies(defs []CategoryDefinition) []interface{} {
	bodies := make([]interface{}, len(defs))
	for i, def := range defs {
		bodies[i] = def.body()
	}
	return bodies
}

func categoryFromValue(v ldvalue.Value) Category {
	return Category{
		ID:           v.GetByKey("id").IntValue(),
		Name:         v.GetByKey("name").StringValue(),
		NumericValue: v.GetByKey("numeric_value"),
		Missing:      v.GetByKey("missing").BoolValue(),
		Selected:     v.GetByKey("selected").BoolValue(),
		Date:         v.GetByKey("date").StringValue(),
	}
}
func (c Category) definition() CategoryDefinition {
	def := CategoryDefinition{
		ID:       c.ID,
		Name:     c.Name,
		Missing:  c.Missing,
		Selected: c.Selected,
		Date:     c.Date,
	}
	if !c.NumericValue.IsNull() {
		def.NumericValue = c.NumericValue.Float64Value()
	}
	return def
}
