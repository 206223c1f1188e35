package analysis

import "time"

// FieldType is the input widget a contextual field asks for
type FieldType string

const (
	FieldTypeText     FieldType = "text"
	FieldTypeTextarea FieldType = "textarea"
	FieldTypeSelect   FieldType = "select"
	FieldTypeURL      FieldType = "url"
	FieldTypeNumber   FieldType = "number"
)

// ValidFieldTypes lists every supported contextual field type
var ValidFieldTypes = []interface{}{
	FieldTypeText, FieldTypeTextarea, FieldTypeSelect, FieldTypeURL, FieldTypeNumber,
}

// ContextualField describes an extra form input a template collects
type ContextualField struct {
	ID          string    `json:"id" yaml:"id"`
	Label       string    `json:"label" yaml:"label"`
	Type        FieldType `json:"type" yaml:"type"`
	Required    bool      `json:"required" yaml:"required"`
	Options     []string  `json:"options,omitempty" yaml:"options"`
	Placeholder string    `json:"placeholder,omitempty" yaml:"placeholder"`
}

// Template is a reusable prompt configuration selectable at send time
type Template struct {
	ID               string            `json:"id" db:"id" yaml:"id"`
	Title            string            `json:"title" db:"title" yaml:"title"`
	Category         string            `json:"category" db:"category" yaml:"category"`
	Description      string            `json:"description,omitempty" db:"description" yaml:"description"`
	Prompt           string            `json:"prompt" db:"prompt" yaml:"prompt"`
	ContextualFields []ContextualField `json:"contextual_fields,omitempty" db:"contextual_fields" yaml:"contextual_fields"`
	BuiltIn          bool              `json:"built_in" db:"-" yaml:"-"`
	CreatedBy        string            `json:"created_by,omitempty" db:"created_by" yaml:"-"`
	CreatedAt        time.Time         `json:"created_at" db:"created_at" yaml:"-"`
	UpdatedAt        time.Time         `json:"updated_at" db:"updated_at" yaml:"-"`
}

// Clone returns a deep copy of the template
func (t Template) Clone() Template {
	if t.ContextualFields != nil {
		fields := make([]ContextualField, len(t.ContextualFields))
		for i, f := range t.ContextualFields {
			if f.Options != nil {
				f.Options = append([]string(nil), f.Options...)
			}
			fields[i] = f
		}
		t.ContextualFields = fields
	}
	return t
}
