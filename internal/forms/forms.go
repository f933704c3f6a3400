// Package forms holds the pathology form definitions: the sections and
// fields a client renders, each field bound to a dotted path in the
// record's form document. Definitions are embedded YAML files.
package forms

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"pathology-records-server/internal/models"
)

//go:embed definitions/*.yaml
var definitionFiles embed.FS

// FieldType is how a field is rendered and what JSON value it takes.
type FieldType string

const (
	TypeString    FieldType = "string"
	TypeText      FieldType = "text"
	TypeInteger   FieldType = "integer"
	TypeNumber    FieldType = "number"
	TypeBoolean   FieldType = "boolean"
	TypeDate      FieldType = "date"
	TypeEnum      FieldType = "enum"
	TypeMultiEnum FieldType = "multi_enum"
	TypeList      FieldType = "list"
)

var knownTypes = []FieldType{
	TypeString, TypeText, TypeInteger, TypeNumber, TypeBoolean,
	TypeDate, TypeEnum, TypeMultiEnum, TypeList,
}

var (
	ErrUnknownField = errors.New("unknown form field")
	ErrFieldValue   = errors.New("invalid field value")
)

type Field struct {
	Path     string    `yaml:"path" json:"path"`
	Label    string    `yaml:"label" json:"label"`
	Type     FieldType `yaml:"type" json:"type"`
	Required bool      `yaml:"required" json:"required"`
	Options  []string  `yaml:"options" json:"options,omitempty"`
	Unit     string    `yaml:"unit" json:"unit,omitempty"`
	Min      *float64  `yaml:"min" json:"min,omitempty"`
	Max      *float64  `yaml:"max" json:"max,omitempty"`
}

type Section struct {
	ID     string  `yaml:"id" json:"id"`
	Title  string  `yaml:"title" json:"title"`
	Fields []Field `yaml:"fields" json:"fields"`
}

type Definition struct {
	Pathology   models.Pathology `yaml:"pathology" json:"pathology"`
	Title       string           `yaml:"title" json:"title"`
	Description string           `yaml:"description" json:"description"`
	Sections    []Section        `yaml:"sections" json:"sections"`

	fields map[string]*Field
}

// Summary is the short form listed by the forms index.
type Summary struct {
	Pathology   models.Pathology `json:"pathology"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	FieldCount  int              `json:"fieldCount"`
}

var registry = mustLoad()

// Lookup returns the definition for p.
func Lookup(p models.Pathology) (*Definition, error) {
	def, ok := registry[p]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownPathology, p)
	}
	return def, nil
}

// All returns every definition in pathology order.
func All() []*Definition {
	out := make([]*Definition, 0, len(registry))
	for _, p := range models.Pathologies {
		if def, ok := registry[p]; ok {
			out = append(out, def)
		}
	}
	return out
}

// Summary describes the definition without its fields.
func (d *Definition) Summary() Summary {
	return Summary{
		Pathology:   d.Pathology,
		Title:       d.Title,
		Description: d.Description,
		FieldCount:  len(d.fields),
	}
}

// Field returns the field bound to path.
func (d *Definition) Field(path string) (*Field, error) {
	f, ok := d.fields[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownField, path)
	}
	return f, nil
}

// Fields returns every field in display order.
func (d *Definition) Fields() []*Field {
	var out []*Field
	for i := range d.Sections {
		for j := range d.Sections[i].Fields {
			out = append(out, &d.Sections[i].Fields[j])
		}
	}
	return out
}

// TimestampPaths lists the paths of date fields.
func (d *Definition) TimestampPaths() []string {
	var out []string
	for _, f := range d.Fields() {
		if f.Type == TypeDate {
			out = append(out, f.Path)
		}
	}
	return out
}

// CheckValue verifies that a JSON-decoded value fits the field's type and
// options. nil clears an optional field.
func (f *Field) CheckValue(v any) error {
	if v == nil {
		if f.Required {
			return fmt.Errorf("%w: %s is required", ErrFieldValue, f.Path)
		}
		return nil
	}

	switch f.Type {
	case TypeString, TypeText:
		if _, ok := v.(string); !ok {
			return f.typeError(v)
		}
	case TypeEnum:
		s, ok := v.(string)
		if !ok {
			return f.typeError(v)
		}
		if !slices.Contains(f.Options, s) {
			return fmt.Errorf("%w: %s must be one of %v", ErrFieldValue, f.Path, f.Options)
		}
	case TypeMultiEnum:
		items, ok := v.([]any)
		if !ok {
			return f.typeError(v)
		}
		for _, item := range items {
			s, ok := item.(string)
			if !ok || !slices.Contains(f.Options, s) {
				return fmt.Errorf("%w: %s entries must be among %v", ErrFieldValue, f.Path, f.Options)
			}
		}
	case TypeInteger, TypeNumber:
		n, ok := v.(float64)
		if !ok {
			return f.typeError(v)
		}
		if f.Type == TypeInteger && n != math.Trunc(n) {
			return fmt.Errorf("%w: %s must be a whole number", ErrFieldValue, f.Path)
		}
		if f.Min != nil && n < *f.Min {
			return fmt.Errorf("%w: %s must be at least %v", ErrFieldValue, f.Path, *f.Min)
		}
		if f.Max != nil && n > *f.Max {
			return fmt.Errorf("%w: %s must be at most %v", ErrFieldValue, f.Path, *f.Max)
		}
	case TypeBoolean:
		if _, ok := v.(bool); !ok {
			return f.typeError(v)
		}
	case TypeDate:
		s, ok := v.(string)
		if !ok {
			return f.typeError(v)
		}
		if _, err := time.Parse(time.RFC3339, s); err != nil {
			return fmt.Errorf("%w: %s must be an RFC 3339 timestamp", ErrFieldValue, f.Path)
		}
	case TypeList:
		if _, ok := v.([]any); !ok {
			return f.typeError(v)
		}
	}
	return nil
}

func (f *Field) typeError(v any) error {
	return fmt.Errorf("%w: %s expects %s, got %T", ErrFieldValue, f.Path, f.Type, v)
}

func mustLoad() map[models.Pathology]*Definition {
	defs, err := load(definitionFiles)
	if err != nil {
		panic(err)
	}
	return defs
}

func load(fsys fs.FS) (map[models.Pathology]*Definition, error) {
	paths, err := fs.Glob(fsys, "definitions/*.yaml")
	if err != nil {
		return nil, err
	}

	defs := make(map[models.Pathology]*Definition, len(paths))
	for _, name := range paths {
		raw, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		var def Definition
		if err := yaml.Unmarshal(raw, &def); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}
		if err := def.index(); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if _, dup := defs[def.Pathology]; dup {
			return nil, fmt.Errorf("%s: duplicate definition for %s", name, def.Pathology)
		}
		defs[def.Pathology] = &def
	}
	return defs, nil
}

func (d *Definition) index() error {
	if !d.Pathology.IsValid() {
		return fmt.Errorf("%w: %q", models.ErrUnknownPathology, d.Pathology)
	}
	d.fields = make(map[string]*Field)
	for _, f := range d.Fields() {
		if _, dup := d.fields[f.Path]; dup {
			return fmt.Errorf("duplicate field path %s", f.Path)
		}
		if !slices.Contains(knownTypes, f.Type) {
			return fmt.Errorf("field %s: unknown type %q", f.Path, f.Type)
		}
		if (f.Type == TypeEnum || f.Type == TypeMultiEnum) && len(f.Options) == 0 {
			return fmt.Errorf("field %s: %s needs options", f.Path, f.Type)
		}
		d.fields[f.Path] = f
	}
	return nil
}
