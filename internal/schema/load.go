package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format selects the document encoding of a template.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

//go:embed templates/aboutus.json
var defaultTemplate []byte

// templateDoc is the on-disk shape of a template.
type templateDoc struct {
	Version string     `json:"version" yaml:"version"`
	List    listDoc    `json:"list" yaml:"list"`
	Fields  []fieldDoc `json:"fields" yaml:"fields"`
	Views   []viewDoc  `json:"views,omitempty" yaml:"views,omitempty"`
}

type listDoc struct {
	Description         string         `json:"description,omitempty" yaml:"description,omitempty"`
	BaseTemplate        int            `json:"baseTemplate,omitempty" yaml:"baseTemplate,omitempty"`
	ContentTypesEnabled bool           `json:"contentTypesEnabled,omitempty" yaml:"contentTypesEnabled,omitempty"`
	Settings            map[string]any `json:"settings,omitempty" yaml:"settings,omitempty"`
}

type fieldDoc struct {
	InternalName string `json:"internalName" yaml:"internalName"`
	Title        string `json:"title,omitempty" yaml:"title,omitempty"`
	Type         Kind   `json:"type" yaml:"type"`
	Description  string `json:"description,omitempty" yaml:"description,omitempty"`
	Required     bool   `json:"required,omitempty" yaml:"required,omitempty"`
	Hidden       bool   `json:"hidden,omitempty" yaml:"hidden,omitempty"`

	// text / note
	MaxLength     int  `json:"maxLength,omitempty" yaml:"maxLength,omitempty"`
	RichText      bool `json:"richText,omitempty" yaml:"richText,omitempty"`
	NumberOfLines int  `json:"numberOfLines,omitempty" yaml:"numberOfLines,omitempty"`

	// number
	Min *float64 `json:"min,omitempty" yaml:"min,omitempty"`
	Max *float64 `json:"max,omitempty" yaml:"max,omitempty"`

	// choice / lookup / user
	Choices []string `json:"choices,omitempty" yaml:"choices,omitempty"`
	Multi   bool     `json:"multi,omitempty" yaml:"multi,omitempty"`
	FillIn  bool     `json:"fillIn,omitempty" yaml:"fillIn,omitempty"`
	Format  string   `json:"format,omitempty" yaml:"format,omitempty"`

	LookupList  string `json:"lookupList,omitempty" yaml:"lookupList,omitempty"`
	LookupField string `json:"lookupField,omitempty" yaml:"lookupField,omitempty"`

	Selection string `json:"selection,omitempty" yaml:"selection,omitempty"`
	DateOnly  bool   `json:"dateOnly,omitempty" yaml:"dateOnly,omitempty"`
}

type viewDoc struct {
	Title    string         `json:"title" yaml:"title"`
	Personal bool           `json:"personal,omitempty" yaml:"personal,omitempty"`
	Settings map[string]any `json:"settings,omitempty" yaml:"settings,omitempty"`
	Fields   []string       `json:"fields" yaml:"fields"`
}

// Default returns the About-Us template embedded in the binary.
func Default() *Template {
	t, err := Parse(defaultTemplate, FormatJSON)
	if err != nil {
		panic(fmt.Sprintf("embedded template is invalid: %v", err))
	}
	return t
}

// FormatForPath picks the format from a file extension (.yaml/.yml or JSON).
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Load reads, parses and validates a template file.
func Load(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", path, err)
	}
	t, err := Parse(data, FormatForPath(path))
	if err != nil {
		return nil, fmt.Errorf("invalid template %s: %w", path, err)
	}
	return t, nil
}

// Parse decodes and validates a template document.
func Parse(data []byte, format Format) (*Template, error) {
	var doc templateDoc
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse yaml: %w", err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown template format %q", format)
	}

	t, err := doc.toTemplate()
	if err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Encode renders a template back into a document.
func Encode(t *Template, format Format) ([]byte, error) {
	doc := fromTemplate(t)
	switch format {
	case FormatYAML:
		return yaml.Marshal(doc)
	case FormatJSON:
		return json.MarshalIndent(doc, "", "  ")
	}
	return nil, fmt.Errorf("unknown template format %q", format)
}

func (d templateDoc) toTemplate() (*Template, error) {
	t := &Template{
		Version: d.Version,
		List: ListSettings{
			Description:         d.List.Description,
			BaseTemplate:        d.List.BaseTemplate,
			ContentTypesEnabled: d.List.ContentTypesEnabled,
			Settings:            d.List.Settings,
		},
	}
	if t.List.BaseTemplate == 0 {
		t.List.BaseTemplate = GenericListTemplate
	}

	for i, fd := range d.Fields {
		spec, err := fd.spec()
		if err != nil {
			return nil, fmt.Errorf("fields[%d] (%s): %w", i, fd.InternalName, err)
		}
		t.Fields = append(t.Fields, FieldTemplate{
			InternalName: fd.InternalName,
			Title:        fd.Title,
			Description:  fd.Description,
			Required:     fd.Required,
			Hidden:       fd.Hidden,
			Spec:         spec,
		})
	}

	for _, vd := range d.Views {
		t.Views = append(t.Views, ViewTemplate{
			Title:    vd.Title,
			Personal: vd.Personal,
			Settings: vd.Settings,
			Fields:   vd.Fields,
		})
	}
	return t, nil
}

// spec maps the type discriminator to its variant.
func (fd fieldDoc) spec() (FieldSpec, error) {
	switch fd.Type {
	case KindText:
		return TextSpec{MaxLength: fd.MaxLength}, nil
	case KindNote:
		return NoteSpec{RichText: fd.RichText, NumberOfLines: fd.NumberOfLines}, nil
	case KindNumber:
		return NumberSpec{Min: fd.Min, Max: fd.Max}, nil
	case KindChoice:
		return ChoiceSpec{Choices: fd.Choices, Multi: fd.Multi, Format: fd.Format, FillIn: fd.FillIn}, nil
	case KindLookup:
		return LookupSpec{List: fd.LookupList, Field: fd.LookupField, Multi: fd.Multi}, nil
	case KindUser:
		return UserSpec{Multi: fd.Multi, Selection: fd.Selection}, nil
	case KindURL:
		return URLSpec{Format: fd.Format}, nil
	case KindDateTime:
		return DateTimeSpec{DateOnly: fd.DateOnly}, nil
	case KindBoolean:
		return BooleanSpec{}, nil
	case "":
		return nil, fmt.Errorf("type is required")
	}
	return nil, fmt.Errorf("unknown field type %q", fd.Type)
}

func fromTemplate(t *Template) templateDoc {
	doc := templateDoc{
		Version: t.Version,
		List: listDoc{
			Description:         t.List.Description,
			BaseTemplate:        t.List.BaseTemplate,
			ContentTypesEnabled: t.List.ContentTypesEnabled,
			Settings:            t.List.Settings,
		},
	}
	for _, f := range t.Fields {
		fd := fieldDoc{
			InternalName: f.InternalName,
			Title:        f.Title,
			Type:         f.Kind(),
			Description:  f.Description,
			Required:     f.Required,
			Hidden:       f.Hidden,
		}
		switch s := f.Spec.(type) {
		case TextSpec:
			fd.MaxLength = s.MaxLength
		case NoteSpec:
			fd.RichText, fd.NumberOfLines = s.RichText, s.NumberOfLines
		case NumberSpec:
			fd.Min, fd.Max = s.Min, s.Max
		case ChoiceSpec:
			fd.Choices, fd.Multi, fd.Format, fd.FillIn = s.Choices, s.Multi, s.Format, s.FillIn
		case LookupSpec:
			fd.LookupList, fd.LookupField, fd.Multi = s.List, s.Field, s.Multi
		case UserSpec:
			fd.Multi, fd.Selection = s.Multi, s.Selection
		case URLSpec:
			fd.Format = s.Format
		case DateTimeSpec:
			fd.DateOnly = s.DateOnly
		case BooleanSpec:
		}
		doc.Fields = append(doc.Fields, fd)
	}
	for _, v := range t.Views {
		doc.Views = append(doc.Views, viewDoc{
			Title:    v.Title,
			Personal: v.Personal,
			Settings: v.Settings,
			Fields:   v.Fields,
		})
	}
	return doc
}
