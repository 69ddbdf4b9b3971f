package schema

import (
	"fmt"
	"regexp"

	"golang.org/x/mod/semver"
)

// SelfListToken as a lookup target means "the list being reconciled".
const SelfListToken = "[THISLIST]"

// GenericListTemplate is the base template code of a custom list.
const GenericListTemplate = 100

var internalNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Template is the desired state of a list: its settings, fields and views.
type Template struct {
	Version string
	List    ListSettings
	Fields  []FieldTemplate
	Views   []ViewTemplate
}

// ListSettings describes the list container itself.
type ListSettings struct {
	Description         string
	BaseTemplate        int
	ContentTypesEnabled bool
	// Settings holds free-form list properties (EnableVersioning, ...).
	Settings map[string]any
}

// FieldTemplate is one desired column.
type FieldTemplate struct {
	// InternalName is the stable identifier; it is never renamed once created.
	InternalName string
	Title        string
	Description  string
	Required     bool
	Hidden       bool
	Spec         FieldSpec
}

// ViewTemplate is one desired view. Only the keys present in Settings are
// ever compared or written.
type ViewTemplate struct {
	Title    string
	Personal bool
	Settings map[string]any
	Fields   []string
}

// Kind returns the field's type discriminator.
func (f FieldTemplate) Kind() Kind {
	if f.Spec == nil {
		return ""
	}
	return f.Spec.Kind()
}

// TypeName returns the remote type name of the field.
func (f FieldTemplate) TypeName() string {
	if f.Spec == nil {
		return ""
	}
	return f.Spec.TypeName()
}

// DisplayTitle returns Title, falling back to the internal name.
func (f FieldTemplate) DisplayTitle() string {
	if f.Title == "" {
		return f.InternalName
	}
	return f.Title
}

// Attributes returns the comparable attributes of the field keyed by remote
// property name.
func (f FieldTemplate) Attributes() map[string]any {
	attrs := map[string]any{
		"Title":       f.DisplayTitle(),
		"Required":    f.Required,
		"Hidden":      f.Hidden,
		"Description": f.Description,
	}
	if f.Spec != nil {
		f.Spec.attributes(attrs)
	}
	return attrs
}

// Lookup returns the lookup spec when the field is a lookup.
func (f FieldTemplate) Lookup() (LookupSpec, bool) {
	spec, ok := f.Spec.(LookupSpec)
	return spec, ok
}

// Validate checks a single field template.
func (f FieldTemplate) Validate() error {
	if f.InternalName == "" {
		return fmt.Errorf("internalName is required")
	}
	if !internalNameRe.MatchString(f.InternalName) {
		return fmt.Errorf("invalid internalName %q (must match %s)", f.InternalName, internalNameRe)
	}
	if f.Spec == nil {
		return fmt.Errorf("field %s: type is required", f.InternalName)
	}
	if err := f.Spec.validate(); err != nil {
		return fmt.Errorf("field %s: %w", f.InternalName, err)
	}
	return nil
}

// Validate checks a single view template.
func (v ViewTemplate) Validate() error {
	if v.Title == "" {
		return fmt.Errorf("view title is required")
	}
	seen := make(map[string]bool, len(v.Fields))
	for _, name := range v.Fields {
		if name == "" {
			return fmt.Errorf("view %s: empty field name", v.Title)
		}
		if seen[name] {
			return fmt.Errorf("view %s: duplicate field %s", v.Title, name)
		}
		seen[name] = true
	}
	return nil
}

// Validate checks the whole template.
func (t *Template) Validate() error {
	if t.Version == "" {
		return fmt.Errorf("version is required")
	}
	if !semver.IsValid(CanonicalVersion(t.Version)) {
		return fmt.Errorf("version %q is not a semantic version", t.Version)
	}
	if t.List.BaseTemplate < 0 {
		return fmt.Errorf("list baseTemplate must be positive (got %d)", t.List.BaseTemplate)
	}

	names := make(map[string]bool, len(t.Fields))
	for _, f := range t.Fields {
		if err := f.Validate(); err != nil {
			return err
		}
		if names[f.InternalName] {
			return fmt.Errorf("duplicate field %s", f.InternalName)
		}
		names[f.InternalName] = true
	}

	titles := make(map[string]bool, len(t.Views))
	for _, v := range t.Views {
		if err := v.Validate(); err != nil {
			return err
		}
		if titles[v.Title] {
			return fmt.Errorf("duplicate view %s", v.Title)
		}
		titles[v.Title] = true
	}
	return nil
}

// Field returns the field template with the given internal name.
func (t *Template) Field(internalName string) (FieldTemplate, bool) {
	for _, f := range t.Fields {
		if f.InternalName == internalName {
			return f, true
		}
	}
	return FieldTemplate{}, false
}

// View returns the view template with the given title.
func (t *Template) View(title string) (ViewTemplate, bool) {
	for _, v := range t.Views {
		if v.Title == title {
			return v, true
		}
	}
	return ViewTemplate{}, false
}

// CanonicalVersion returns the version with the "v" prefix semver expects.
func CanonicalVersion(v string) string {
	if v == "" || v[0] == 'v' {
		return v
	}
	return "v" + v
}

// CompareVersions compares two template versions using semver ordering.
func CompareVersions(a, b string) int {
	return semver.Compare(CanonicalVersion(a), CanonicalVersion(b))
}
