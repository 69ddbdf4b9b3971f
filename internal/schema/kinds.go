package schema

import "fmt"

// Kind is the type discriminator of a field template.
type Kind string

const (
	KindText     Kind = "text"
	KindNote     Kind = "note"
	KindNumber   Kind = "number"
	KindChoice   Kind = "choice"
	KindLookup   Kind = "lookup"
	KindUser     Kind = "user"
	KindURL      Kind = "url"
	KindDateTime Kind = "datetime"
	KindBoolean  Kind = "boolean"
)

// AllKinds returns every field kind, in declaration order.
func AllKinds() []Kind {
	return []Kind{
		KindText, KindNote, KindNumber, KindChoice, KindLookup,
		KindUser, KindURL, KindDateTime, KindBoolean,
	}
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	for _, known := range AllKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// FieldSpec carries the type-specific part of a field template.
// The set of implementations is closed; see AllKinds.
type FieldSpec interface {
	Kind() Kind
	// TypeName is the remote type name ("Text", "LookupMulti", ...).
	TypeName() string

	attributes(attrs map[string]any)
	validate() error
	sealed()
}

// TextSpec is a single line of text.
type TextSpec struct {
	MaxLength int
}

func (TextSpec) Kind() Kind       { return KindText }
func (TextSpec) TypeName() string { return "Text" }
func (TextSpec) sealed()          {}

func (s TextSpec) attributes(attrs map[string]any) {
	attrs["MaxLength"] = s.maxLength()
}

func (s TextSpec) validate() error {
	if s.MaxLength < 0 || s.MaxLength > 255 {
		return fmt.Errorf("maxLength must be between 1 and 255 (got %d)", s.MaxLength)
	}
	return nil
}

func (s TextSpec) maxLength() int {
	if s.MaxLength == 0 {
		return 255
	}
	return s.MaxLength
}

// NoteSpec is a multi-line text field.
type NoteSpec struct {
	RichText      bool
	NumberOfLines int
}

func (NoteSpec) Kind() Kind       { return KindNote }
func (NoteSpec) TypeName() string { return "Note" }
func (NoteSpec) sealed()          {}

func (s NoteSpec) attributes(attrs map[string]any) {
	lines := s.NumberOfLines
	if lines == 0 {
		lines = 6
	}
	attrs["RichText"] = s.RichText
	attrs["NumberOfLines"] = lines
}

func (s NoteSpec) validate() error {
	if s.NumberOfLines < 0 {
		return fmt.Errorf("numberOfLines must be positive (got %d)", s.NumberOfLines)
	}
	return nil
}

// NumberSpec is a numeric field with optional bounds.
type NumberSpec struct {
	Min *float64
	Max *float64
}

func (NumberSpec) Kind() Kind       { return KindNumber }
func (NumberSpec) TypeName() string { return "Number" }
func (NumberSpec) sealed()          {}

func (s NumberSpec) attributes(attrs map[string]any) {
	if s.Min != nil {
		attrs["MinimumValue"] = *s.Min
	}
	if s.Max != nil {
		attrs["MaximumValue"] = *s.Max
	}
}

func (s NumberSpec) validate() error {
	if s.Min != nil && s.Max != nil && *s.Min > *s.Max {
		return fmt.Errorf("min %v is greater than max %v", *s.Min, *s.Max)
	}
	return nil
}

// ChoiceSpec is a fixed set of choices.
type ChoiceSpec struct {
	Choices []string
	Multi   bool
	// Format is "dropdown" (default) or "radio"; ignored when Multi is set.
	Format string
	FillIn bool
}

func (ChoiceSpec) Kind() Kind { return KindChoice }
func (ChoiceSpec) sealed()    {}

func (s ChoiceSpec) TypeName() string {
	if s.Multi {
		return "MultiChoice"
	}
	return "Choice"
}

func (s ChoiceSpec) attributes(attrs map[string]any) {
	choices := make([]string, len(s.Choices))
	copy(choices, s.Choices)
	attrs["Choices"] = choices
	attrs["FillInChoice"] = s.FillIn
	if !s.Multi {
		attrs["EditFormat"] = s.editFormat()
	}
}

func (s ChoiceSpec) editFormat() int {
	if s.Format == "radio" {
		return 1
	}
	return 0
}

func (s ChoiceSpec) validate() error {
	if len(s.Choices) == 0 {
		return fmt.Errorf("choice field needs at least one choice")
	}
	seen := make(map[string]bool, len(s.Choices))
	for _, c := range s.Choices {
		if c == "" {
			return fmt.Errorf("choices cannot be empty strings")
		}
		if seen[c] {
			return fmt.Errorf("duplicate choice %q", c)
		}
		seen[c] = true
	}
	switch s.Format {
	case "", "dropdown", "radio":
	default:
		return fmt.Errorf("unknown choice format %q", s.Format)
	}
	return nil
}

// LookupSpec references an item in another list. List is a list title or
// SelfListToken.
type LookupSpec struct {
	List  string
	Field string
	Multi bool
}

func (LookupSpec) Kind() Kind { return KindLookup }
func (LookupSpec) sealed()    {}

func (s LookupSpec) TypeName() string {
	if s.Multi {
		return "LookupMulti"
	}
	return "Lookup"
}

// IsSelf reports whether the lookup targets the list being reconciled.
func (s LookupSpec) IsSelf() bool {
	return s.List == SelfListToken
}

// TargetField returns the shown field, defaulting to Title.
func (s LookupSpec) TargetField() string {
	if s.Field == "" {
		return "Title"
	}
	return s.Field
}

func (s LookupSpec) attributes(attrs map[string]any) {
	attrs["LookupList"] = s.List
	attrs["LookupField"] = s.TargetField()
	attrs["AllowMultipleValues"] = s.Multi
}

func (s LookupSpec) validate() error {
	if s.List == "" {
		return fmt.Errorf("lookup field needs a target list")
	}
	return nil
}

// UserSpec is a person or group field.
type UserSpec struct {
	Multi bool
	// Selection is "people" (default) or "people_and_groups".
	Selection string
}

func (UserSpec) Kind() Kind { return KindUser }
func (UserSpec) sealed()    {}

func (s UserSpec) TypeName() string {
	if s.Multi {
		return "UserMulti"
	}
	return "User"
}

func (s UserSpec) attributes(attrs map[string]any) {
	mode := 0
	if s.Selection == "people_and_groups" {
		mode = 1
	}
	attrs["AllowMultipleValues"] = s.Multi
	attrs["SelectionMode"] = mode
}

func (s UserSpec) validate() error {
	switch s.Selection {
	case "", "people", "people_and_groups":
		return nil
	}
	return fmt.Errorf("unknown selection %q", s.Selection)
}

// URLSpec is a hyperlink or picture field.
type URLSpec struct {
	// Format is "hyperlink" (default) or "image".
	Format string
}

func (URLSpec) Kind() Kind       { return KindURL }
func (URLSpec) TypeName() string { return "URL" }
func (URLSpec) sealed()          {}

func (s URLSpec) attributes(attrs map[string]any) {
	format := 0
	if s.Format == "image" {
		format = 1
	}
	attrs["DisplayFormat"] = format
}

func (s URLSpec) validate() error {
	switch s.Format {
	case "", "hyperlink", "image":
		return nil
	}
	return fmt.Errorf("unknown url format %q", s.Format)
}

// DateTimeSpec is a date field.
type DateTimeSpec struct {
	DateOnly bool
}

func (DateTimeSpec) Kind() Kind       { return KindDateTime }
func (DateTimeSpec) TypeName() string { return "DateTime" }
func (DateTimeSpec) sealed()          {}
func (DateTimeSpec) validate() error  { return nil }

func (s DateTimeSpec) attributes(attrs map[string]any) {
	format := 1
	if s.DateOnly {
		format = 0
	}
	attrs["DisplayFormat"] = format
}

// BooleanSpec is a yes/no field.
type BooleanSpec struct{}

func (BooleanSpec) Kind() Kind                    { return KindBoolean }
func (BooleanSpec) TypeName() string              { return "Boolean" }
func (BooleanSpec) sealed()                       {}
func (BooleanSpec) validate() error               { return nil }
func (BooleanSpec) attributes(attrs map[string]any) {}
