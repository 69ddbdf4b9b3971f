// Package schema describes the desired shape of the About-Us list.
//
// A Template is the declarative target state that reconciliation converges
// a remote list towards:
//
//	Template
//	   ├── List    description, base template, content types, settings
//	   ├── Fields  ordered FieldTemplate entries, keyed by internal name
//	   └── Views   ordered ViewTemplate entries, keyed by title
//
// Templates are read-only once loaded. They are parsed from JSON or YAML
// documents whose fields carry a "type" discriminator; each discriminator
// maps to exactly one FieldSpec variant:
//
//	text      TextSpec       single line of text
//	note      NoteSpec       multiple lines, optionally rich text
//	number    NumberSpec     numeric with optional bounds
//	choice    ChoiceSpec     fixed choices, optionally multi-select
//	lookup    LookupSpec     reference to an item of another list
//	user      UserSpec       person or group
//	url       URLSpec        hyperlink or picture
//	datetime  DateTimeSpec   date, optionally with time
//	boolean   BooleanSpec    yes/no
//
// A lookup whose target list is "[THISLIST]" points at the list being
// reconciled and is resolved to that list's id at creation time.
//
// Usage:
//
//	tmpl, err := schema.Load("aboutus.yaml")
//	if err != nil {
//	    return err
//	}
//	for _, f := range tmpl.Fields {
//	    fmt.Println(f.InternalName, f.Spec.Kind())
//	}
//
// Default returns the template embedded in the binary.
package schema
