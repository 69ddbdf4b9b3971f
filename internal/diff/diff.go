// Package diff compares template entries against remote snapshots.
//
// Everything here is pure: no I/O, deterministic, and total over well-formed
// input. Callers decide what to do with the result.
package diff

import (
	"reflect"
	"sort"

	"github.com/aboutus/listsync/internal/remote"
	"github.com/aboutus/listsync/internal/schema"
)

// IgnoredAttributes are never compared: opaque metadata tags, the raw lookup
// target (a title or [THISLIST] in the template, an id remotely) and the
// free-text description.
var IgnoredAttributes = map[string]bool{
	"__metadata":  true,
	"LookupList":  true,
	"Description": true,
}

// FieldDiff is the comparison of one field template with the remote fields.
type FieldDiff struct {
	Exists bool
	// Remote is the matched remote field when Exists is set.
	Remote *remote.RemoteField
	// Updates maps attribute name to desired value; nil when nothing differs.
	Updates map[string]any
	// TypeChange is the template's type name when the remote field has
	// another type, e.g. Choice remotely and MultiChoice in the template.
	// Types cannot be changed in place, so Updates is left nil.
	TypeChange string
}

// NeedsUpdate reports whether an update call is required.
func (d FieldDiff) NeedsUpdate() bool {
	return d.Exists && d.TypeChange == "" && len(d.Updates) > 0
}

// ViewDiff is the comparison of one view template with the remote views.
type ViewDiff struct {
	Exists bool
	Remote *remote.RemoteView
	// Updates holds the template settings whose remote value differs.
	Updates map[string]any
	// FieldsMatch is set when the remote field list already equals the
	// template's, order included.
	FieldsMatch bool
}

// NeedsUpdate reports whether a settings update call is required.
func (d ViewDiff) NeedsUpdate() bool {
	return d.Exists && len(d.Updates) > 0
}

// Field matches t against remote by internal name (first match wins) and
// collects every differing attribute.
func Field(t schema.FieldTemplate, fields []remote.RemoteField) FieldDiff {
	var match *remote.RemoteField
	for i := range fields {
		if fields[i].InternalName == t.InternalName {
			match = &fields[i]
			break
		}
	}
	if match == nil {
		return FieldDiff{}
	}

	d := FieldDiff{Exists: true, Remote: match}
	if want := t.TypeName(); want != "" && match.TypeName != "" && match.TypeName != want {
		d.TypeChange = want
		return d
	}
	for name, want := range t.Attributes() {
		if IgnoredAttributes[name] {
			continue
		}
		have, _ := match.Attr(name)
		if !Equal(want, have) {
			if d.Updates == nil {
				d.Updates = make(map[string]any)
			}
			d.Updates[name] = want
		}
	}
	return d
}

// View matches t against remote by title and compares only the settings the
// template declares.
func View(t schema.ViewTemplate, views []remote.RemoteView) ViewDiff {
	var match *remote.RemoteView
	for i := range views {
		if views[i].Title == t.Title {
			match = &views[i]
			break
		}
	}
	if match == nil {
		return ViewDiff{}
	}

	// Personal is fixed when the view is created and is never compared.
	return ViewDiff{
		Exists:      true,
		Remote:      match,
		Updates:     Settings(t.Settings, match.Settings),
		FieldsMatch: SameFields(t.Fields, match.Fields),
	}
}

// List returns the list properties that differ from the template. Base
// template cannot change after creation and is never compared.
func List(t schema.ListSettings, info remote.ListInfo) map[string]any {
	want := make(map[string]any, len(t.Settings)+2)
	for k, v := range t.Settings {
		want[k] = v
	}
	want["ContentTypesEnabled"] = t.ContentTypesEnabled
	updates := Settings(want, info.Attributes())

	// Description is compared for lists; it is only ignored for fields.
	if !Equal(t.Description, info.Description) {
		if updates == nil {
			updates = make(map[string]any)
		}
		updates["Description"] = t.Description
	}
	return updates
}

// Settings compares the keys of want against have and returns the differing
// subset of want. Keys absent from want are never looked at.
func Settings(want, have map[string]any) map[string]any {
	var updates map[string]any
	for k, v := range want {
		if IgnoredAttributes[k] {
			continue
		}
		if !Equal(v, have[k]) {
			if updates == nil {
				updates = make(map[string]any)
			}
			updates[k] = v
		}
	}
	return updates
}

// SameFields reports whether two field lists have the same members in the
// same order.
func SameFields(want, have []string) bool {
	if len(want) != len(have) {
		return false
	}
	for i := range want {
		if want[i] != have[i] {
			return false
		}
	}
	return true
}

// Equal compares two attribute values after normalization.
func Equal(a, b any) bool {
	return reflect.DeepEqual(Normalize(a), Normalize(b))
}

// Normalize maps a value to its comparable form:
//   - nil becomes ""
//   - every numeric type becomes float64
//   - string slices, []any of strings and {"results": [...]} wrappers become []string
func Normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return ""
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	case []string:
		if len(x) == 0 {
			return []string{}
		}
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(string)
			if !ok {
				return x
			}
			out = append(out, s)
		}
		return out
	case map[string]any:
		if results, ok := x["results"]; ok && len(x) <= 2 {
			return Normalize(results)
		}
		return x
	}
	return v
}

// SortedKeys returns the keys of an update map in order, for stable logs.
func SortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
