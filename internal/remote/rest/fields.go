package rest

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/aboutus/listsync/internal/remote"
	"github.com/aboutus/listsync/internal/schema"
)

// fieldType is how SharePoint identifies a field type on the wire.
type fieldType struct {
	Kind   int
	Entity string
}

// fieldTypes is keyed by TypeAsString.
var fieldTypes = map[string]fieldType{
	"Text":        {2, "SP.FieldText"},
	"Note":        {3, "SP.FieldMultiLineText"},
	"DateTime":    {4, "SP.FieldDateTime"},
	"Choice":      {6, "SP.FieldChoice"},
	"Lookup":      {7, "SP.FieldLookup"},
	"LookupMulti": {7, "SP.FieldLookup"},
	"Boolean":     {8, "SP.Field"},
	"Number":      {9, "SP.FieldNumber"},
	"URL":         {11, "SP.FieldUrl"},
	"MultiChoice": {15, "SP.FieldMultiChoice"},
	"User":        {20, "SP.FieldUser"},
	"UserMulti":   {20, "SP.FieldUser"},
}

func typeFor(typeName string) fieldType {
	if ft, ok := fieldTypes[typeName]; ok {
		return ft
	}
	return fieldType{Entity: "SP.Field"}
}

var fieldKeys = []string{"Id", "InternalName", "Title", "TypeAsString", "CanBeDeleted"}

func parseField(e gjson.Result) remote.RemoteField {
	return remote.RemoteField{
		ID:           e.Get("Id").String(),
		InternalName: e.Get("InternalName").String(),
		Title:        e.Get("Title").String(),
		TypeName:     e.Get("TypeAsString").String(),
		CanBeDeleted: e.Get("CanBeDeleted").Bool(),
		Attrs:        properties(e, fieldKeys...),
	}
}

// Fields implements remote.Store.
func (c *Client) Fields(ctx context.Context, listID string) ([]remote.RemoteField, error) {
	body, err := c.get(ctx, "fields", listPath(listID)+"/fields")
	if err != nil {
		return nil, err
	}
	items := results(body)
	fields := make([]remote.RemoteField, 0, len(items))
	for _, item := range items {
		fields = append(fields, parseField(item))
	}
	return fields, nil
}

// AddField implements remote.Store.
//
// The new field is titled after its internal name, which is what makes
// SharePoint derive the internal name from it. Lookup fields go through the
// addfield operation, the only way to bind the target list at creation; the
// properties that operation cannot carry are merged in right after.
func (c *Client) AddField(ctx context.Context, listID string, spec remote.FieldCreate) (remote.RemoteField, error) {
	if spec.Kind == schema.KindLookup {
		return c.addLookupField(ctx, listID, spec)
	}

	ft := typeFor(spec.TypeName)
	props := make(map[string]any, len(spec.Attrs)+2)
	for k, v := range spec.Attrs {
		props[k] = v
	}
	props["Title"] = spec.InternalName
	props["FieldTypeKind"] = ft.Kind

	req, err := entityBody(ft.Entity, props)
	if err != nil {
		return remote.RemoteField{}, err
	}
	body, err := c.post(ctx, "field-add", listPath(listID)+"/fields", req, false)
	if err != nil {
		return remote.RemoteField{}, err
	}
	return parseField(entity(body)), nil
}

func (c *Client) addLookupField(ctx context.Context, listID string, spec remote.FieldCreate) (remote.RemoteField, error) {
	info := map[string]any{
		"Title":           spec.InternalName,
		"FieldTypeKind":   typeFor(spec.TypeName).Kind,
		"LookupListId":    spec.Attrs["LookupList"],
		"LookupFieldName": spec.Attrs["LookupField"],
	}
	if required, ok := spec.Attrs["Required"]; ok {
		info["Required"] = required
	}

	params, err := entityBody("SP.FieldCreationInformation", info)
	if err != nil {
		return remote.RemoteField{}, err
	}
	req, err := wrapBody("parameters", params)
	if err != nil {
		return remote.RemoteField{}, err
	}
	body, err := c.post(ctx, "field-add", listPath(listID)+"/fields/addfield", req, false)
	if err != nil {
		return remote.RemoteField{}, err
	}
	field := parseField(entity(body))

	rest := make(map[string]any)
	for k, v := range spec.Attrs {
		switch k {
		case "LookupList", "LookupField", "Required", "Title":
			continue
		}
		rest[k] = v
	}
	if len(rest) == 0 {
		return field, nil
	}
	if err := c.UpdateField(ctx, listID, field, rest); err != nil {
		return field, fmt.Errorf("lookup %s created but not configured: %w", spec.InternalName, err)
	}
	for k, v := range rest {
		field.Attrs[k] = v
	}
	return field, nil
}

// UpdateField implements remote.Store.
func (c *Client) UpdateField(ctx context.Context, listID string, field remote.RemoteField, updates map[string]any) error {
	req, err := entityBody(typeFor(field.TypeName).Entity, updates)
	if err != nil {
		return err
	}
	path := fmt.Sprintf("%s/fields(guid'%s')", listPath(listID), field.ID)
	_, err = c.post(ctx, "field-update", path, req, true)
	return err
}
