package rest

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/aboutus/listsync/internal/remote"
)

var listKeys = []string{"Id", "Title", "Description", "BaseTemplate", "ContentTypesEnabled"}

func parseList(e gjson.Result) remote.ListInfo {
	return remote.ListInfo{
		ID:                  e.Get("Id").String(),
		Title:               e.Get("Title").String(),
		Description:         e.Get("Description").String(),
		BaseTemplate:        int(e.Get("BaseTemplate").Int()),
		ContentTypesEnabled: e.Get("ContentTypesEnabled").Bool(),
		Settings:            properties(e, listKeys...),
	}
}

// ListTitles implements remote.Store.
func (c *Client) ListTitles(ctx context.Context) ([]string, error) {
	body, err := c.get(ctx, "list-titles", "/_api/web/lists?$select=Title")
	if err != nil {
		return nil, err
	}
	var titles []string
	for _, r := range results(body) {
		titles = append(titles, r.Get("Title").String())
	}
	return titles, nil
}

// GetList implements remote.Store.
func (c *Client) GetList(ctx context.Context, title string) (remote.ListInfo, error) {
	body, err := c.get(ctx, "list-get", fmt.Sprintf("/_api/web/lists/GetByTitle('%s')", literal(title)))
	if err != nil {
		return remote.ListInfo{}, err
	}
	return parseList(entity(body)), nil
}

// CreateList implements remote.Store.
func (c *Client) CreateList(ctx context.Context, spec remote.ListCreate) (remote.ListInfo, error) {
	props := make(map[string]any, len(spec.Settings)+4)
	for k, v := range spec.Settings {
		props[k] = v
	}
	props["Title"] = spec.Title
	props["Description"] = spec.Description
	props["BaseTemplate"] = spec.BaseTemplate
	props["ContentTypesEnabled"] = spec.ContentTypesEnabled

	req, err := entityBody("SP.List", props)
	if err != nil {
		return remote.ListInfo{}, err
	}
	body, err := c.post(ctx, "list-create", "/_api/web/lists", req, false)
	if err != nil {
		return remote.ListInfo{}, err
	}
	return parseList(entity(body)), nil
}

// UpdateList implements remote.Store.
func (c *Client) UpdateList(ctx context.Context, listID string, updates map[string]any) error {
	req, err := entityBody("SP.List", updates)
	if err != nil {
		return err
	}
	_, err = c.post(ctx, "list-update", listPath(listID), req, true)
	return err
}
