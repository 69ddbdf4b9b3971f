package rest

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/aboutus/listsync/internal/remote"
)

var viewKeys = []string{"Id", "Title", "PersonalView", "ViewFields"}

func parseView(e gjson.Result) remote.RemoteView {
	v := remote.RemoteView{
		ID:       e.Get("Id").String(),
		Title:    e.Get("Title").String(),
		Personal: e.Get("PersonalView").Bool(),
		Settings: properties(e, viewKeys...),
	}
	for _, name := range e.Get("ViewFields.Items.results").Array() {
		v.Fields = append(v.Fields, name.String())
	}
	return v
}

func viewPath(listID, viewID string) string {
	return fmt.Sprintf("%s/views(guid'%s')", listPath(listID), viewID)
}

// Views implements remote.Store.
func (c *Client) Views(ctx context.Context, listID string) ([]remote.RemoteView, error) {
	body, err := c.get(ctx, "views", listPath(listID)+"/views?$expand=ViewFields")
	if err != nil {
		return nil, err
	}
	items := results(body)
	views := make([]remote.RemoteView, 0, len(items))
	for _, item := range items {
		views = append(views, parseView(item))
	}
	return views, nil
}

// AddView implements remote.Store. The create response carries no field
// list, so the new view is read back with the default fields SharePoint
// gave it.
func (c *Client) AddView(ctx context.Context, listID, title string, personal bool, settings map[string]any) (remote.RemoteView, error) {
	props := make(map[string]any, len(settings)+2)
	for k, v := range settings {
		props[k] = v
	}
	props["Title"] = title
	props["PersonalView"] = personal

	req, err := entityBody("SP.View", props)
	if err != nil {
		return remote.RemoteView{}, err
	}
	body, err := c.post(ctx, "view-add", listPath(listID)+"/views", req, false)
	if err != nil {
		return remote.RemoteView{}, err
	}
	created := parseView(entity(body))

	// A failed read must not fail the create: retrying it would conflict
	// with the view that now exists. The next run sees the real fields.
	body, err = c.get(ctx, "view", viewPath(listID, created.ID)+"?$expand=ViewFields")
	if err != nil {
		c.logger.Warn("failed to read fields of new view",
			zap.String("view", title), zap.Error(err))
		return created, nil
	}
	return parseView(entity(body)), nil
}

// UpdateView implements remote.Store.
func (c *Client) UpdateView(ctx context.Context, listID, viewID string, updates map[string]any) error {
	req, err := entityBody("SP.View", updates)
	if err != nil {
		return err
	}
	_, err = c.post(ctx, "view-update", viewPath(listID, viewID), req, true)
	return err
}

// RemoveAllViewFields implements remote.Store.
func (c *Client) RemoveAllViewFields(ctx context.Context, listID, viewID string) error {
	_, err := c.post(ctx, "view-fields-reset", viewPath(listID, viewID)+"/viewfields/removeallviewfields", nil, false)
	return err
}

// AddViewField implements remote.Store.
func (c *Client) AddViewField(ctx context.Context, listID, viewID, fieldName string) error {
	path := fmt.Sprintf("%s/viewfields/addviewfield('%s')", viewPath(listID, viewID), literal(fieldName))
	_, err := c.post(ctx, "view-field-add", path, nil, false)
	return err
}
