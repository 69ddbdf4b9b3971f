package rest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/tidwall/gjson"
	"go.uber.org/zap/zaptest"

	"github.com/aboutus/listsync/internal/diff"
	"github.com/aboutus/listsync/internal/remote"
	"github.com/aboutus/listsync/internal/schema"
)

type recorded struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   string
}

// fakeSite serves canned responses keyed by "METHOD path".
type fakeSite struct {
	mu        sync.Mutex
	requests  []recorded
	responses map[string][]response
	digests   int
}

type response struct {
	status int
	body   string
}

func newFakeSite(t *testing.T) (*fakeSite, *Client) {
	t.Helper()
	site := &fakeSite{responses: make(map[string][]response)}
	srv := httptest.NewServer(http.HandlerFunc(site.serve))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL+"/sites/intranet", Options{
		AccessToken: "token-1",
		Logger:      zaptest.NewLogger(t),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return site, c
}

// on queues a response. The last queued response for a key repeats.
func (s *fakeSite) on(method, path string, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	s.responses[key] = append(s.responses[key], response{status, body})
}

func (s *fakeSite) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	path := strings.TrimPrefix(r.URL.Path, "/sites/intranet")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, recorded{r.Method, path, r.URL.RawQuery, r.Header.Clone(), string(body)})

	if path == "/_api/contextinfo" {
		s.digests++
		w.Write([]byte(`{"d":{"GetContextWebInformation":{"FormDigestValue":"digest-` +
			string(rune('0'+s.digests)) + `","FormDigestTimeoutSeconds":1800}}}`))
		return
	}

	key := r.Method + " " + path
	queue := s.responses[key]
	if len(queue) == 0 {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"message":{"value":"no route ` + key + `"}}}`))
		return
	}
	resp := queue[0]
	if len(queue) > 1 {
		s.responses[key] = queue[1:]
	}
	w.WriteHeader(resp.status)
	w.Write([]byte(resp.body))
}

func (s *fakeSite) last(path string) recorded {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.requests) - 1; i >= 0; i-- {
		if s.requests[i].Path == path {
			return s.requests[i]
		}
	}
	return recorded{}
}

func TestNewRejectsBadSiteURL(t *testing.T) {
	for _, site := range []string{"", "contoso.sharepoint.com"} {
		if _, err := New(site, Options{}); err == nil {
			t.Errorf("New(%q) succeeded, want error", site)
		}
	}
}

func TestGetList(t *testing.T) {
	site, c := newFakeSite(t)
	site.on("GET", "/_api/web/lists/GetByTitle('About Us')", 200, `{"d":{
		"__metadata":{"type":"SP.List"},
		"RootFolder":{"__deferred":{"uri":"x"}},
		"Id":"1111","Title":"About Us","Description":"Who we are",
		"BaseTemplate":100,"ContentTypesEnabled":false,"EnableVersioning":true}}`)

	info, err := c.GetList(context.Background(), "About Us")
	if err != nil {
		t.Fatalf("GetList failed: %v", err)
	}
	want := remote.ListInfo{
		ID:           "1111",
		Title:        "About Us",
		Description:  "Who we are",
		BaseTemplate: 100,
		Settings:     map[string]any{"EnableVersioning": true},
	}
	if d := cmp.Diff(want, info); d != "" {
		t.Errorf("list mismatch (-want +got):\n%s", d)
	}

	req := site.last("/_api/web/lists/GetByTitle('About Us')")
	if got := req.Header.Get("Authorization"); got != "Bearer token-1" {
		t.Errorf("Authorization = %q", got)
	}
	if got := req.Header.Get("Accept"); got != verboseJSON {
		t.Errorf("Accept = %q", got)
	}
}

func TestGetListNotFound(t *testing.T) {
	site, c := newFakeSite(t)
	site.on("GET", "/_api/web/lists/GetByTitle('Missing')", 404,
		`{"error":{"code":"-1","message":{"lang":"en-US","value":"List 'Missing' does not exist."}}}`)

	_, err := c.GetList(context.Background(), "Missing")
	if !errors.Is(err, remote.ErrListNotFound) {
		t.Fatalf("expected ErrListNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "does not exist") {
		t.Errorf("expected server message in error, got %v", err)
	}
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
		fatal     bool
	}{
		{http.StatusTooManyRequests, true, false},
		{http.StatusServiceUnavailable, true, false},
		{http.StatusConflict, true, false},
		{http.StatusPreconditionFailed, true, false},
		{http.StatusUnauthorized, false, true},
		{http.StatusForbidden, false, true},
		{http.StatusBadRequest, false, false},
	}
	for _, tt := range tests {
		err := statusError("field-update", tt.status, nil)
		if remote.IsTransient(err) != tt.transient {
			t.Errorf("%d: IsTransient = %v, want %v", tt.status, !tt.transient, tt.transient)
		}
		if remote.IsFatal(err) != tt.fatal {
			t.Errorf("%d: IsFatal = %v, want %v", tt.status, !tt.fatal, tt.fatal)
		}
	}

	if err := statusError("view-update", 404, nil); !errors.Is(err, remote.ErrViewNotFound) {
		t.Errorf("expected ErrViewNotFound for view op, got %v", err)
	}
}

func TestWritesCarryDigestAndMerge(t *testing.T) {
	site, c := newFakeSite(t)
	path := "/_api/web/lists(guid'1111')/fields(guid'f1')"
	site.on("POST", path, 204, "")

	field := remote.RemoteField{ID: "f1", InternalName: "Mission", TypeName: "Text"}
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := c.UpdateField(ctx, "1111", field, map[string]any{"Title": "Our Mission"}); err != nil {
			t.Fatalf("UpdateField failed: %v", err)
		}
	}

	req := site.last(path)
	if got := req.Header.Get("X-RequestDigest"); got != "digest-1" {
		t.Errorf("X-RequestDigest = %q", got)
	}
	if req.Header.Get("X-HTTP-Method") != "MERGE" || req.Header.Get("IF-MATCH") != "*" {
		t.Errorf("expected MERGE headers, got %v", req.Header)
	}
	if got := gjson.Get(req.Body, "__metadata.type").String(); got != "SP.FieldText" {
		t.Errorf("entity type = %q", got)
	}
	if got := gjson.Get(req.Body, "Title").String(); got != "Our Mission" {
		t.Errorf("Title = %q", got)
	}
	if site.digests != 1 {
		t.Errorf("expected digest to be reused, fetched %d times", site.digests)
	}
	if c.Tokens().Peek().Value != "digest-1" {
		t.Errorf("expected cached digest, got %+v", c.Tokens().Peek())
	}
}

func TestRejectedDigestIsRenewed(t *testing.T) {
	site, c := newFakeSite(t)
	path := "/_api/web/lists(guid'1111')"
	site.on("POST", path, 403, `{"error":{"message":{"value":"The security validation for this page is invalid."}}}`)
	site.on("POST", path, 204, "")

	if err := c.UpdateList(context.Background(), "1111", map[string]any{"EnableVersioning": true}); err != nil {
		t.Fatalf("UpdateList failed: %v", err)
	}
	if site.digests != 2 {
		t.Errorf("expected digest renewal, fetched %d times", site.digests)
	}
	if got := site.last(path).Header.Get("X-RequestDigest"); got != "digest-2" {
		t.Errorf("retry used digest %q", got)
	}
}

func TestFieldsNormalizeChoices(t *testing.T) {
	site, c := newFakeSite(t)
	site.on("GET", "/_api/web/lists(guid'1111')/fields", 200, `{"d":{"results":[
		{"__metadata":{"type":"SP.FieldChoice"},"Id":"f1","InternalName":"UnitType","Title":"Unit Type",
		 "TypeAsString":"Choice","CanBeDeleted":true,"Required":false,
		 "Choices":{"__metadata":{"type":"Collection(Edm.String)"},"results":["Division","Team"]}},
		{"Id":"f2","InternalName":"ID","Title":"ID","TypeAsString":"Counter","CanBeDeleted":false}]}}`)

	fields, err := c.Fields(context.Background(), "1111")
	if err != nil {
		t.Fatalf("Fields failed: %v", err)
	}
	if len(fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(fields))
	}
	f := fields[0]
	if f.ID != "f1" || f.InternalName != "UnitType" || f.Title != "Unit Type" || !f.CanBeDeleted {
		t.Errorf("unexpected field: %+v", f)
	}
	if !diff.Equal([]string{"Division", "Team"}, f.Attrs["Choices"]) {
		t.Errorf("choices not comparable: %#v", f.Attrs["Choices"])
	}
	if _, ok := f.Attrs["__metadata"]; ok {
		t.Error("metadata leaked into attrs")
	}
}

func TestAddFieldTitlesAfterInternalName(t *testing.T) {
	site, c := newFakeSite(t)
	path := "/_api/web/lists(guid'1111')/fields"
	site.on("POST", path, 201, `{"d":{"Id":"f9","InternalName":"UnitType","Title":"UnitType","TypeAsString":"Choice","CanBeDeleted":true}}`)

	field, err := c.AddField(context.Background(), "1111", remote.FieldCreate{
		InternalName: "UnitType",
		Title:        "Unit Type",
		Kind:         schema.KindChoice,
		TypeName:     "Choice",
		Attrs:        map[string]any{"Choices": []string{"Division", "Team"}, "Required": true},
	})
	if err != nil {
		t.Fatalf("AddField failed: %v", err)
	}
	if field.ID != "f9" {
		t.Errorf("unexpected field %+v", field)
	}

	body := site.last(path).Body
	if got := gjson.Get(body, "Title").String(); got != "UnitType" {
		t.Errorf("Title = %q, want internal name", got)
	}
	if got := gjson.Get(body, "FieldTypeKind").Int(); got != 6 {
		t.Errorf("FieldTypeKind = %d", got)
	}
	if got := gjson.Get(body, "Choices.results.#").Int(); got != 2 {
		t.Errorf("expected 2 choices, body %s", body)
	}
	if got := gjson.Get(body, "Choices.__metadata.type").String(); got != "Collection(Edm.String)" {
		t.Errorf("choices collection type = %q", got)
	}
}

func TestAddLookupField(t *testing.T) {
	site, c := newFakeSite(t)
	site.on("POST", "/_api/web/lists(guid'1111')/fields/addfield", 201,
		`{"d":{"Id":"f7","InternalName":"ParentUnit","Title":"ParentUnit","TypeAsString":"LookupMulti","CanBeDeleted":true}}`)
	site.on("POST", "/_api/web/lists(guid'1111')/fields(guid'f7')", 204, "")

	field, err := c.AddField(context.Background(), "1111", remote.FieldCreate{
		InternalName: "ParentUnit",
		Kind:         schema.KindLookup,
		TypeName:     "LookupMulti",
		Attrs: map[string]any{
			"LookupList":          "1111",
			"LookupField":         "Title",
			"AllowMultipleValues": true,
		},
	})
	if err != nil {
		t.Fatalf("AddField failed: %v", err)
	}

	add := site.last("/_api/web/lists(guid'1111')/fields/addfield").Body
	if got := gjson.Get(add, "parameters.__metadata.type").String(); got != "SP.FieldCreationInformation" {
		t.Errorf("parameters type = %q", got)
	}
	if got := gjson.Get(add, "parameters.LookupListId").String(); got != "1111" {
		t.Errorf("LookupListId = %q", got)
	}

	merge := site.last("/_api/web/lists(guid'1111')/fields(guid'f7')").Body
	if !gjson.Get(merge, "AllowMultipleValues").Bool() {
		t.Errorf("expected follow-up merge of AllowMultipleValues, got %s", merge)
	}
	if field.Attrs["AllowMultipleValues"] != true {
		t.Errorf("returned field misses merged attrs: %+v", field.Attrs)
	}
}

func TestViews(t *testing.T) {
	site, c := newFakeSite(t)
	site.on("GET", "/_api/web/lists(guid'1111')/views", 200, `{"d":{"results":[
		{"Id":"v1","Title":"All Items","PersonalView":false,"RowLimit":30,"DefaultView":true,
		 "ViewFields":{"__metadata":{"type":"SP.ViewFieldCollection"},"Items":{"results":["LinkTitle","Mission"]}}}]}}`)

	views, err := c.Views(context.Background(), "1111")
	if err != nil {
		t.Fatalf("Views failed: %v", err)
	}
	want := []remote.RemoteView{{
		ID:       "v1",
		Title:    "All Items",
		Settings: map[string]any{"RowLimit": float64(30), "DefaultView": true},
		Fields:   []string{"LinkTitle", "Mission"},
	}}
	if d := cmp.Diff(want, views); d != "" {
		t.Errorf("views mismatch (-want +got):\n%s", d)
	}
}

func TestAddViewReadsBackFields(t *testing.T) {
	site, c := newFakeSite(t)
	site.on("POST", "/_api/web/lists(guid'1111')/views", 201,
		`{"d":{"Id":"v2","Title":"Team","PersonalView":false,"RowLimit":50}}`)
	site.on("GET", "/_api/web/lists(guid'1111')/views(guid'v2')", 200,
		`{"d":{"Id":"v2","Title":"Team","PersonalView":false,"RowLimit":50,
		 "ViewFields":{"Items":{"results":["LinkTitle","Modified"]}}}}`)

	view, err := c.AddView(context.Background(), "1111", "Team", false, map[string]any{"RowLimit": 50})
	if err != nil {
		t.Fatalf("AddView failed: %v", err)
	}
	if d := cmp.Diff([]string{"LinkTitle", "Modified"}, view.Fields); d != "" {
		t.Errorf("default fields of the new view not read (-want +got):\n%s", d)
	}
	if got := site.last("/_api/web/lists(guid'1111')/views(guid'v2')").Query; !strings.Contains(got, "$expand=ViewFields") {
		t.Errorf("read-back query = %q, want ViewFields expanded", got)
	}
}

func TestAddViewKeepsCreateWhenReadBackFails(t *testing.T) {
	site, c := newFakeSite(t)
	site.on("POST", "/_api/web/lists(guid'1111')/views", 201,
		`{"d":{"Id":"v2","Title":"Team","PersonalView":false}}`)
	site.on("GET", "/_api/web/lists(guid'1111')/views(guid'v2')", 503, `{"error":{"message":{"value":"busy"}}}`)

	view, err := c.AddView(context.Background(), "1111", "Team", false, nil)
	if err != nil {
		t.Fatalf("a created view must not be reported failed: %v", err)
	}
	if view.ID != "v2" {
		t.Errorf("expected created view v2, got %+v", view)
	}
}

func TestViewFieldCalls(t *testing.T) {
	site, c := newFakeSite(t)
	base := "/_api/web/lists(guid'1111')/views(guid'v1')/viewfields"
	site.on("POST", base+"/removeallviewfields", 200, `{"d":{}}`)
	site.on("POST", base+"/addviewfield('O''Brien')", 200, `{"d":{}}`)

	ctx := context.Background()
	if err := c.RemoveAllViewFields(ctx, "1111", "v1"); err != nil {
		t.Fatalf("RemoveAllViewFields failed: %v", err)
	}
	if err := c.AddViewField(ctx, "1111", "v1", "O'Brien"); err != nil {
		t.Fatalf("AddViewField failed: %v", err)
	}
}

func TestListTitles(t *testing.T) {
	site, c := newFakeSite(t)
	site.on("GET", "/_api/web/lists", 200, `{"d":{"results":[{"Title":"Documents"},{"Title":"About Us"}]}}`)

	titles, err := c.ListTitles(context.Background())
	if err != nil {
		t.Fatalf("ListTitles failed: %v", err)
	}
	if d := cmp.Diff([]string{"Documents", "About Us"}, titles); d != "" {
		t.Errorf("titles mismatch (-want +got):\n%s", d)
	}
}
