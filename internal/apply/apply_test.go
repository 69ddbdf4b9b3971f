package apply

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"

	"github.com/aboutus/listsync/internal/remote"
	"github.com/aboutus/listsync/internal/remote/remotetest"
	"github.com/aboutus/listsync/internal/schema"
	"github.com/aboutus/listsync/internal/settle"
)

func newTestApplier(t *testing.T, store remote.Store) *Applier {
	t.Helper()
	return New(store, Options{
		Policy: settle.NoWait(),
		Logger: zaptest.NewLogger(t),
	})
}

func missionField() schema.FieldTemplate {
	return schema.FieldTemplate{
		InternalName: "Mission",
		Title:        "Mission Statement",
		Required:     true,
		Spec:         schema.TextSpec{MaxLength: 255},
	}
}

func fieldsOf(t *testing.T, store *remotetest.Store, listID string) []remote.RemoteField {
	t.Helper()
	fields, err := store.Fields(context.Background(), listID)
	if err != nil {
		t.Fatalf("Fields failed: %v", err)
	}
	return fields
}

func viewsOf(t *testing.T, store *remotetest.Store, listID string) []remote.RemoteView {
	t.Helper()
	views, err := store.Views(context.Background(), listID)
	if err != nil {
		t.Fatalf("Views failed: %v", err)
	}
	return views
}

func TestEveryKindHasBuilder(t *testing.T) {
	for _, k := range schema.AllKinds() {
		if _, ok := fieldBuilders[k]; !ok {
			t.Errorf("no builder for kind %q", k)
		}
	}
}

func TestCreateFieldCorrectsTitle(t *testing.T) {
	ctx := context.Background()
	store := remotetest.New()
	list := store.SeedList("About Us")
	a := newTestApplier(t, store)

	results := a.Fields(ctx, list, []schema.FieldTemplate{missionField()}, fieldsOf(t, store, list.ID))
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.Action != ActionCreated || r.Err != nil {
		t.Fatalf("expected clean create, got %+v", r)
	}
	if diff := cmp.Diff([]string{"Title"}, r.Changed); diff != "" {
		t.Errorf("changed mismatch (-want +got):\n%s", diff)
	}

	updates := store.Calls(remotetest.OpUpdateField)
	if len(updates) != 1 || updates[0].Target != "Mission" || updates[0].Updates["Title"] != "Mission Statement" {
		t.Errorf("expected one title correction for Mission, got %+v", updates)
	}
}

func TestFieldsSecondRunIsNoop(t *testing.T) {
	ctx := context.Background()
	store := remotetest.New()
	list := store.SeedList("About Us")
	a := newTestApplier(t, store)

	templates := []schema.FieldTemplate{
		missionField(),
		{InternalName: "UnitType", Spec: schema.ChoiceSpec{Choices: []string{"Division", "Team"}}},
		{InternalName: "SortOrder", Spec: schema.NumberSpec{}},
		{InternalName: "ShowInNavigation", Spec: schema.BooleanSpec{}},
	}
	a.Fields(ctx, list, templates, fieldsOf(t, store, list.ID))
	store.ResetCalls()

	results := a.Fields(ctx, list, templates, fieldsOf(t, store, list.ID))
	for _, r := range results {
		if r.Action != ActionUnchanged {
			t.Errorf("%s: expected unchanged, got %s (%v)", r.Name, r.Action, r.Changed)
		}
	}
	for _, op := range []string{remotetest.OpAddField, remotetest.OpUpdateField} {
		if n := len(store.Calls(op)); n != 0 {
			t.Errorf("expected no %s calls, got %d", op, n)
		}
	}
}

func TestUpdateOnlyChangedAttributes(t *testing.T) {
	ctx := context.Background()
	store := remotetest.New()
	list := store.SeedList("About Us")
	store.SeedField(list.ID, remote.RemoteField{
		InternalName: "Mission",
		Title:        "Mission Statement",
		TypeName:     "Text",
		Attrs:        map[string]any{"Required": false, "Hidden": false, "MaxLength": 255},
	})
	a := newTestApplier(t, store)

	results := a.Fields(ctx, list, []schema.FieldTemplate{missionField()}, fieldsOf(t, store, list.ID))
	if results[0].Action != ActionUpdated {
		t.Fatalf("expected update, got %+v", results[0])
	}

	calls := store.Calls(remotetest.OpUpdateField)
	if len(calls) != 1 {
		t.Fatalf("expected 1 update call, got %d", len(calls))
	}
	if diff := cmp.Diff(map[string]any{"Required": true}, calls[0].Updates); diff != "" {
		t.Errorf("updates mismatch (-want +got):\n%s", diff)
	}
}

func TestLookupSelfResolvesToListID(t *testing.T) {
	ctx := context.Background()
	store := remotetest.New()
	list := store.SeedList("About Us")
	a := newTestApplier(t, store)

	parent := schema.FieldTemplate{InternalName: "ParentUnit", Spec: schema.LookupSpec{List: schema.SelfListToken}}
	results := a.Fields(ctx, list, []schema.FieldTemplate{parent}, fieldsOf(t, store, list.ID))
	if results[0].Action != ActionCreated {
		t.Fatalf("expected create, got %+v", results[0])
	}

	adds := store.Calls(remotetest.OpAddField)
	if len(adds) != 1 || adds[0].Updates["LookupList"] != list.ID {
		t.Errorf("expected LookupList %q, got %+v", list.ID, adds)
	}
}

func TestLookupOtherListResolvesByTitle(t *testing.T) {
	ctx := context.Background()
	store := remotetest.New()
	list := store.SeedList("About Us")
	regions := store.SeedList("Regions")
	a := newTestApplier(t, store)

	region := schema.FieldTemplate{InternalName: "Region", Spec: schema.LookupSpec{List: "Regions"}}
	results := a.Fields(ctx, list, []schema.FieldTemplate{region}, fieldsOf(t, store, list.ID))
	if results[0].Err != nil {
		t.Fatalf("unexpected error: %v", results[0].Err)
	}
	adds := store.Calls(remotetest.OpAddField)
	if len(adds) != 1 || adds[0].Updates["LookupList"] != regions.ID {
		t.Errorf("expected LookupList %q, got %+v", regions.ID, adds)
	}
}

func TestUnresolvedLookupIsSkipped(t *testing.T) {
	ctx := context.Background()
	store := remotetest.New()
	list := store.SeedList("About Us")
	a := newTestApplier(t, store)

	templates := []schema.FieldTemplate{
		{InternalName: "Region", Spec: schema.LookupSpec{List: "Regions"}},
		missionField(),
	}
	results := a.Fields(ctx, list, templates, fieldsOf(t, store, list.ID))

	if results[0].Action != ActionSkipped || !errors.Is(results[0].Err, ErrUnresolvedLookup) {
		t.Errorf("expected skipped unresolved lookup, got %+v", results[0])
	}
	if results[1].Action != ActionCreated {
		t.Errorf("expected Mission to still be created, got %+v", results[1])
	}
	if adds := store.Calls(remotetest.OpAddField); len(adds) != 1 || adds[0].Target != "Mission" {
		t.Errorf("expected only Mission to be added, got %+v", adds)
	}
}

func TestLookupSelfWithoutListID(t *testing.T) {
	a := newTestApplier(t, remotetest.New())

	parent := schema.FieldTemplate{InternalName: "ParentUnit", Spec: schema.LookupSpec{List: schema.SelfListToken}}
	_, err := a.buildField(context.Background(), remote.ListInfo{Title: "About Us"}, parent)
	if !errors.Is(err, ErrUnresolvedLookup) {
		t.Errorf("expected ErrUnresolvedLookup, got %v", err)
	}
}

func TestFieldFailureDoesNotStopOthers(t *testing.T) {
	ctx := context.Background()
	store := remotetest.New()
	list := store.SeedList("About Us")
	store.FailOn(remotetest.OpAddField, "Mission", remote.ErrForbidden)

	var seen []string
	a := New(store, Options{
		Policy:   settle.NoWait(),
		Logger:   zaptest.NewLogger(t),
		Observer: func(_ string, r Result) { seen = append(seen, r.Name+":"+string(r.Action)) },
	})

	templates := []schema.FieldTemplate{
		missionField(),
		{InternalName: "Manager", Spec: schema.UserSpec{}},
	}
	results := a.Fields(ctx, list, templates, fieldsOf(t, store, list.ID))

	if !results[0].Failed() || !errors.Is(results[0].Err, remote.ErrForbidden) {
		t.Errorf("expected Mission to fail with ErrForbidden, got %+v", results[0])
	}
	if results[1].Action != ActionCreated {
		t.Errorf("expected Manager to be created, got %+v", results[1])
	}
	if diff := cmp.Diff([]string{"Mission:failed", "Manager:created"}, seen); diff != "" {
		t.Errorf("observer mismatch (-want +got):\n%s", diff)
	}
}

func TestViewFieldsResetInOrder(t *testing.T) {
	ctx := context.Background()
	store := remotetest.New()
	list := store.SeedList("About Us")
	a := newTestApplier(t, store)

	view := schema.ViewTemplate{
		Title:    "All Items",
		Settings: map[string]any{"RowLimit": 30},
		Fields:   []string{"LinkTitle", "Mission", "Manager"},
	}
	results := a.Views(ctx, list, []schema.ViewTemplate{view}, viewsOf(t, store, list.ID))
	if results[0].Action != ActionUpdated || results[0].Err != nil {
		t.Fatalf("expected clean update, got %+v", results[0])
	}

	var ops []string
	for _, c := range store.Calls("") {
		if c.Op == remotetest.OpViews {
			continue
		}
		ops = append(ops, c.Op+" "+c.Target)
	}
	want := []string{
		"RemoveAllViewFields All Items",
		"AddViewField All Items/LinkTitle",
		"AddViewField All Items/Mission",
		"AddViewField All Items/Manager",
	}
	if diff := cmp.Diff(want, ops); diff != "" {
		t.Errorf("call order mismatch (-want +got):\n%s", diff)
	}
	if got := viewsOf(t, store, list.ID)[0].Fields; !cmp.Equal(view.Fields, got) {
		t.Errorf("expected fields %v, got %v", view.Fields, got)
	}
}

func TestViewFieldsResetPausesBetweenWrites(t *testing.T) {
	ctx := context.Background()
	store := remotetest.New()
	list := store.SeedList("About Us")

	policy := settle.Default()
	var slept []time.Duration
	policy.Sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	a := New(store, Options{Policy: policy, Logger: zaptest.NewLogger(t)})

	view := schema.ViewTemplate{
		Title:    "All Items",
		Settings: map[string]any{"RowLimit": 30},
		Fields:   []string{"LinkTitle", "Mission", "Manager"},
	}
	results := a.Views(ctx, list, []schema.ViewTemplate{view}, viewsOf(t, store, list.ID))
	if results[0].Err != nil {
		t.Fatalf("expected clean update, got %+v", results[0])
	}

	want := []time.Duration{time.Second, 250 * time.Millisecond, 250 * time.Millisecond, 250 * time.Millisecond}
	if diff := cmp.Diff(want, slept); diff != "" {
		t.Errorf("pauses mismatch (-want +got):\n%s", diff)
	}
}

func TestMatchingViewIsSkipped(t *testing.T) {
	ctx := context.Background()
	store := remotetest.New()
	list := store.SeedList("About Us")
	store.ResetCalls()
	a := newTestApplier(t, store)

	view := schema.ViewTemplate{
		Title:    "All Items",
		Settings: map[string]any{"RowLimit": 30},
		Fields:   []string{"LinkTitle"},
	}
	results := a.Views(ctx, list, []schema.ViewTemplate{view}, viewsOf(t, store, list.ID))
	if results[0].Action != ActionUnchanged {
		t.Errorf("expected unchanged, got %+v", results[0])
	}
	if n := len(store.Calls("")); n != 1 {
		t.Errorf("expected only the Views read, got %d calls", n)
	}
}

func TestViewCreatedThenPopulated(t *testing.T) {
	ctx := context.Background()
	store := remotetest.New()
	list := store.SeedList("About Us")
	a := newTestApplier(t, store)

	view := schema.ViewTemplate{
		Title:    "Org Chart",
		Settings: map[string]any{"RowLimit": 100},
		Fields:   []string{"LinkTitle", "ParentUnit"},
	}
	results := a.Views(ctx, list, []schema.ViewTemplate{view}, viewsOf(t, store, list.ID))
	if results[0].Action != ActionCreated || results[0].Err != nil {
		t.Fatalf("expected clean create, got %+v", results[0])
	}

	views := viewsOf(t, store, list.ID)
	if len(views) != 2 {
		t.Fatalf("expected 2 views, got %d", len(views))
	}
	if diff := cmp.Diff(view.Fields, views[1].Fields); diff != "" {
		t.Errorf("view fields mismatch (-want +got):\n%s", diff)
	}
}

func TestViewFieldAddFailureContinues(t *testing.T) {
	ctx := context.Background()
	store := remotetest.New()
	list := store.SeedList("About Us")
	store.FailOn(remotetest.OpAddViewField, "All Items/Mission", remote.ErrFieldNotFound)
	a := newTestApplier(t, store)

	view := schema.ViewTemplate{
		Title:  "All Items",
		Fields: []string{"LinkTitle", "Mission", "Manager"},
	}
	results := a.Views(ctx, list, []schema.ViewTemplate{view}, viewsOf(t, store, list.ID))
	if !results[0].Failed() {
		t.Fatalf("expected view to be reported as failed, got %+v", results[0])
	}
	if got := viewsOf(t, store, list.ID)[0].Fields; !cmp.Equal([]string{"LinkTitle", "Manager"}, got) {
		t.Errorf("expected remaining fields to be added, got %v", got)
	}
}

func TestViewResetFailureAbortsView(t *testing.T) {
	ctx := context.Background()
	store := remotetest.New()
	list := store.SeedList("About Us")
	store.FailOn(remotetest.OpRemoveAllViewFields, "", remote.ErrForbidden)
	a := newTestApplier(t, store)

	view := schema.ViewTemplate{Title: "All Items", Fields: []string{"LinkTitle", "Mission"}}
	results := a.Views(ctx, list, []schema.ViewTemplate{view}, viewsOf(t, store, list.ID))
	if results[0].Action != ActionFailed {
		t.Errorf("expected failed, got %+v", results[0])
	}
	if n := len(store.Calls(remotetest.OpAddViewField)); n != 0 {
		t.Errorf("expected no field adds after failed reset, got %d", n)
	}
}

func TestListMetadata(t *testing.T) {
	ctx := context.Background()
	store := remotetest.New()
	list := store.SeedList("About Us")
	a := newTestApplier(t, store)

	settings := schema.ListSettings{
		Description: "Who we are",
		Settings:    map[string]any{"EnableVersioning": true},
	}
	r := a.List(ctx, list, settings)
	if r.Action != ActionUpdated {
		t.Fatalf("expected update, got %+v", r)
	}
	if diff := cmp.Diff([]string{"Description", "EnableVersioning"}, r.Changed); diff != "" {
		t.Errorf("changed mismatch (-want +got):\n%s", diff)
	}

	list, err := store.GetList(ctx, "About Us")
	if err != nil {
		t.Fatalf("GetList failed: %v", err)
	}
	if r := a.List(ctx, list, settings); r.Action != ActionUnchanged {
		t.Errorf("expected unchanged on second run, got %+v", r)
	}
}

func TestCreatedFieldSurvivesCancelledPause(t *testing.T) {
	ctx := context.Background()
	store := remotetest.New()
	list := store.SeedList("About Us")
	policy := &settle.Policy{
		Rules:    map[settle.OpKind]settle.Rule{settle.OpFieldCreate: {Pause: time.Second, Attempts: 1}},
		Fallback: settle.Rule{Attempts: 1},
		Sleep: func(ctx context.Context, d time.Duration) error {
			return context.Canceled
		},
	}
	a := New(store, Options{Policy: policy, Logger: zaptest.NewLogger(t)})

	manager := schema.FieldTemplate{InternalName: "Manager", Spec: schema.TextSpec{}}
	results := a.Fields(ctx, list, []schema.FieldTemplate{manager}, fieldsOf(t, store, list.ID))
	if r := results[0]; r.Action != ActionCreated || r.Err != nil {
		t.Fatalf("expected clean create, got %+v", r)
	}
}

func TestFieldTypeChangeIsReported(t *testing.T) {
	ctx := context.Background()
	store := remotetest.New()
	list := store.SeedList("About Us")
	store.SeedField(list.ID, remote.RemoteField{
		InternalName: "UnitType",
		Title:        "Unit Type",
		TypeName:     "Choice",
		Attrs:        map[string]any{"Choices": []string{"Division", "Team"}},
	})
	store.ResetCalls()
	a := newTestApplier(t, store)

	unitType := schema.FieldTemplate{
		InternalName: "UnitType",
		Title:        "Unit Type",
		Spec:         schema.ChoiceSpec{Choices: []string{"Division", "Team"}, Multi: true},
	}
	results := a.Fields(ctx, list, []schema.FieldTemplate{unitType}, fieldsOf(t, store, list.ID))

	r := results[0]
	if r.Action != ActionSkipped || !errors.Is(r.Err, ErrTypeChange) {
		t.Fatalf("expected skipped with ErrTypeChange, got %+v", r)
	}
	for _, op := range []string{remotetest.OpAddField, remotetest.OpUpdateField} {
		if n := len(store.Calls(op)); n != 0 {
			t.Errorf("expected no %s calls, got %d", op, n)
		}
	}
}
