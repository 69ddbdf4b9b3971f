package apply

import (
	"context"
	"fmt"

	"github.com/aboutus/listsync/internal/remote"
	"github.com/aboutus/listsync/internal/schema"
)

// fieldBuilder turns a field template into a create request.
type fieldBuilder func(ctx context.Context, a *Applier, list remote.ListInfo, t schema.FieldTemplate) (remote.FieldCreate, error)

// fieldBuilders has one handler per field kind. Every schema.Kind must be
// present.
var fieldBuilders = map[schema.Kind]fieldBuilder{
	schema.KindText:     buildPlain,
	schema.KindNote:     buildPlain,
	schema.KindNumber:   buildPlain,
	schema.KindChoice:   buildPlain,
	schema.KindLookup:   buildLookup,
	schema.KindUser:     buildPlain,
	schema.KindURL:      buildPlain,
	schema.KindDateTime: buildPlain,
	schema.KindBoolean:  buildPlain,
}

func (a *Applier) buildField(ctx context.Context, list remote.ListInfo, t schema.FieldTemplate) (remote.FieldCreate, error) {
	build, ok := fieldBuilders[t.Kind()]
	if !ok {
		return remote.FieldCreate{}, fmt.Errorf("no handler for field kind %q", t.Kind())
	}
	return build(ctx, a, list, t)
}

func buildPlain(_ context.Context, _ *Applier, _ remote.ListInfo, t schema.FieldTemplate) (remote.FieldCreate, error) {
	attrs := t.Attributes()
	delete(attrs, "Title")
	return remote.FieldCreate{
		InternalName: t.InternalName,
		Title:        t.DisplayTitle(),
		Kind:         t.Kind(),
		TypeName:     t.TypeName(),
		Attrs:        attrs,
	}, nil
}

// buildLookup resolves the target list to an id. [THISLIST] resolves to the
// list being reconciled; any other value is looked up by title.
func buildLookup(ctx context.Context, a *Applier, list remote.ListInfo, t schema.FieldTemplate) (remote.FieldCreate, error) {
	spec, _ := t.Lookup()

	var targetID string
	if spec.IsSelf() {
		if list.ID == "" {
			return remote.FieldCreate{}, fmt.Errorf("%w: %s has no id yet", ErrUnresolvedLookup, schema.SelfListToken)
		}
		targetID = list.ID
	} else {
		target, err := a.store.GetList(ctx, spec.List)
		if err != nil {
			return remote.FieldCreate{}, fmt.Errorf("%w: list %q: %v", ErrUnresolvedLookup, spec.List, err)
		}
		targetID = target.ID
	}

	fc, err := buildPlain(ctx, a, list, t)
	if err != nil {
		return remote.FieldCreate{}, err
	}
	fc.Attrs["LookupList"] = targetID
	return fc, nil
}
