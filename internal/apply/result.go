package apply

import "errors"

// Entity is the kind of schema object a result is about.
type Entity string

const (
	EntityList  Entity = "list"
	EntityField Entity = "field"
	EntityView  Entity = "view"
)

// Action is what the applier did to an entity.
type Action string

const (
	ActionCreated   Action = "created"
	ActionUpdated   Action = "updated"
	ActionUnchanged Action = "unchanged"
	// ActionSkipped means the entity could not even be attempted, e.g. a
	// lookup whose target list is unresolvable.
	ActionSkipped Action = "skipped"
	ActionFailed  Action = "failed"
)

// ErrUnresolvedLookup is returned when a lookup field's target list cannot
// be resolved to an id.
var ErrUnresolvedLookup = errors.New("unresolved lookup target")

// ErrTypeChange is returned when a remote field has another type than its
// template. The field is left alone; it has to be removed or renamed by hand.
var ErrTypeChange = errors.New("field type cannot be changed in place")

// Result is the outcome for one entity.
type Result struct {
	Entity Entity
	Name   string
	Action Action
	// Changed lists the attributes that were written, in order.
	Changed []string
	// Err is set when the entity was left unconverged. A created entity can
	// still carry an error when a follow-up write failed.
	Err error
}

// Failed reports whether the entity is not converged.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Observer is notified of every result as soon as it is known.
type Observer func(list string, r Result)
