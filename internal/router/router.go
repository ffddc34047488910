// Package router derives the visible view from a URL fragment and offers
// navigation actions that only ever write the fragment.
package router

import (
	"github.com/starford/echoes/internal/models"
)

// Catalog is the lookup the router needs to recognise entry fragments.
type Catalog interface {
	FindByID(id string) (models.Entry, bool)
}

// Resolve maps a fragment to a RouteState. Unknown fragments resolve to home.
func Resolve(fragment string, c Catalog) models.RouteState {
	fragment = Normalize(fragment)
	switch {
	case fragment == "":
		return models.HomeState
	case fragment == models.AdminFragment:
		return models.RouteState{View: models.ViewAdmin}
	}
	if c != nil {
		if _, ok := c.FindByID(fragment); ok {
			return models.RouteState{View: models.ViewEntry, EntryID: fragment}
		}
	}
	return models.HomeState
}

// ChangeFunc observes route transitions.
type ChangeFunc func(prev, next models.RouteState)

// Router owns the RouteState of one visitor. It is not safe for concurrent
// use; all calls and Location events must arrive on the same goroutine.
type Router struct {
	loc      Location
	catalog  Catalog
	onChange ChangeFunc

	state   models.RouteState
	started bool
	cancel  func()
}

// New creates a router. onChange may be nil.
func New(loc Location, c Catalog, onChange ChangeFunc) *Router {
	return &Router{loc: loc, catalog: c, onChange: onChange, state: models.HomeState}
}

// Start computes the initial state from the current fragment and begins
// listening for fragment changes. Later calls are no-ops.
func (r *Router) Start() models.RouteState {
	if r.started {
		return r.state
	}
	r.started = true
	r.cancel = r.loc.Subscribe(r.derive)
	r.derive(r.loc.Fragment())
	return r.state
}

// Stop detaches the router from its location.
func (r *Router) Stop() {
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

// State returns the current route.
func (r *Router) State() models.RouteState {
	return r.state
}

// Fragment returns the location's fragment.
func (r *Router) Fragment() string {
	return r.loc.Fragment()
}

// Refresh re-derives the state from the current fragment, typically after the
// catalog changed under a deep link.
func (r *Router) Refresh() models.RouteState {
	r.derive(r.loc.Fragment())
	return r.state
}

// GoHome clears the fragment.
func (r *Router) GoHome() {
	r.loc.SetFragment("")
}

// GoToEntry points the fragment at id.
func (r *Router) GoToEntry(id string) {
	r.loc.SetFragment(id)
}

// ToggleAdmin leaves the admin view for home, or enters it from anywhere else.
func (r *Router) ToggleAdmin() {
	if r.state.View == models.ViewAdmin {
		r.loc.SetFragment("")
		return
	}
	r.loc.SetFragment(models.AdminFragment)
}

func (r *Router) derive(fragment string) {
	next := Resolve(fragment, r.catalog)
	if next == r.state {
		return
	}
	prev := r.state
	r.state = next
	if r.onChange != nil {
		r.onChange(prev, next)
	}
}
