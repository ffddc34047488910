package router

import (
	"testing"

	"github.com/starford/echoes/internal/models"
)

type catalogMap map[string]bool

func (c catalogMap) FindByID(id string) (models.Entry, bool) {
	if c[id] {
		return models.Entry{ID: id}, true
	}
	return models.Entry{}, false
}

var testCatalog = catalogMap{"neon-rain-ancient-streets": true, "clockwork-sparrow": true}

// queue is a manual dispatcher: events wait until run is called.
type queue struct{ fns []func() }

func (q *queue) dispatch(fn func()) { q.fns = append(q.fns, fn) }

func (q *queue) run() {
	for len(q.fns) > 0 {
		fn := q.fns[0]
		q.fns = q.fns[1:]
		fn()
	}
}

func TestResolve(t *testing.T) {
	cases := []struct {
		fragment string
		want     models.RouteState
	}{
		{"", models.HomeState},
		{"#", models.HomeState},
		{"admin", models.RouteState{View: models.ViewAdmin}},
		{"#admin", models.RouteState{View: models.ViewAdmin}},
		{"neon-rain-ancient-streets", models.RouteState{View: models.ViewEntry, EntryID: "neon-rain-ancient-streets"}},
		{"nonexistent-id", models.HomeState},
		{"Admin", models.HomeState},
	}
	for _, tc := range cases {
		if got := Resolve(tc.fragment, testCatalog); got != tc.want {
			t.Errorf("Resolve(%q) = %+v, want %+v", tc.fragment, got, tc.want)
		}
	}
}

func TestStart_DeepLink(t *testing.T) {
	loc := NewMemoryLocation("#clockwork-sparrow", nil)
	r := New(loc, testCatalog, nil)
	got := r.Start()
	if got.View != models.ViewEntry || got.EntryID != "clockwork-sparrow" {
		t.Errorf("initial state = %+v", got)
	}
}

func TestNavigation_StateFollowsFragmentEvent(t *testing.T) {
	q := &queue{}
	loc := NewMemoryLocation("", q.dispatch)

	var transitions []models.RouteState
	r := New(loc, testCatalog, func(_, next models.RouteState) {
		transitions = append(transitions, next)
	})
	r.Start()

	r.GoToEntry("neon-rain-ancient-streets")
	if loc.Fragment() != "neon-rain-ancient-streets" {
		t.Fatalf("fragment = %q", loc.Fragment())
	}
	if r.State().View != models.ViewHome {
		t.Error("state changed before the fragment event was delivered")
	}
	q.run()
	if r.State().View != models.ViewEntry {
		t.Errorf("state = %+v, want entry", r.State())
	}

	r.ToggleAdmin()
	q.run()
	if r.State().View != models.ViewAdmin || loc.Fragment() != "admin" {
		t.Errorf("after toggle: state=%+v fragment=%q", r.State(), loc.Fragment())
	}

	r.ToggleAdmin()
	q.run()
	if r.State() != models.HomeState || loc.Fragment() != "" {
		t.Errorf("after second toggle: state=%+v fragment=%q", r.State(), loc.Fragment())
	}

	if len(transitions) != 3 {
		t.Errorf("transitions = %v, want 3", transitions)
	}
}

func TestSetSameFragment_NoEvent(t *testing.T) {
	q := &queue{}
	loc := NewMemoryLocation("admin", q.dispatch)
	calls := 0
	loc.Subscribe(func(string) { calls++ })

	loc.SetFragment("admin")
	loc.SetFragment("#admin")
	q.run()
	if calls != 0 {
		t.Errorf("listener called %d times, want 0", calls)
	}
}

func TestGoHome_FromHomeIsNoop(t *testing.T) {
	q := &queue{}
	loc := NewMemoryLocation("", q.dispatch)
	r := New(loc, testCatalog, func(_, _ models.RouteState) {
		t.Error("unexpected transition")
	})
	r.Start()
	r.GoHome()
	q.run()
	if len(q.fns) != 0 {
		t.Error("events left in queue")
	}
}

func TestUnknownEntry_FallsBackHome(t *testing.T) {
	loc := NewMemoryLocation("admin", nil)
	r := New(loc, testCatalog, nil)
	r.Start()
	r.GoToEntry("nonexistent-id")
	if r.State() != models.HomeState {
		t.Errorf("state = %+v, want home", r.State())
	}
	if loc.Fragment() != "nonexistent-id" {
		t.Errorf("fragment = %q, fragment must keep the written value", loc.Fragment())
	}
}

func TestRefresh_AfterCatalogArrives(t *testing.T) {
	c := catalogMap{}
	loc := NewMemoryLocation("late-entry", nil)
	r := New(loc, c, nil)
	if r.Start().View != models.ViewHome {
		t.Fatal("unknown entry should start at home")
	}
	c["late-entry"] = true
	if got := r.Refresh(); got.View != models.ViewEntry || got.EntryID != "late-entry" {
		t.Errorf("after refresh = %+v", got)
	}
}

func TestStop_DetachesListener(t *testing.T) {
	loc := NewMemoryLocation("", nil)
	r := New(loc, testCatalog, nil)
	r.Start()
	r.Stop()
	loc.SetFragment("admin")
	if r.State() != models.HomeState {
		t.Error("stopped router reacted to fragment change")
	}
}
