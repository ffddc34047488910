package models

// View is the discriminated tag of a RouteState.
type View string

const (
	ViewHome  View = "home"
	ViewEntry View = "entry"
	ViewAdmin View = "admin"
)

// AdminFragment is the fragment value that selects the admin view.
const AdminFragment = "admin"

// RouteState is derived from the URL fragment and never set directly.
type RouteState struct {
	View    View   `json:"view"`
	EntryID string `json:"entryId,omitempty"`
}

// HomeState is the state for an empty or unknown fragment.
var HomeState = RouteState{View: ViewHome}
