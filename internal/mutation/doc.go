// Package mutation issues item-done changes against the backend and keeps
// the speculative local view consistent with the outcome.
//
// Each change is an ItemDoneCommand. Apply layers the requested flag over
// store data in an Overlay so the UI can show it immediately; Undo removes
// it again. The client always runs Undo when the request finishes, so the
// overlay never outlives its request: on success the store already holds
// the backend's canonical order, on failure the pre-call value shows through.
package mutation
