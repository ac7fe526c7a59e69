package dfu

import "fmt"

// UpdateError reports which update of an Operation failed. Updates
// before Index were sent successfully and are left in place.
type UpdateError struct {
	// Index is the 0-based position of the update in the package
	Index int

	// Name is the manifest entry, e.g. "application"
	Name string

	Err error
}

func (e *UpdateError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("update %d failed: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("update %d (%s) failed: %v", e.Index, e.Name, e.Err)
}

func (e *UpdateError) Unwrap() error { return e.Err }
