// Package host models the capability set the CRM host exposes to the
// embedded application: modal control, resizing, signed context tokens and
// snackbar notifications.
package host

import "context"

// Size is a modal geometry request.
type Size struct {
	Height int
	Width  int
}

// Modal sizes used by the upload flow.
var (
	SizeCompact  = Size{Height: 424, Width: 622}
	SizeExpanded = Size{Height: 500, Width: 622}
)

// Commands is the consumed CRM capability set. Implementations never expose
// host internals beyond the returned token string.
type Commands interface {
	// CloseModal asks the host to close the embedding modal.
	CloseModal(ctx context.Context) error

	// Resize asks the host to resize the embedding modal.
	Resize(ctx context.Context, size Size) error

	// SignedToken returns a short-lived signed app-context token for
	// gateway calls.
	SignedToken(ctx context.Context) (string, error)

	// ShowSnackbar surfaces a transient message to the user.
	ShowSnackbar(ctx context.Context, message string) error
}
