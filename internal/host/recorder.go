package host

import (
	"context"
	"sync"
)

// Recorder is a Commands implementation that records every call. Used by
// tests to assert on notification and resize traffic.
type Recorder struct {
	mu sync.Mutex

	// Snackbars holds every message shown, in order.
	Snackbars []string
	// Resizes holds every resize request, in order.
	Resizes []Size
	// CloseCalls counts close-modal requests.
	CloseCalls int

	// Token is returned by SignedToken. TokenErr, when set, is returned
	// instead.
	Token    string
	TokenErr error
}

// NewRecorder creates a Recorder returning the given signed token.
func NewRecorder(token string) *Recorder {
	return &Recorder{Token: token}
}

func (r *Recorder) CloseModal(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CloseCalls++
	return nil
}

func (r *Recorder) Resize(ctx context.Context, size Size) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Resizes = append(r.Resizes, size)
	return nil
}

func (r *Recorder) SignedToken(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.TokenErr != nil {
		return "", r.TokenErr
	}
	return r.Token, nil
}

func (r *Recorder) ShowSnackbar(ctx context.Context, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Snackbars = append(r.Snackbars, message)
	return nil
}

// SnackbarMessages returns a copy of the recorded snackbar messages.
func (r *Recorder) SnackbarMessages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Snackbars))
	copy(out, r.Snackbars)
	return out
}

// ResizeCalls returns a copy of the recorded resize requests.
func (r *Recorder) ResizeCalls() []Size {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Size, len(r.Resizes))
	copy(out, r.Resizes)
	return out
}
