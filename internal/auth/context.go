// ABOUTME: Viewer identity carried through request handlers
// ABOUTME: Provides WithViewer/ViewerFromContext for propagating the viewer id via context

package auth

import "context"

// viewerContextKey is the key type for storing the viewer id in context.Context.
type viewerContextKey struct{}

// WithViewer returns a new context carrying viewerID.
func WithViewer(ctx context.Context, viewerID int64) context.Context {
	return context.WithValue(ctx, viewerContextKey{}, viewerID)
}

// ViewerFromContext returns the viewer id, if the request was authenticated.
func ViewerFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(viewerContextKey{}).(int64)
	return id, ok
}
