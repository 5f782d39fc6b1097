package xcontext

import "context"

type shutdownInProgressKey struct{}

// SetShutdownInProgress marks ctx as belonging to a server that is
// draining, so handlers can tell a going-away close from a client hangup.
func SetShutdownInProgress(ctx context.Context, inProgress bool) context.Context {
	return context.WithValue(ctx, shutdownInProgressKey{}, inProgress)
}

func IsShutdownInProgress(ctx context.Context) bool {
	inProgress, ok := ctx.Value(shutdownInProgressKey{}).(bool)
	return ok && inProgress
}
