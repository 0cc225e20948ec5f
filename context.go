package authkit

import "context"

type clientIPContextKey struct{}
type deviceNameContextKey struct{}

// WithClientIP attaches the caller's network address to ctx. The Engine
// records it on new sessions and uses it to derive throttle client keys.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithDeviceName attaches a human-readable device name (typically the
// User-Agent) to ctx. Recorded on the session opened by Login.
func WithDeviceName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, deviceNameContextKey{}, name)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func deviceNameFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	name, _ := ctx.Value(deviceNameContextKey{}).(string)
	return name
}
