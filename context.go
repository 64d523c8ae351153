package authgate

import "context"

type callerIdentityKey struct{}

// CallerIdentity represents the caller stored in the request context after a
// successful session check.
type CallerIdentity struct {
	Identity  *Identity
	Token     string
	DevBypass bool
}

// BindCallerIdentity stores the caller inside the context for downstream consumers.
func BindCallerIdentity(ctx context.Context, caller CallerIdentity) context.Context {
	return context.WithValue(ctx, callerIdentityKey{}, caller)
}

// CallerIdentityFromContext retrieves the caller previously stored in the context.
func CallerIdentityFromContext(ctx context.Context) (CallerIdentity, bool) {
	if ctx == nil {
		return CallerIdentity{}, false
	}
	value := ctx.Value(callerIdentityKey{})
	if value == nil {
		return CallerIdentity{}, false
	}
	caller, ok := value.(CallerIdentity)
	return caller, ok
}
