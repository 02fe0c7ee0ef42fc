package policy

import "context"

// Actor is the resolved identity behind a request.
type Actor struct {
	UserID        int64
	IsAdmin       bool
	Authenticated bool
}

// Anonymous is the actor of requests without valid credentials.
func Anonymous() Actor { return Actor{} }

// User builds an authenticated actor.
func User(id int64, isAdmin bool) Actor {
	return Actor{UserID: id, IsAdmin: isAdmin, Authenticated: true}
}

// Owns reports whether the actor is the given user.
func (a Actor) Owns(userID int64) bool {
	return a.Authenticated && a.UserID == userID
}

func (a Actor) role() role {
	switch {
	case !a.Authenticated:
		return anonymous
	case a.IsAdmin:
		return admin
	default:
		return member
	}
}

type actorKey struct{}

// WithActor stores the actor in ctx.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the actor stored in ctx, or Anonymous.
func ActorFrom(ctx context.Context) Actor {
	if a, ok := ctx.Value(actorKey{}).(Actor); ok {
		return a
	}
	return Anonymous()
}
