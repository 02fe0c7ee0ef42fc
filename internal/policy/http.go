package policy

import (
	"net/http"

	"github.com/ovaphlow/pitchfork/service-library-go/pkg/utilities"
)

const (
	msgUnauthenticated = "Authentication credentials were not provided."
	msgForbidden       = "You do not have permission to perform this action."
)

// Authorize evaluates the request's actor against the table. On deny it
// writes 401 for anonymous callers and 403 for authenticated ones and
// returns false.
func Authorize(w http.ResponseWriter, r *http.Request, op Operation, res Resource) (Actor, bool) {
	actor := ActorFrom(r.Context())
	if Decide(actor, op, res) == Allow {
		return actor, true
	}
	Reject(w, actor)
	return actor, false
}

// Reject writes the deny response for actor.
func Reject(w http.ResponseWriter, actor Actor) {
	if !actor.Authenticated {
		utilities.WriteError(w, http.StatusUnauthorized, msgUnauthenticated)
		return
	}
	utilities.WriteError(w, http.StatusForbidden, msgForbidden)
}
