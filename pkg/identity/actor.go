package identity

import (
	"net/http"

	apperrors "fixly/pkg/errors"
)

type Role string

const (
	RoleCustomer   Role = "customer"
	RoleContractor Role = "contractor"
	RoleAdmin      Role = "admin"
)

func ValidRole(r Role) bool {
	switch r {
	case RoleCustomer, RoleContractor, RoleAdmin:
		return true
	default:
		return false
	}
}

// Actor is the identity attached to every mutating call. The session layer
// upstream owns authentication; this core treats the pair as opaque input.
type Actor struct {
	ID   string
	Role Role
}

const (
	HeaderActorID   = "X-Actor-Id"
	HeaderActorRole = "X-Actor-Role"
)

// FromRequest extracts the acting identity from the gateway-injected headers.
func FromRequest(r *http.Request) (Actor, error) {
	actor := Actor{
		ID:   r.Header.Get(HeaderActorID),
		Role: Role(r.Header.Get(HeaderActorRole)),
	}

	if actor.ID == "" {
		return Actor{}, apperrors.InvalidInput("Missing X-Actor-Id header")
	}
	if !ValidRole(actor.Role) {
		return Actor{}, apperrors.InvalidInput("X-Actor-Role must be one of customer, contractor, admin")
	}

	return actor, nil
}
