package auth

import "github.com/google/uuid"

// Identity is the verified caller attached to a request after the session
// token has been resolved. Downstream code trusts it without re-verifying
// the credential.
type Identity struct {
	UserID uuid.UUID `json:"user_id"`
	Name   string    `json:"name"`
	Role   Role      `json:"role"`
}
