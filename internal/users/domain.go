package users

import (
	"strconv"
	"time"

	"github.com/fieldbase/fieldbase/internal/authz"
)

// User represents an account together with its primary role.
type User struct {
	ID        int64
	Email     string
	Name      string
	RoleName  string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Principal converts the user into the identity carried through authorization.
func (u User) Principal() *authz.Principal {
	return &authz.Principal{
		ID:          strconv.FormatInt(u.ID, 10),
		Email:       u.Email,
		DisplayName: u.Name,
		Role:        u.RoleName,
		Active:      u.IsActive,
	}
}
