// Package directory resolves recipient addresses to user profiles.
// It is a read-only collaborator of the mail pipeline; account management
// is owned by other services.
package directory

import (
	"context"
	"errors"

	"github.com/imajkumar/chakra-user-service/internal/domain"
)

// ErrNotFound indicates no profile exists for the address.
var ErrNotFound = errors.New("recipient not found")

// Directory looks up the current profile for a recipient address.
type Directory interface {
	Lookup(ctx context.Context, email string) (*domain.User, error)
}
