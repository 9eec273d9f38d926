package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/tinywideclouds/go-dispatch-service/pkg/dispatch"
)

// Guard cross-checks a token against the tokens/{token} reverse index.
type Guard struct {
	owners dispatch.TokenOwnerStore
}

func NewGuard(owners dispatch.TokenOwnerStore) *Guard {
	return &Guard{owners: owners}
}

// Check returns the effective uid for the dispatch.
//
// If the token has a registered owner and no uid was resolved yet, the owner
// is adopted. If the owner and the requested target both exist and differ,
// ErrOwnershipConflict is returned and nothing must be written or sent.
func (g *Guard) Check(ctx context.Context, token, resolvedUID, targetUserID string) (string, error) {
	if token == "" {
		return resolvedUID, nil
	}

	owner, err := g.owners.GetOwner(ctx, token)
	if err != nil && !errors.Is(err, dispatch.ErrRecordNotFound) {
		return "", internal(StageCheckingOwnership, fmt.Errorf("failed to read token owner: %w", err))
	}

	effective := resolvedUID
	if effective == "" && owner != "" {
		effective = owner
	}
	if owner != "" && targetUserID != "" && owner != targetUserID {
		return "", ErrOwnershipConflict
	}
	return effective, nil
}
