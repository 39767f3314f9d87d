// Package oracle defines the resolution oracle contract: given one duplicate
// group, decide which member is canonical and which are redundant.
package oracle

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Oracle adjudicates one duplicate group. Implementations may be slow and
// may fail; callers treat a failure as an external-service fault scoped to
// the group being decided.
type Oracle interface {
	Decide(ctx context.Context, primary models.DuplicateCandidate, duplicates []models.DuplicateCandidate) (*models.MergeDecision, error)
}
