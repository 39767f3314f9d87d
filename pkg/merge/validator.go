// Package merge validates and applies merge proposals. Validation always
// precedes any mutation; the executor applies a validated proposal as one
// atomic unit of work.
package merge

import (
	"context"
	"strings"

	"github.com/Ramsey-B/fern/pkg/faults"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// EntityFinder is the slice of the entity repository the validator needs.
type EntityFinder interface {
	FindByIDs(ctx context.Context, ids []string) ([]models.Entity, error)
}

// Validator checks a merge request against structural and referential
// invariants, failing fast on the first violation.
type Validator struct {
	entities EntityFinder
}

// NewValidator creates a new validator
func NewValidator(entities EntityFinder) *Validator {
	return &Validator{entities: entities}
}

// Validate runs the ordered checks and returns the live entities referenced
// by the request, keyed nowhere in particular. The same checks run for
// planner-produced and client-authored requests.
func (v *Validator) Validate(ctx context.Context, req *models.ResolveDuplicatesRequest) ([]models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "merge.Validator.Validate")
	defer span.End()

	if strings.TrimSpace(req.KeepEntityID) == "" {
		return nil, faults.NewValidationError("keep_entity_id is required")
	}

	if len(req.RemoveEntityIDs) == 0 {
		return nil, faults.NewValidationError("remove_entity_ids must be a non-empty list")
	}

	for _, id := range req.RemoveEntityIDs {
		if id == req.KeepEntityID {
			return nil, faults.NewValidationErrorf("keep_entity_id %s must not appear in remove_entity_ids", req.KeepEntityID)
		}
	}

	if req.MergedEntity.People == nil {
		return nil, faults.NewValidationError("merged_entity.people must be present as a list")
	}
	if req.MergedEntity.Addresses == nil {
		return nil, faults.NewValidationError("merged_entity.address must be present as a list")
	}
	if req.MergedEntity.Properties == nil {
		return nil, faults.NewValidationError("merged_entity.entity_property must be present as a list")
	}

	return v.checkEntitiesExist(ctx, req)
}

// checkEntitiesExist fetches the non-deleted entities for the full id set
// and reports every id that is missing or already deleted.
func (v *Validator) checkEntitiesExist(ctx context.Context, req *models.ResolveDuplicatesRequest) ([]models.Entity, error) {
	idSet := make(map[string]bool, len(req.RemoveEntityIDs)+1)
	idSet[req.KeepEntityID] = true
	for _, id := range req.RemoveEntityIDs {
		idSet[id] = true
	}

	ids := make([]string, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}

	entities, err := v.entities.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	if len(entities) != len(ids) {
		found := make(map[string]bool, len(entities))
		for _, e := range entities {
			found[e.ID] = true
		}
		var missing []string
		for _, id := range ids {
			if !found[id] {
				missing = append(missing, id)
			}
		}
		return nil, faults.NewNotFoundError("entities missing or already deleted", missing...)
	}

	return entities, nil
}
