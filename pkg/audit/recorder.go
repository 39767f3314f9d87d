// Package audit records merge actions to the durable append-only audit log.
package audit

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	auditrepo "github.com/Ramsey-B/fern/internal/repositories/audit"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Recorder writes one audit entry per applied merge. Inside a merge
// transaction the entry commits and rolls back with the merge.
type Recorder struct {
	repo   *auditrepo.Repository
	logger ectologger.Logger
}

// NewRecorder creates a new audit recorder
func NewRecorder(repo *auditrepo.Repository, logger ectologger.Logger) *Recorder {
	return &Recorder{
		repo:   repo,
		logger: logger,
	}
}

// RecordMerge appends the audit entry for one applied merge.
func (r *Recorder) RecordMerge(ctx context.Context, keepID string, removedCount, peopleCount, addressCount int, note string) error {
	ctx, span := tracing.StartSpan(ctx, "audit.Recorder.RecordMerge")
	defer span.End()

	entry := &models.AuditLog{
		Action:     models.ActionEntityMerge,
		EntityType: "entity",
		EntityID:   keepID,
		OldValue:   fmt.Sprintf("Merged from %d duplicates", removedCount),
		NewValue:   fmt.Sprintf("Merged entity updated with %d people, %d addresses", peopleCount, addressCount),
		Note:       note,
	}

	if err := r.repo.Insert(ctx, entry); err != nil {
		return err
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"entity_id":     keepID,
		"removed_count": removedCount,
	}).Info("Recorded merge audit entry")

	return nil
}
