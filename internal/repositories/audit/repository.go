package audit

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/faults"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Repository handles append-only audit log persistence. Rows are never
// updated or deleted.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new audit repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Insert appends one audit entry. Inside a merge transaction the entry
// commits or rolls back with the merge itself.
func (r *Repository) Insert(ctx context.Context, entry *models.AuditLog) error {
	ctx, span := tracing.StartSpan(ctx, "audit.Repository.Insert")
	defer span.End()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	entry.CreatedAt = time.Now().UTC()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return faults.NewTransactionError("insert audit entry", err)
	}
	defer tx.Rollback(ctx)

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("audit_logs")
	sb.Cols("id", "action", "entity_type", "entity_id", "old_value", "new_value", "note", "created_at")
	sb.Values(entry.ID, entry.Action, entry.EntityType, entry.EntityID, entry.OldValue, entry.NewValue, entry.Note, entry.CreatedAt)

	query, args := sb.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to insert audit entry")
		return faults.FromStorage("insert audit entry", err)
	}

	return tx.Commit(ctx)
}

// ListByEntityID returns the audit entries recorded for an entity, newest
// first.
func (r *Repository) ListByEntityID(ctx context.Context, entityID string) ([]models.AuditLog, error) {
	ctx, span := tracing.StartSpan(ctx, "audit.Repository.ListByEntityID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "action", "entity_type", "entity_id", "old_value", "new_value", "note", "created_at")
	sb.From("audit_logs")
	sb.Where(sb.Equal("entity_id", entityID))
	sb.OrderBy("created_at DESC")

	query, args := sb.Build()
	var entries []models.AuditLog
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": entityID}).Error("Failed to list audit entries")
		return nil, faults.FromStorage("list audit entries", err)
	}

	return entries, nil
}
