package entityproperty

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

// Repository handles entity property persistence. Properties are the one
// child table that hard-deletes: a merge replaces the kept entity's property
// set wholesale and removes the removed entities' rows outright.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new entity property repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// FindByEntityIDs retrieves the properties owned by the given entities.
func (r *Repository) FindByEntityIDs(ctx context.Context, entityIDs []string) ([]models.EntityProperty, error) {
	ctx, span := tracing.StartSpan(ctx, "entityproperty.Repository.FindByEntityIDs")
	defer span.End()

	if len(entityIDs) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "entity_id", "property_type_id", "value", "is_primary", "created_at", "updated_at")
	sb.From(models.TableEntityProperties)
	sb.Where(sb.In("entity_id", sqlbuilder.Flatten(entityIDs)...))
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var properties []models.EntityProperty
	if err := r.db.SelectContext(ctx, &properties, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_ids": entityIDs}).Error("Failed to find properties by entity ids")
		return nil, faults.FromStorage("find properties by entity ids", err)
	}

	return properties, nil
}

// DeleteByEntityIDs hard-deletes every property owned by the given entities.
func (r *Repository) DeleteByEntityIDs(ctx context.Context, entityIDs []string) error {
	ctx, span := tracing.StartSpan(ctx, "entityproperty.Repository.DeleteByEntityIDs")
	defer span.End()

	if len(entityIDs) == 0 {
		return nil
	}

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return faults.NewTransactionError("delete properties", err)
	}
	defer tx.Rollback(ctx)

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom(models.TableEntityProperties)
	sb.Where(sb.In("entity_id", sqlbuilder.Flatten(entityIDs)...))

	query, args := sb.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_ids": entityIDs}).Error("Failed to delete properties")
		return faults.FromStorage("delete properties", err)
	}

	return tx.Commit(ctx)
}

// CreateBatch inserts a set of properties under one entity.
func (r *Repository) CreateBatch(ctx context.Context, entityID string, payloads []models.PropertyPayload) error {
	ctx, span := tracing.StartSpan(ctx, "entityproperty.Repository.CreateBatch")
	defer span.End()

	if len(payloads) == 0 {
		return nil
	}

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return faults.NewTransactionError("create properties", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(models.TableEntityProperties)
	sb.Cols("id", "entity_id", "property_type_id", "value", "is_primary", "created_at", "updated_at")
	for _, p := range payloads {
		sb.Values(uuid.New().String(), entityID, p.PropertyTypeID, p.Value, p.IsPrimary, now, now)
	}

	query, args := sb.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_id": entityID}).Error("Failed to create properties")
		return faults.FromStorage("create properties", err)
	}

	return tx.Commit(ctx)
}
