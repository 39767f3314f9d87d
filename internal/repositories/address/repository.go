package address

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

// Repository handles address persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new address repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// FindByEntityIDs retrieves the live addresses owned by the given entities.
func (r *Repository) FindByEntityIDs(ctx context.Context, entityIDs []string) ([]models.Address, error) {
	ctx, span := tracing.StartSpan(ctx, "address.Repository.FindByEntityIDs")
	defer span.End()

	if len(entityIDs) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "entity_id", "street", "street2", "city", "state", "postal_code", "country", "is_primary", "deleted_at", "created_at", "updated_at")
	sb.From(models.TableAddresses)
	sb.Where(
		sb.In("entity_id", sqlbuilder.Flatten(entityIDs)...),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("is_primary DESC", "created_at ASC")

	query, args := sb.Build()
	var addresses []models.Address
	if err := r.db.SelectContext(ctx, &addresses, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_ids": entityIDs}).Error("Failed to find addresses by entity ids")
		return nil, faults.FromStorage("find addresses by entity ids", err)
	}

	return addresses, nil
}

// Create inserts a new address under its entity.
func (r *Repository) Create(ctx context.Context, addr *models.Address) error {
	ctx, span := tracing.StartSpan(ctx, "address.Repository.Create")
	defer span.End()

	if addr.ID == "" {
		addr.ID = uuid.New().String()
	}
	addr.CreatedAt = time.Now().UTC()
	addr.UpdatedAt = addr.CreatedAt

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return faults.NewTransactionError("create address", err)
	}
	defer tx.Rollback(ctx)

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(models.TableAddresses)
	sb.Cols("id", "entity_id", "street", "street2", "city", "state", "postal_code", "country", "is_primary", "created_at", "updated_at")
	sb.Values(addr.ID, addr.EntityID, addr.Street, addr.Street2, addr.City, addr.State, addr.PostalCode, addr.Country, addr.IsPrimary, addr.CreatedAt, addr.UpdatedAt)

	query, args := sb.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create address")
		return faults.FromStorage("create address", err)
	}

	return tx.Commit(ctx)
}

// Update rewrites a live address's fields, including its owning entity.
func (r *Repository) Update(ctx context.Context, addr *models.Address) error {
	ctx, span := tracing.StartSpan(ctx, "address.Repository.Update")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return faults.NewTransactionError("update address", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(models.TableAddresses)
	sb.Set(
		sb.Assign("entity_id", addr.EntityID),
		sb.Assign("street", addr.Street),
		sb.Assign("street2", addr.Street2),
		sb.Assign("city", addr.City),
		sb.Assign("state", addr.State),
		sb.Assign("postal_code", addr.PostalCode),
		sb.Assign("country", addr.Country),
		sb.Assign("is_primary", addr.IsPrimary),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", addr.ID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update address")
		return faults.FromStorage("update address", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return faults.NewNotFoundError("address not found", addr.ID)
	}

	return tx.Commit(ctx)
}

// SoftDeleteByEntityIDs marks every live address owned by the given entities
// deleted.
func (r *Repository) SoftDeleteByEntityIDs(ctx context.Context, entityIDs []string) error {
	ctx, span := tracing.StartSpan(ctx, "address.Repository.SoftDeleteByEntityIDs")
	defer span.End()

	if len(entityIDs) == 0 {
		return nil
	}

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return faults.NewTransactionError("soft delete addresses by entity", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(models.TableAddresses)
	sb.Set(
		sb.Assign("deleted_at", now),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.In("entity_id", sqlbuilder.Flatten(entityIDs)...),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_ids": entityIDs}).Error("Failed to soft delete addresses by entity")
		return faults.FromStorage("soft delete addresses by entity", err)
	}

	return tx.Commit(ctx)
}
