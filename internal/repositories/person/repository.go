package person

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

// Repository handles person persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new person repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// FindByEntityIDs retrieves the live people owned by the given entities.
func (r *Repository) FindByEntityIDs(ctx context.Context, entityIDs []string) ([]models.Person, error) {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.FindByEntityIDs")
	defer span.End()

	if len(entityIDs) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "entity_id", "first_name", "last_name", "date_of_birth", "deleted_at", "created_at", "updated_at")
	sb.From(models.TablePeople)
	sb.Where(
		sb.In("entity_id", sqlbuilder.Flatten(entityIDs)...),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var people []models.Person
	if err := r.db.SelectContext(ctx, &people, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_ids": entityIDs}).Error("Failed to find people by entity ids")
		return nil, faults.FromStorage("find people by entity ids", err)
	}

	return people, nil
}

// Create inserts a new person under its entity.
func (r *Repository) Create(ctx context.Context, person *models.Person) error {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.Create")
	defer span.End()

	if person.ID == "" {
		person.ID = uuid.New().String()
	}
	person.CreatedAt = time.Now().UTC()
	person.UpdatedAt = person.CreatedAt

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return faults.NewTransactionError("create person", err)
	}
	defer tx.Rollback(ctx)

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(models.TablePeople)
	sb.Cols("id", "entity_id", "first_name", "last_name", "date_of_birth", "created_at", "updated_at")
	sb.Values(person.ID, person.EntityID, person.FirstName, person.LastName, person.DateOfBirth, person.CreatedAt, person.UpdatedAt)

	query, args := sb.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to create person")
		return faults.FromStorage("create person", err)
	}

	return tx.Commit(ctx)
}

// Update rewrites a live person's fields, including its owning entity. Moving
// the entity_id to the kept entity is how a person survives a merge.
func (r *Repository) Update(ctx context.Context, person *models.Person) error {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.Update")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return faults.NewTransactionError("update person", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(models.TablePeople)
	sb.Set(
		sb.Assign("entity_id", person.EntityID),
		sb.Assign("first_name", person.FirstName),
		sb.Assign("last_name", person.LastName),
		sb.Assign("date_of_birth", person.DateOfBirth),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", person.ID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update person")
		return faults.FromStorage("update person", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return faults.NewNotFoundError("person not found", person.ID)
	}

	return tx.Commit(ctx)
}

// SoftDeleteByEntityIDs marks every live person owned by the given entities
// deleted. Used for the children of removed entities that were not carried
// into the merged record.
func (r *Repository) SoftDeleteByEntityIDs(ctx context.Context, entityIDs []string) error {
	ctx, span := tracing.StartSpan(ctx, "person.Repository.SoftDeleteByEntityIDs")
	defer span.End()

	if len(entityIDs) == 0 {
		return nil
	}

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return faults.NewTransactionError("soft delete people by entity", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(models.TablePeople)
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
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_ids": entityIDs}).Error("Failed to soft delete people by entity")
		return faults.FromStorage("soft delete people by entity", err)
	}

	return tx.Commit(ctx)
}
