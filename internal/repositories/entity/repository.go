package entity

import (
	"context"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/faults"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Repository handles entity persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new entity repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Get retrieves a non-deleted entity by ID. Returns nil when no live row
// matches.
func (r *Repository) Get(ctx context.Context, id string) (*models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "name", "trade_name", "entity_type", "is_deleted", "deleted_at", "created_at", "updated_at")
	sb.From(models.TableEntities)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("is_deleted", false),
	)

	query, args := sb.Build()
	var entity models.Entity
	if err := r.db.GetContext(ctx, &entity, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get entity")
		return nil, faults.FromStorage("get entity", err)
	}

	return &entity, nil
}

// FindByIDs retrieves the non-deleted entities among the given IDs. Missing
// and soft-deleted IDs are simply absent from the result.
func (r *Repository) FindByIDs(ctx context.Context, ids []string) ([]models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.FindByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "name", "trade_name", "entity_type", "is_deleted", "deleted_at", "created_at", "updated_at")
	sb.From(models.TableEntities)
	sb.Where(
		sb.In("id", sqlbuilder.Flatten(ids)...),
		sb.Equal("is_deleted", false),
	)

	query, args := sb.Build()
	var entities []models.Entity
	if err := r.db.SelectContext(ctx, &entities, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"ids": ids}).Error("Failed to find entities by ids")
		return nil, faults.FromStorage("find entities by ids", err)
	}

	return entities, nil
}

type duplicateGroupRow struct {
	Name           string `db:"name"`
	DuplicateCount int    `db:"duplicate_count"`
}

// DuplicateNameGroups lists the normalized names shared by two or more
// non-deleted entities of the given type, largest groups first, with the
// total group count for the pagination block.
func (r *Repository) DuplicateNameGroups(ctx context.Context, entityType, limit, offset int) ([]models.DuplicateGroup, int, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.DuplicateNameGroups")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("LOWER(TRIM(name)) AS name", "COUNT(*) AS duplicate_count")
	sb.From(models.TableEntities)
	sb.Where(
		sb.Equal("entity_type", entityType),
		sb.Equal("is_deleted", false),
	)
	sb.GroupBy("LOWER(TRIM(name))")
	sb.Having("COUNT(*) >= 2")
	sb.OrderBy("duplicate_count DESC", "name ASC")
	sb.Limit(limit)
	sb.Offset(offset)

	query, args := sb.Build()
	var rows []duplicateGroupRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list duplicate name groups")
		return nil, 0, faults.FromStorage("list duplicate name groups", err)
	}

	countQuery := `
		SELECT COUNT(*) FROM (
			SELECT LOWER(TRIM(name))
			FROM entities
			WHERE entity_type = $1 AND is_deleted = false
			GROUP BY LOWER(TRIM(name))
			HAVING COUNT(*) >= 2
		) AS grouped
	`
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, entityType); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count duplicate name groups")
		return nil, 0, faults.FromStorage("count duplicate name groups", err)
	}

	groups := make([]models.DuplicateGroup, 0, len(rows))
	for _, row := range rows {
		groups = append(groups, models.DuplicateGroup{Name: row.Name, DuplicateCount: row.DuplicateCount})
	}

	return groups, total, nil
}

// DuplicateNames lists every normalized name shared by two or more
// non-deleted entities of the given type, unpaginated.
func (r *Repository) DuplicateNames(ctx context.Context, entityType int) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.DuplicateNames")
	defer span.End()

	query := `
		SELECT LOWER(TRIM(name))
		FROM entities
		WHERE entity_type = $1 AND is_deleted = false
		GROUP BY LOWER(TRIM(name))
		HAVING COUNT(*) >= 2
		ORDER BY COUNT(*) DESC, LOWER(TRIM(name)) ASC
	`
	var names []string
	if err := r.db.SelectContext(ctx, &names, query, entityType); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list duplicate names")
		return nil, faults.FromStorage("list duplicate names", err)
	}

	return names, nil
}

// FindByName retrieves the non-deleted entities whose normalized name equals
// the normalized input, oldest first.
func (r *Repository) FindByName(ctx context.Context, name string) ([]models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.FindByName")
	defer span.End()

	query := `
		SELECT id, name, trade_name, entity_type, is_deleted, deleted_at, created_at, updated_at
		FROM entities
		WHERE LOWER(TRIM(name)) = LOWER(TRIM($1)) AND is_deleted = false
		ORDER BY created_at ASC
	`
	var entities []models.Entity
	if err := r.db.SelectContext(ctx, &entities, query, name); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"name": name}).Error("Failed to find entities by name")
		return nil, faults.FromStorage("find entities by name", err)
	}

	return entities, nil
}

// LockForMerge serializes merges touching the given entities. It takes a
// transaction-scoped advisory lock per ID in sorted order so two concurrent
// merges over overlapping ID sets cannot deadlock; the locks release with the
// transaction. Must be called inside an open transaction.
func (r *Repository) LockForMerge(ctx context.Context, ids []string) error {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.LockForMerge")
	defer span.End()

	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return faults.NewTransactionError("lock entities for merge", err)
	}

	for _, id := range sorted {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", id); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"id": id}).Error("Failed to take merge lock")
			return faults.FromStorage("lock entities for merge", err)
		}
	}

	return nil
}

// UpdateMergedFields writes the kept entity's final top-level field values.
func (r *Repository) UpdateMergedFields(ctx context.Context, id string, fields models.MergedFields) error {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.UpdateMergedFields")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return faults.NewTransactionError("update merged fields", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(models.TableEntities)
	sb.Set(
		sb.Assign("name", fields.Name),
		sb.Assign("trade_name", fields.TradeName),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("is_deleted", false),
	)

	query, args := sb.Build()
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update merged fields")
		return faults.FromStorage("update merged fields", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return faults.NewNotFoundError("entity not found", id)
	}

	return tx.Commit(ctx)
}

// SoftDeleteByIDs marks the given entities deleted. Already-deleted rows are
// untouched.
func (r *Repository) SoftDeleteByIDs(ctx context.Context, ids []string) error {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.SoftDeleteByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return faults.NewTransactionError("soft delete entities", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(models.TableEntities)
	sb.Set(
		sb.Assign("is_deleted", true),
		sb.Assign("deleted_at", now),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.In("id", sqlbuilder.Flatten(ids)...),
		sb.Equal("is_deleted", false),
	)

	query, args := sb.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"ids": ids}).Error("Failed to soft delete entities")
		return faults.FromStorage("soft delete entities", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"ids": ids}).Info("Soft deleted entities")
	return tx.Commit(ctx)
}
