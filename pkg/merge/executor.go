package merge

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/internal/repositories/address"
	"github.com/Ramsey-B/fern/internal/repositories/entity"
	"github.com/Ramsey-B/fern/internal/repositories/entityproperty"
	"github.com/Ramsey-B/fern/internal/repositories/person"
	"github.com/Ramsey-B/fern/pkg/audit"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/faults"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Executor applies a validated merge request as a single transaction: every
// step commits or none do. Merges touching overlapping entity ids are
// serialized by per-id advisory locks held for the transaction.
type Executor struct {
	db         database.DB
	validator  *Validator
	entities   *entity.Repository
	people     *person.Repository
	addresses  *address.Repository
	properties *entityproperty.Repository
	recorder   *audit.Recorder
	emitter    *events.Emitter
	logger     ectologger.Logger
	timeout    time.Duration
}

// NewExecutor creates a new merge executor. emitter may be nil when event
// emission is disabled.
func NewExecutor(
	db database.DB,
	validator *Validator,
	entities *entity.Repository,
	people *person.Repository,
	addresses *address.Repository,
	properties *entityproperty.Repository,
	recorder *audit.Recorder,
	emitter *events.Emitter,
	logger ectologger.Logger,
	timeout time.Duration,
) *Executor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Executor{
		db:         db,
		validator:  validator,
		entities:   entities,
		people:     people,
		addresses:  addresses,
		properties: properties,
		recorder:   recorder,
		emitter:    emitter,
		logger:     logger,
		timeout:    timeout,
	}
}

// Apply validates the request, then applies it atomically. On any failure
// the transaction rolls back with zero observable side effects and the
// caller receives the underlying cause; there is no automatic retry.
func (e *Executor) Apply(ctx context.Context, req *models.ResolveDuplicatesRequest) (*models.ResolveDuplicatesResult, error) {
	ctx, span := tracing.StartSpan(ctx, "merge.Executor.Apply")
	defer span.End()

	// Cheap checks before any lock or transaction.
	if _, err := e.validator.Validate(ctx, req); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	ctx, tx, err := e.db.GetTx(ctx, nil)
	if err != nil {
		return nil, faults.NewTransactionError("begin merge transaction", err)
	}
	defer tx.Rollback(ctx)

	if err := e.apply(ctx, req); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"keep_entity_id":    req.KeepEntityID,
			"remove_entity_ids": req.RemoveEntityIDs,
		}).Error("Merge failed, rolling back")
		if faults.IsValidation(err) || faults.IsNotFound(err) || faults.IsTransaction(err) {
			return nil, err
		}
		return nil, faults.NewTransactionError("merge apply failed", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, faults.NewTransactionError("commit merge transaction", err)
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"keep_entity_id":    req.KeepEntityID,
		"remove_entity_ids": req.RemoveEntityIDs,
	}).Info("Applied merge")

	result := &models.ResolveDuplicatesResult{
		MergedEntityID:   req.KeepEntityID,
		DeletedEntityIDs: req.RemoveEntityIDs,
		Applied:          true,
	}

	// Best effort: a dropped event never un-applies a committed merge.
	if e.emitter != nil {
		if err := e.emitter.EmitEntityMerged(context.WithoutCancel(ctx), result); err != nil {
			e.logger.WithContext(ctx).WithError(err).Warn("Failed to emit merged event")
		}
	}

	return result, nil
}

// apply runs the merge steps inside the open transaction carried by ctx.
func (e *Executor) apply(ctx context.Context, req *models.ResolveDuplicatesRequest) error {
	allIDs := append([]string{req.KeepEntityID}, req.RemoveEntityIDs...)

	if err := e.entities.LockForMerge(ctx, allIDs); err != nil {
		return err
	}

	// Re-validate existence under the lock; a concurrent merge may have
	// consumed one of the entities between validation and lock acquisition.
	referenced, err := e.validator.checkEntitiesExist(ctx, req)
	if err != nil {
		return err
	}

	var kept models.Entity
	for _, en := range referenced {
		if en.ID == req.KeepEntityID {
			kept = en
			break
		}
	}

	if err := e.entities.UpdateMergedFields(ctx, req.KeepEntityID, mergedFields(kept, req.MergedEntity)); err != nil {
		return err
	}

	if err := e.applyPeople(ctx, req); err != nil {
		return err
	}
	if err := e.people.SoftDeleteByEntityIDs(ctx, req.RemoveEntityIDs); err != nil {
		return err
	}

	if err := e.applyAddresses(ctx, req); err != nil {
		return err
	}
	if err := e.addresses.SoftDeleteByEntityIDs(ctx, req.RemoveEntityIDs); err != nil {
		return err
	}

	// Full replace of the kept entity's property set, then drop the removed
	// entities' rows outright.
	if err := e.properties.DeleteByEntityIDs(ctx, []string{req.KeepEntityID}); err != nil {
		return err
	}
	if err := e.properties.CreateBatch(ctx, req.KeepEntityID, req.MergedEntity.Properties); err != nil {
		return err
	}
	if err := e.properties.DeleteByEntityIDs(ctx, req.RemoveEntityIDs); err != nil {
		return err
	}

	if err := e.entities.SoftDeleteByIDs(ctx, req.RemoveEntityIDs); err != nil {
		return err
	}

	return e.recorder.RecordMerge(ctx, req.KeepEntityID, len(req.RemoveEntityIDs), len(req.MergedEntity.People), len(req.MergedEntity.Addresses), "")
}

// mergedFields resolves the kept entity's final top-level values: supplied
// values win, absent ones keep the current record's.
func mergedFields(current models.Entity, payload models.MergedEntityPayload) models.MergedFields {
	fields := models.MergedFields{
		Name:      current.Name,
		TradeName: current.TradeName,
	}
	if payload.Name != nil {
		fields.Name = *payload.Name
	}
	if payload.TradeName != nil {
		fields.TradeName = payload.TradeName
	}
	return fields
}

// applyPeople updates payload people already owned by the kept entity in
// place and creates the rest new under the kept entity.
func (e *Executor) applyPeople(ctx context.Context, req *models.ResolveDuplicatesRequest) error {
	current, err := e.people.FindByEntityIDs(ctx, []string{req.KeepEntityID})
	if err != nil {
		return err
	}
	ownedByKept := make(map[string]bool, len(current))
	for _, p := range current {
		ownedByKept[p.ID] = true
	}

	for _, payload := range req.MergedEntity.People {
		p := models.Person{
			EntityID:    req.KeepEntityID,
			FirstName:   payload.FirstName,
			LastName:    payload.LastName,
			DateOfBirth: sanitizeDate(payload.DateOfBirth),
		}
		if payload.PeopleID != "" && ownedByKept[payload.PeopleID] {
			p.ID = payload.PeopleID
			if err := e.people.Update(ctx, &p); err != nil {
				return err
			}
		} else {
			if err := e.people.Create(ctx, &p); err != nil {
				return err
			}
		}
	}

	return nil
}

// applyAddresses mirrors applyPeople for the address table.
func (e *Executor) applyAddresses(ctx context.Context, req *models.ResolveDuplicatesRequest) error {
	current, err := e.addresses.FindByEntityIDs(ctx, []string{req.KeepEntityID})
	if err != nil {
		return err
	}
	ownedByKept := make(map[string]bool, len(current))
	for _, a := range current {
		ownedByKept[a.ID] = true
	}

	for _, payload := range req.MergedEntity.Addresses {
		a := models.Address{
			EntityID:   req.KeepEntityID,
			Street:     payload.Street,
			City:       payload.City,
			State:      payload.State,
			PostalCode: payload.PostalCode,
			Country:    payload.Country,
			IsPrimary:  payload.IsPrimary,
		}
		if payload.Street2 != "" {
			street2 := payload.Street2
			a.Street2 = &street2
		}
		if payload.AddressID != "" && ownedByKept[payload.AddressID] {
			a.ID = payload.AddressID
			if err := e.addresses.Update(ctx, &a); err != nil {
				return err
			}
		} else {
			if err := e.addresses.Create(ctx, &a); err != nil {
				return err
			}
		}
	}

	return nil
}

// dateFormats are the accepted date-of-birth encodings, tried in order.
var dateFormats = []string{"2006-01-02", time.RFC3339, "01/02/2006"}

// sanitizeDate parses a payload date. Missing, empty or unparseable values
// become null rather than an error.
func sanitizeDate(value string) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range dateFormats {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
