package merge

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	addressrepo "github.com/Ramsey-B/fern/internal/repositories/address"
	auditrepo "github.com/Ramsey-B/fern/internal/repositories/audit"
	entityrepo "github.com/Ramsey-B/fern/internal/repositories/entity"
	propertyrepo "github.com/Ramsey-B/fern/internal/repositories/entityproperty"
	personrepo "github.com/Ramsey-B/fern/internal/repositories/person"
	"github.com/Ramsey-B/fern/pkg/audit"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/faults"
	"github.com/Ramsey-B/fern/pkg/models"
)

// testSchema mirrors the migration in db/pg, minus the uuid extension: the
// tests always supply ids explicitly.
const testSchema = `
CREATE TABLE IF NOT EXISTS entities (
    id UUID PRIMARY KEY,
    name TEXT NOT NULL,
    trade_name TEXT,
    entity_type INTEGER NOT NULL,
    is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
    deleted_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS people (
    id UUID PRIMARY KEY,
    entity_id UUID NOT NULL REFERENCES entities(id),
    first_name TEXT NOT NULL DEFAULT '',
    last_name TEXT NOT NULL DEFAULT '',
    date_of_birth DATE,
    deleted_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS addresses (
    id UUID PRIMARY KEY,
    entity_id UUID NOT NULL REFERENCES entities(id),
    street TEXT NOT NULL DEFAULT '',
    street2 TEXT,
    city TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL DEFAULT '',
    postal_code TEXT NOT NULL DEFAULT '',
    country TEXT NOT NULL DEFAULT '',
    is_primary BOOLEAN NOT NULL DEFAULT FALSE,
    deleted_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS entity_properties (
    id UUID PRIMARY KEY,
    entity_id UUID NOT NULL REFERENCES entities(id),
    property_type_id TEXT NOT NULL,
    value TEXT NOT NULL DEFAULT '',
    is_primary BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS audit_logs (
    id UUID PRIMARY KEY,
    action TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    entity_id UUID NOT NULL,
    old_value TEXT NOT NULL DEFAULT '',
    new_value TEXT NOT NULL DEFAULT '',
    note TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

type pgHarness struct {
	raw        *sqlx.DB
	db         database.DB
	entities   *entityrepo.Repository
	people     *personrepo.Repository
	addresses  *addressrepo.Repository
	properties *propertyrepo.Repository
	auditLogs  *auditrepo.Repository
	executor   *Executor
}

func newPGHarness(t *testing.T) *pgHarness {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres-backed test in short mode")
	}
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	raw, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })

	_, err = raw.Exec(testSchema)
	require.NoError(t, err)

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	db := database.NewDatabaseInstance(raw, logger)

	entities := entityrepo.NewRepository(db, logger)
	people := personrepo.NewRepository(db, logger)
	addresses := addressrepo.NewRepository(db, logger)
	properties := propertyrepo.NewRepository(db, logger)
	auditLogs := auditrepo.NewRepository(db, logger)
	recorder := audit.NewRecorder(auditLogs, logger)
	executor := NewExecutor(db, NewValidator(entities), entities, people, addresses, properties, recorder, nil, logger, 30*time.Second)

	return &pgHarness{
		raw:        raw,
		db:         db,
		entities:   entities,
		people:     people,
		addresses:  addresses,
		properties: properties,
		auditLogs:  auditLogs,
		executor:   executor,
	}
}

func (h *pgHarness) insertEntity(t *testing.T, name string) string {
	t.Helper()
	id := uuid.New().String()
	_, err := h.raw.Exec(`INSERT INTO entities (id, name, entity_type) VALUES ($1, $2, $3)`, id, name, models.EntityTypeOrganization)
	require.NoError(t, err)
	return id
}

func (h *pgHarness) insertPerson(t *testing.T, entityID, first, last string) string {
	t.Helper()
	id := uuid.New().String()
	_, err := h.raw.Exec(`INSERT INTO people (id, entity_id, first_name, last_name) VALUES ($1, $2, $3, $4)`, id, entityID, first, last)
	require.NoError(t, err)
	return id
}

func (h *pgHarness) insertAddress(t *testing.T, entityID, street, city, postal string, primary bool) string {
	t.Helper()
	id := uuid.New().String()
	_, err := h.raw.Exec(`INSERT INTO addresses (id, entity_id, street, city, postal_code, is_primary) VALUES ($1, $2, $3, $4, $5, $6)`, id, entityID, street, city, postal, primary)
	require.NoError(t, err)
	return id
}

func (h *pgHarness) insertProperty(t *testing.T, entityID, typeID, value string, primary bool) string {
	t.Helper()
	id := uuid.New().String()
	_, err := h.raw.Exec(`INSERT INTO entity_properties (id, entity_id, property_type_id, value, is_primary) VALUES ($1, $2, $3, $4, $5)`, id, entityID, typeID, value, primary)
	require.NoError(t, err)
	return id
}

func (h *pgHarness) rowDeleted(t *testing.T, table, id string) bool {
	t.Helper()
	var deleted bool
	err := h.raw.Get(&deleted, `SELECT deleted_at IS NOT NULL FROM `+table+` WHERE id = $1`, id)
	require.NoError(t, err)
	return deleted
}

func TestExecutorApplyPostgres(t *testing.T) {
	ctx := context.Background()

	t.Run("MergeRetiresRemovedEntities", func(t *testing.T) {
		h := newPGHarness(t)
		keep := h.insertEntity(t, "Acme")
		dupe := h.insertEntity(t, "Acme")
		keepPerson := h.insertPerson(t, keep, "John", "Smith")
		dupePerson := h.insertPerson(t, dupe, "John", "Smith")
		dupeAddr := h.insertAddress(t, dupe, "1 Elm St", "Springfield", "12345", true)
		h.insertProperty(t, keep, "phone", "555-1111", true)
		dupeProp := h.insertProperty(t, dupe, "email", "j@acme.test", false)

		name := "Acme Corp"
		result, err := h.executor.Apply(ctx, &models.ResolveDuplicatesRequest{
			KeepEntityID:    keep,
			RemoveEntityIDs: []string{dupe},
			MergedEntity: models.MergedEntityPayload{
				Name: &name,
				People: []models.PersonPayload{
					{PeopleID: keepPerson, FirstName: "John", LastName: "Smith"},
					{FirstName: "John", LastName: "Smith"},
				},
				Addresses: []models.AddressPayload{
					{Street: "1 Elm St", City: "Springfield", State: "IL", PostalCode: "12345", Country: "US", IsPrimary: true},
				},
				Properties: []models.PropertyPayload{
					{PropertyTypeID: "phone", Value: "555-1111", IsPrimary: true},
					{PropertyTypeID: "email", Value: "j@acme.test"},
				},
			},
		})
		require.NoError(t, err)
		assert.True(t, result.Applied)
		assert.Equal(t, keep, result.MergedEntityID)

		kept, err := h.entities.Get(ctx, keep)
		require.NoError(t, err)
		require.NotNil(t, kept)
		assert.Equal(t, "Acme Corp", kept.Name)
		assert.False(t, kept.IsDeleted)

		removed, err := h.entities.Get(ctx, dupe)
		require.NoError(t, err)
		assert.Nil(t, removed)

		livePeople, err := h.people.FindByEntityIDs(ctx, []string{keep})
		require.NoError(t, err)
		assert.Len(t, livePeople, 2)
		assert.True(t, h.rowDeleted(t, "people", dupePerson))
		assert.True(t, h.rowDeleted(t, "addresses", dupeAddr))

		var dupeProps int
		require.NoError(t, h.raw.Get(&dupeProps, `SELECT COUNT(*) FROM entity_properties WHERE entity_id = $1`, dupe))
		assert.Zero(t, dupeProps, "removed entity property %s should be hard-deleted", dupeProp)

		liveAddrs, err := h.addresses.FindByEntityIDs(ctx, []string{keep})
		require.NoError(t, err)
		assert.Len(t, liveAddrs, 1)

		entries, err := h.auditLogs.ListByEntityID(ctx, keep)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, models.ActionEntityMerge, entries[0].Action)
		assert.Equal(t, keep, entries[0].EntityID)
	})

	t.Run("PropertySetIsFullyReplaced", func(t *testing.T) {
		h := newPGHarness(t)
		keep := h.insertEntity(t, "Initech")
		dupe := h.insertEntity(t, "Initech")
		h.insertProperty(t, keep, "phone", "555-2222", true)
		h.insertProperty(t, keep, "fax", "555-3333", false)

		result, err := h.executor.Apply(ctx, &models.ResolveDuplicatesRequest{
			KeepEntityID:    keep,
			RemoveEntityIDs: []string{dupe},
			MergedEntity: models.MergedEntityPayload{
				People:    []models.PersonPayload{},
				Addresses: []models.AddressPayload{},
				Properties: []models.PropertyPayload{
					{PropertyTypeID: "phone", Value: "555-9999", IsPrimary: true},
				},
			},
		})
		require.NoError(t, err)
		assert.True(t, result.Applied)

		props, err := h.properties.FindByEntityIDs(ctx, []string{keep})
		require.NoError(t, err)
		require.Len(t, props, 1)
		assert.Equal(t, "phone", props[0].PropertyTypeID)
		assert.Equal(t, "555-9999", props[0].Value)
		assert.True(t, props[0].IsPrimary)
	})

	t.Run("DeletedRemoveIDIsNotFoundWithNoMutation", func(t *testing.T) {
		h := newPGHarness(t)
		keep := h.insertEntity(t, "Globex")
		dupe := h.insertEntity(t, "Globex")
		_, err := h.raw.Exec(`UPDATE entities SET is_deleted = TRUE, deleted_at = NOW() WHERE id = $1`, dupe)
		require.NoError(t, err)

		_, err = h.executor.Apply(ctx, &models.ResolveDuplicatesRequest{
			KeepEntityID:    keep,
			RemoveEntityIDs: []string{dupe},
			MergedEntity: models.MergedEntityPayload{
				People:     []models.PersonPayload{},
				Addresses:  []models.AddressPayload{},
				Properties: []models.PropertyPayload{},
			},
		})
		require.Error(t, err)
		assert.True(t, faults.IsNotFound(err))

		kept, err := h.entities.Get(ctx, keep)
		require.NoError(t, err)
		require.NotNil(t, kept)
		assert.Equal(t, "Globex", kept.Name)

		entries, err := h.auditLogs.ListByEntityID(ctx, keep)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("ValidationFailureLeavesStateUntouched", func(t *testing.T) {
		h := newPGHarness(t)
		keep := h.insertEntity(t, "Hooli")
		dupe := h.insertEntity(t, "Hooli")

		_, err := h.executor.Apply(ctx, &models.ResolveDuplicatesRequest{
			KeepEntityID:    keep,
			RemoveEntityIDs: []string{dupe},
			MergedEntity: models.MergedEntityPayload{
				Addresses:  []models.AddressPayload{},
				Properties: []models.PropertyPayload{},
			},
		})
		require.Error(t, err)
		assert.True(t, faults.IsValidation(err))

		removed, err := h.entities.Get(ctx, dupe)
		require.NoError(t, err)
		assert.NotNil(t, removed)

		entries, err := h.auditLogs.ListByEntityID(ctx, keep)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("AllStepsRideTheCallersTransaction", func(t *testing.T) {
		h := newPGHarness(t)
		keep := h.insertEntity(t, "Umbrella")
		dupe := h.insertEntity(t, "Umbrella")
		dupePerson := h.insertPerson(t, dupe, "Jane", "Doe")
		h.insertProperty(t, dupe, "email", "jane@umbrella.test", true)

		name := "Umbrella Corp"
		txCtx, tx, err := h.db.GetTx(context.Background(), nil)
		require.NoError(t, err)

		result, err := h.executor.Apply(txCtx, &models.ResolveDuplicatesRequest{
			KeepEntityID:    keep,
			RemoveEntityIDs: []string{dupe},
			MergedEntity: models.MergedEntityPayload{
				Name:       &name,
				People:     []models.PersonPayload{{FirstName: "Jane", LastName: "Doe"}},
				Addresses:  []models.AddressPayload{},
				Properties: []models.PropertyPayload{},
			},
		})
		require.NoError(t, err)
		assert.True(t, result.Applied)

		// The owning transaction has not committed, so the pool still sees
		// the pre-merge state.
		stillLive, err := h.entities.Get(ctx, dupe)
		require.NoError(t, err)
		assert.NotNil(t, stillLive)

		require.NoError(t, tx.Rollback(txCtx))

		// Every step rode the one transaction: rollback reverts them all.
		kept, err := h.entities.Get(ctx, keep)
		require.NoError(t, err)
		require.NotNil(t, kept)
		assert.Equal(t, "Umbrella", kept.Name)

		removed, err := h.entities.Get(ctx, dupe)
		require.NoError(t, err)
		assert.NotNil(t, removed)
		assert.False(t, h.rowDeleted(t, "people", dupePerson))

		entries, err := h.auditLogs.ListByEntityID(ctx, keep)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}
