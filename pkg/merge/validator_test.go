package merge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/faults"
	"github.com/Ramsey-B/fern/pkg/models"
)

type fakeEntityFinder struct {
	entities map[string]models.Entity
	err      error
}

func (f *fakeEntityFinder) FindByIDs(_ context.Context, ids []string) ([]models.Entity, error) {
	if f.err != nil {
		return nil, f.err
	}
	var found []models.Entity
	for _, id := range ids {
		if e, ok := f.entities[id]; ok {
			found = append(found, e)
		}
	}
	return found, nil
}

func validRequest() *models.ResolveDuplicatesRequest {
	return &models.ResolveDuplicatesRequest{
		KeepEntityID:    "e1",
		RemoveEntityIDs: []string{"e2"},
		MergedEntity: models.MergedEntityPayload{
			People:     []models.PersonPayload{},
			Addresses:  []models.AddressPayload{},
			Properties: []models.PropertyPayload{},
		},
	}
}

func finderWith(ids ...string) *fakeEntityFinder {
	f := &fakeEntityFinder{entities: map[string]models.Entity{}}
	for _, id := range ids {
		f.entities[id] = models.Entity{ID: id, Name: "Acme"}
	}
	return f
}

func TestValidator(t *testing.T) {
	ctx := context.Background()

	t.Run("ValidRequestPasses", func(t *testing.T) {
		v := NewValidator(finderWith("e1", "e2"))
		entities, err := v.Validate(ctx, validRequest())
		require.NoError(t, err)
		assert.Len(t, entities, 2)
	})

	t.Run("MissingKeepID", func(t *testing.T) {
		req := validRequest()
		req.KeepEntityID = "  "
		_, err := NewValidator(finderWith("e1", "e2")).Validate(ctx, req)
		assert.True(t, faults.IsValidation(err))
	})

	t.Run("EmptyRemoveIDs", func(t *testing.T) {
		req := validRequest()
		req.RemoveEntityIDs = nil
		_, err := NewValidator(finderWith("e1")).Validate(ctx, req)
		assert.True(t, faults.IsValidation(err))
	})

	t.Run("KeepInsideRemove", func(t *testing.T) {
		req := validRequest()
		req.RemoveEntityIDs = []string{"e2", "e1"}
		_, err := NewValidator(finderWith("e1", "e2")).Validate(ctx, req)
		require.True(t, faults.IsValidation(err))
		assert.Contains(t, err.Error(), "e1")
	})

	t.Run("NilPayloadLists", func(t *testing.T) {
		tests := []struct {
			name   string
			mutate func(*models.ResolveDuplicatesRequest)
		}{
			{name: "people missing", mutate: func(r *models.ResolveDuplicatesRequest) { r.MergedEntity.People = nil }},
			{name: "addresses missing", mutate: func(r *models.ResolveDuplicatesRequest) { r.MergedEntity.Addresses = nil }},
			{name: "properties missing", mutate: func(r *models.ResolveDuplicatesRequest) { r.MergedEntity.Properties = nil }},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				req := validRequest()
				tt.mutate(req)
				_, err := NewValidator(finderWith("e1", "e2")).Validate(ctx, req)
				assert.True(t, faults.IsValidation(err))
			})
		}
	})

	t.Run("MissingEntityNamed", func(t *testing.T) {
		req := validRequest()
		req.RemoveEntityIDs = []string{"e2", "e3"}
		_, err := NewValidator(finderWith("e1", "e2")).Validate(ctx, req)
		require.True(t, faults.IsNotFound(err))
		assert.Contains(t, err.Error(), "e3")
		assert.NotContains(t, err.Error(), "e2,")
	})

	t.Run("SoftDeletedTreatedAsMissing", func(t *testing.T) {
		// The finder models FindByIDs, which filters deleted rows, so a
		// deleted id simply does not come back.
		f := finderWith("e1")
		req := validRequest()
		_, err := NewValidator(f).Validate(ctx, req)
		require.True(t, faults.IsNotFound(err))
		assert.Contains(t, err.Error(), "e2")
	})

	t.Run("ValidationPrecedesLookups", func(t *testing.T) {
		f := finderWith("e1", "e2")
		req := validRequest()
		req.KeepEntityID = ""
		req.RemoveEntityIDs = nil
		_, err := NewValidator(f).Validate(ctx, req)
		require.Error(t, err)
		assert.True(t, faults.IsValidation(err))
		assert.Contains(t, err.Error(), "keep_entity_id")
	})
}
