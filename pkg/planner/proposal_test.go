package planner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func member(personID, entityID, first, last string) models.DuplicateCandidate {
	return models.DuplicateCandidate{
		Person: models.Person{ID: personID, EntityID: entityID, FirstName: first, LastName: last},
		Entity: models.Entity{ID: entityID, Name: "Acme", EntityType: models.EntityTypeOrganization},
	}
}

func TestBuildProposal(t *testing.T) {
	decision := &models.MergeDecision{Keep: "e1", Remove: []string{"e2"}, Rationale: "older record"}

	t.Run("KeptPeopleUpdateRemovedPeopleAttach", func(t *testing.T) {
		members := []models.DuplicateCandidate{
			member("p1", "e1", "John", "Smith"),
			member("p2", "e2", "John", "Smith"),
		}

		proposal, err := BuildProposal(decision, members, nil)
		require.NoError(t, err)

		require.Len(t, proposal.MergedPeople, 2)
		assert.Equal(t, "p1", proposal.MergedPeople[0].PeopleID)
		assert.Empty(t, proposal.MergedPeople[1].PeopleID)
		assert.Equal(t, "e1", proposal.KeepID)
		assert.Equal(t, []string{"e2"}, proposal.RemoveIDs)
		assert.Equal(t, "Acme", proposal.MergedFields.Name)
	})

	t.Run("DateOfBirthFormatted", func(t *testing.T) {
		dob := time.Date(1990, 6, 15, 0, 0, 0, 0, time.UTC)
		kept := member("p1", "e1", "John", "Smith")
		kept.Person.DateOfBirth = &dob

		proposal, err := BuildProposal(decision, []models.DuplicateCandidate{kept, member("p2", "e2", "John", "Smith")}, nil)
		require.NoError(t, err)

		assert.Equal(t, "1990-06-15", proposal.MergedPeople[0].DateOfBirth)
	})

	t.Run("PropertiesDedupedWithPrimaryOr", func(t *testing.T) {
		kept := member("p1", "e1", "John", "Smith")
		kept.Properties = []models.EntityProperty{
			{ID: "pr1", EntityID: "e1", PropertyTypeID: "phone", Value: "555-1234", IsPrimary: false},
		}
		removed := member("p2", "e2", "John", "Smith")
		removed.Properties = []models.EntityProperty{
			{ID: "pr2", EntityID: "e2", PropertyTypeID: "phone", Value: "  555-1234 ", IsPrimary: true},
			{ID: "pr3", EntityID: "e2", PropertyTypeID: "email", Value: "j@acme.test", IsPrimary: false},
		}

		proposal, err := BuildProposal(decision, []models.DuplicateCandidate{kept, removed}, nil)
		require.NoError(t, err)

		require.Len(t, proposal.MergedProperties, 2)
		seen := map[string]bool{}
		for _, p := range proposal.MergedProperties {
			key := p.PropertyTypeID + "|" + p.Value
			assert.False(t, seen[key], "duplicate property key %s", key)
			seen[key] = true
		}
		// First-seen record wins the slot; primary flag is OR'd.
		assert.Equal(t, "555-1234", proposal.MergedProperties[0].Value)
		assert.True(t, proposal.MergedProperties[0].IsPrimary)
		assert.False(t, proposal.MergedProperties[1].IsPrimary)
	})

	t.Run("DeletionPlanOmitsEmptyTables", func(t *testing.T) {
		removed := member("p2", "e2", "John", "Smith")
		removed.Addresses = []models.Address{{ID: "a1", EntityID: "e2", Street: "1 Elm"}}

		proposal, err := BuildProposal(decision, []models.DuplicateCandidate{
			member("p1", "e1", "John", "Smith"),
			removed,
		}, nil)
		require.NoError(t, err)

		plan := proposal.DeletionPlan
		assert.Equal(t, []string{"p2"}, plan[models.TablePeople])
		assert.Equal(t, []string{"a1"}, plan[models.TableAddresses])
		assert.Equal(t, []string{"e2"}, plan[models.TableEntities])
		assert.NotContains(t, plan, models.TableEntityProperties)
	})

	t.Run("DeletionPlanCoversAllRemovedEntityPeople", func(t *testing.T) {
		// e2 also owns a person whose name never matched the group key.
		// Applying the merge retires every person of e2, so the plan must
		// list them all.
		peopleByEntity := map[string][]models.Person{
			"e1": {{ID: "p1", EntityID: "e1", FirstName: "John", LastName: "Smith"}},
			"e2": {
				{ID: "p2", EntityID: "e2", FirstName: "John", LastName: "Smith"},
				{ID: "p3", EntityID: "e2", FirstName: "Mary", LastName: "Jones"},
			},
		}

		proposal, err := BuildProposal(decision, []models.DuplicateCandidate{
			member("p1", "e1", "John", "Smith"),
			member("p2", "e2", "John", "Smith"),
		}, peopleByEntity)
		require.NoError(t, err)

		people := proposal.DeletionPlan[models.TablePeople]
		assert.Contains(t, people, "p2")
		assert.Contains(t, people, "p3")
		assert.NotContains(t, people, "p1")
		// Ungrouped people are retired, not carried into the merged record.
		assert.Len(t, proposal.MergedPeople, 2)
	})

	t.Run("KeepMissingFromGroup", func(t *testing.T) {
		_, err := BuildProposal(&models.MergeDecision{Keep: "e9", Remove: []string{"e2"}}, []models.DuplicateCandidate{
			member("p1", "e1", "John", "Smith"),
			member("p2", "e2", "John", "Smith"),
		}, nil)
		assert.Error(t, err)
	})

	t.Run("UnnamedMembersLeftUntouched", func(t *testing.T) {
		proposal, err := BuildProposal(decision, []models.DuplicateCandidate{
			member("p1", "e1", "John", "Smith"),
			member("p2", "e2", "John", "Smith"),
			member("p3", "e3", "John", "Smith"),
		}, nil)
		require.NoError(t, err)

		assert.Len(t, proposal.MergedPeople, 2)
		assert.NotContains(t, proposal.DeletionPlan[models.TableEntities], "e3")
	})
}
