package grouper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func candidate(personID, entityID, first, last string) models.DuplicateCandidate {
	return models.DuplicateCandidate{
		Person: models.Person{ID: personID, EntityID: entityID, FirstName: first, LastName: last},
		Entity: models.Entity{ID: entityID},
	}
}

func TestCandidateKey(t *testing.T) {
	tests := []struct {
		name     string
		first    string
		last     string
		expected string
	}{
		{name: "simple name", first: "John", last: "Smith", expected: "john smith"},
		{name: "trims and lowercases", first: "  John ", last: " SMITH ", expected: "john smith"},
		{name: "suffix kept", first: "John", last: "Smith Jr.", expected: "john smith jr."},
		{name: "missing last name", first: "John", last: "", expected: "john"},
		{name: "missing first name", first: "", last: "Smith", expected: "smith"},
		{name: "empty name", first: "", last: "", expected: ""},
		{name: "punctuation kept", first: "J.R.", last: "O'Neil", expected: "j.r. o'neil"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CandidateKey(candidate("p", "e", tt.first, tt.last)))
		})
	}
}

func TestGroup(t *testing.T) {
	t.Run("EmitsOnlyGroupsOfTwoOrMore", func(t *testing.T) {
		groups, count := Group([]models.DuplicateCandidate{
			candidate("p1", "e1", "John", "Smith"),
			candidate("p2", "e2", "john", "smith"),
			candidate("p3", "e3", "Jane", "Doe"),
		})

		require.Equal(t, 1, count)
		require.Contains(t, groups, "john smith")
		assert.Len(t, groups["john smith"], 2)
		assert.NotContains(t, groups, "jane doe")
	})

	t.Run("ExcludesEmptyKeys", func(t *testing.T) {
		groups, count := Group([]models.DuplicateCandidate{
			candidate("p1", "e1", "", ""),
			candidate("p2", "e2", "", ""),
		})

		assert.Equal(t, 0, count)
		assert.Empty(t, groups)
	})

	t.Run("AllMembersShareTheKey", func(t *testing.T) {
		groups, _ := Group([]models.DuplicateCandidate{
			candidate("p1", "e1", "John", "Smith"),
			candidate("p2", "e2", "JOHN", "SMITH"),
			candidate("p3", "e3", "John ", " Smith"),
		})

		require.Contains(t, groups, "john smith")
		require.Len(t, groups["john smith"], 3)
		for _, m := range groups["john smith"] {
			assert.Equal(t, "john smith", CandidateKey(m))
		}
	})

	t.Run("SuffixVariantsStayDistinct", func(t *testing.T) {
		groups, count := Group([]models.DuplicateCandidate{
			candidate("p1", "e1", "John", "Smith"),
			candidate("p2", "e2", "John", "Smith Jr."),
		})

		assert.Equal(t, 0, count)
		assert.Empty(t, groups)
	})

	t.Run("NoCandidates", func(t *testing.T) {
		groups, count := Group(nil)
		assert.Equal(t, 0, count)
		assert.Empty(t, groups)
	})
}

func TestSortedKeys(t *testing.T) {
	groups, _ := Group([]models.DuplicateCandidate{
		candidate("p1", "e1", "Zed", "Zulu"),
		candidate("p2", "e2", "Zed", "Zulu"),
		candidate("p3", "e3", "Amy", "Adams"),
		candidate("p4", "e4", "Amy", "Adams"),
	})

	assert.Equal(t, []string{"amy adams", "zed zulu"}, SortedKeys(groups))
}
