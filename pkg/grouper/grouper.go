// Package grouper partitions candidate records into duplicate groups sharing
// a normalized identity key. It is a pure read: no mutation, no persistence.
package grouper

import (
	"sort"
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// CandidateKey computes the normalized identity key for a person-centric
// candidate: normalized first and last name joined by a single space, empty
// parts omitted. An empty key excludes the candidate from grouping.
func CandidateKey(c models.DuplicateCandidate) string {
	parts := make([]string, 0, 2)
	if first := normalizers.NormalizeName(c.Person.FirstName); first != "" {
		parts = append(parts, first)
	}
	if last := normalizers.NormalizeName(c.Person.LastName); last != "" {
		parts = append(parts, last)
	}
	return strings.Join(parts, " ")
}

// Group partitions candidates by identity key and keeps only groups of two
// or more members. The second return is the emitted group count.
func Group(candidates []models.DuplicateCandidate) (map[string][]models.DuplicateCandidate, int) {
	byKey := make(map[string][]models.DuplicateCandidate)
	for _, c := range candidates {
		key := CandidateKey(c)
		if key == "" {
			continue
		}
		byKey[key] = append(byKey[key], c)
	}

	for key, members := range byKey {
		if len(members) < 2 {
			delete(byKey, key)
		}
	}

	return byKey, len(byKey)
}

// SortedKeys returns the group keys in lexical order so one analysis pass
// walks groups deterministically.
func SortedKeys(groups map[string][]models.DuplicateCandidate) []string {
	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
