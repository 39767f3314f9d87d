package planner

import (
	"fmt"
	"strings"

	"github.com/Ramsey-B/fern/pkg/addresses"
	"github.com/Ramsey-B/fern/pkg/models"
)

// BuildProposal turns an oracle decision over one group into a merge
// proposal: the kept entity's final fields, deduplicated sub-record sets and
// a deletion plan per affected table. peopleByEntity holds every live person
// of each candidate entity so the plan covers the removed entities' people
// that never matched the group key. Pure computation, no mutation.
func BuildProposal(decision *models.MergeDecision, members []models.DuplicateCandidate, peopleByEntity map[string][]models.Person) (*models.MergeProposal, error) {
	removed := make(map[string]bool, len(decision.Remove))
	for _, id := range decision.Remove {
		removed[id] = true
	}

	var keptEntity *models.Entity
	keptAddrs := make([]models.Address, 0)
	keptProps := make([]models.EntityProperty, 0)
	removedAddrs := make([]models.Address, 0)
	removedProps := make([]models.EntityProperty, 0)
	seenEntities := make(map[string]bool)

	people := make([]models.PersonPayload, 0, len(members))
	for _, m := range members {
		switch {
		case m.Entity.ID == decision.Keep:
			if keptEntity == nil {
				e := m.Entity
				keptEntity = &e
			}
			people = append(people, personPayload(m.Person, true))
		case removed[m.Entity.ID]:
			people = append(people, personPayload(m.Person, false))
		default:
			// Member not named by the decision; leave it untouched.
			continue
		}

		if seenEntities[m.Entity.ID] {
			continue
		}
		seenEntities[m.Entity.ID] = true

		if m.Entity.ID == decision.Keep {
			keptAddrs = append(keptAddrs, m.Addresses...)
			keptProps = append(keptProps, m.Properties...)
		} else {
			removedAddrs = append(removedAddrs, m.Addresses...)
			removedProps = append(removedProps, m.Properties...)
		}
	}

	if keptEntity == nil {
		return nil, fmt.Errorf("keep id %s has no member in the group", decision.Keep)
	}

	proposal := &models.MergeProposal{
		KeepID:    decision.Keep,
		RemoveIDs: decision.Remove,
		MergedFields: models.MergedFields{
			Name:      keptEntity.Name,
			TradeName: keptEntity.TradeName,
		},
		MergedPeople:     people,
		MergedAddresses:  addresses.MergeSimilar(keptAddrs, removedAddrs),
		MergedProperties: mergeProperties(keptProps, removedProps),
		DeletionPlan:     buildDeletionPlan(decision.Remove, collectRemovedPeople(decision.Remove, members, peopleByEntity), removedAddrs, removedProps),
	}

	return proposal, nil
}

// collectRemovedPeople gathers every person id retired with the removed
// entities. Applying the merge soft-deletes the removed entities' whole
// rosters, so the plan lists all of their people, not just the group members.
func collectRemovedPeople(removeIDs []string, members []models.DuplicateCandidate, peopleByEntity map[string][]models.Person) []string {
	removed := make(map[string]bool, len(removeIDs))
	for _, id := range removeIDs {
		removed[id] = true
	}

	seen := make(map[string]bool)
	ids := make([]string, 0)
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	for _, m := range members {
		if removed[m.Entity.ID] {
			add(m.Person.ID)
		}
	}
	for _, entityID := range removeIDs {
		for _, p := range peopleByEntity[entityID] {
			add(p.ID)
		}
	}

	return ids
}

func personPayload(p models.Person, keptOwner bool) models.PersonPayload {
	payload := models.PersonPayload{
		FirstName: p.FirstName,
		LastName:  p.LastName,
	}
	if keptOwner {
		payload.PeopleID = p.ID
	}
	if p.DateOfBirth != nil {
		payload.DateOfBirth = p.DateOfBirth.Format("2006-01-02")
	}
	return payload
}

// propertyKey is the survivor-uniqueness key: property type plus normalized
// trimmed lowercase value.
func propertyKey(propertyTypeID, value string) string {
	return propertyTypeID + "|" + strings.ToLower(strings.TrimSpace(value))
}

// mergeProperties unions the kept and removed property sets. The first-seen
// record for a key wins; the primary flag is OR'd so a primary duplicate
// keeps the merged property primary.
func mergeProperties(kept []models.EntityProperty, removed []models.EntityProperty) []models.PropertyPayload {
	index := make(map[string]int)
	merged := make([]models.PropertyPayload, 0, len(kept)+len(removed))

	add := func(p models.EntityProperty) {
		key := propertyKey(p.PropertyTypeID, p.Value)
		if idx, ok := index[key]; ok {
			merged[idx].IsPrimary = merged[idx].IsPrimary || p.IsPrimary
			return
		}
		index[key] = len(merged)
		merged = append(merged, models.PropertyPayload{
			PropertyTypeID: p.PropertyTypeID,
			Value:          p.Value,
			IsPrimary:      p.IsPrimary,
		})
	}

	for _, p := range kept {
		add(p)
	}
	for _, p := range removed {
		add(p)
	}

	return merged
}

// buildDeletionPlan maps table names to the ids retired by the merge.
// Tables with nothing to retire are omitted.
func buildDeletionPlan(removeIDs, personIDs []string, addrs []models.Address, props []models.EntityProperty) map[string][]string {
	plan := make(map[string][]string)

	if len(personIDs) > 0 {
		plan[models.TablePeople] = personIDs
	}
	if len(addrs) > 0 {
		ids := make([]string, 0, len(addrs))
		for _, a := range addrs {
			ids = append(ids, a.ID)
		}
		plan[models.TableAddresses] = ids
	}
	if len(props) > 0 {
		ids := make([]string, 0, len(props))
		for _, p := range props {
			ids = append(ids, p.ID)
		}
		plan[models.TableEntityProperties] = ids
	}
	if len(removeIDs) > 0 {
		plan[models.TableEntities] = removeIDs
	}

	return plan
}
