// Package planner runs one analysis pass: group candidates by normalized
// name, ask the resolution oracle to adjudicate each group, and build a
// reviewable merge proposal per group. The planner never mutates anything.
package planner

import (
	"context"
	"sync"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/internal/repositories/address"
	"github.com/Ramsey-B/fern/internal/repositories/entity"
	"github.com/Ramsey-B/fern/internal/repositories/entityproperty"
	"github.com/Ramsey-B/fern/internal/repositories/person"
	"github.com/Ramsey-B/fern/pkg/faults"
	"github.com/Ramsey-B/fern/pkg/grouper"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/oracle"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const defaultWorkerCount = 4

// Planner builds merge proposals for duplicate groups.
type Planner struct {
	entities   *entity.Repository
	people     *person.Repository
	addresses  *address.Repository
	properties *entityproperty.Repository
	oracle     oracle.Oracle
	logger     ectologger.Logger
	workers    int
}

// NewPlanner creates a new planner. workerCount bounds the oracle fan-out
// within one pass; values below 1 fall back to the default.
func NewPlanner(
	entities *entity.Repository,
	people *person.Repository,
	addresses *address.Repository,
	properties *entityproperty.Repository,
	o oracle.Oracle,
	logger ectologger.Logger,
	workerCount int,
) *Planner {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}
	return &Planner{
		entities:   entities,
		people:     people,
		addresses:  addresses,
		properties: properties,
		oracle:     o,
		logger:     logger,
		workers:    workerCount,
	}
}

type groupJob struct {
	key     string
	members []models.DuplicateCandidate
}

// Analyze loads the entities matching name with their sub-records, groups
// their people by normalized full name, and produces one analyzed group per
// oracle decision. An oracle failure marks only its own group; the pass
// fails outright only when every group failed.
func (p *Planner) Analyze(ctx context.Context, name string) (*models.AnalyzeResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "planner.Planner.Analyze")
	defer span.End()

	candidates, peopleByEntity, err := p.loadCandidates(ctx, name)
	if err != nil {
		return nil, err
	}

	groups, _ := grouper.Group(candidates)
	jobs := p.claimGroups(groups)

	if len(jobs) == 0 {
		return &models.AnalyzeResponse{Grouped: []models.AnalyzedGroup{}, TotalFound: 0}, nil
	}

	results := make([]models.AnalyzedGroup, len(jobs))
	jobCh := make(chan int)
	var wg sync.WaitGroup

	workers := p.workers
	if workers > len(jobs) {
		workers = len(jobs)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobCh {
				results[idx] = p.analyzeGroup(ctx, jobs[idx], peopleByEntity)
			}
		}()
	}
	for idx := range jobs {
		jobCh <- idx
	}
	close(jobCh)
	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	if failed == len(results) {
		return nil, faults.NewExternalServiceError("resolution-oracle", "every duplicate group failed to resolve", nil)
	}

	return &models.AnalyzeResponse{Grouped: results, TotalFound: len(results)}, nil
}

// loadCandidates builds one person-centric candidate per live person owned
// by an entity matching name, plus each entity's full roster of live people
// for the deletion plan.
func (p *Planner) loadCandidates(ctx context.Context, name string) ([]models.DuplicateCandidate, map[string][]models.Person, error) {
	entities, err := p.entities.FindByName(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	if len(entities) == 0 {
		return nil, nil, nil
	}

	entityIDs := make([]string, 0, len(entities))
	byID := make(map[string]models.Entity, len(entities))
	for _, e := range entities {
		entityIDs = append(entityIDs, e.ID)
		byID[e.ID] = e
	}

	people, err := p.people.FindByEntityIDs(ctx, entityIDs)
	if err != nil {
		return nil, nil, err
	}
	addrs, err := p.addresses.FindByEntityIDs(ctx, entityIDs)
	if err != nil {
		return nil, nil, err
	}
	props, err := p.properties.FindByEntityIDs(ctx, entityIDs)
	if err != nil {
		return nil, nil, err
	}

	peopleByEntity := make(map[string][]models.Person)
	for _, per := range people {
		peopleByEntity[per.EntityID] = append(peopleByEntity[per.EntityID], per)
	}
	addrsByEntity := make(map[string][]models.Address)
	for _, a := range addrs {
		addrsByEntity[a.EntityID] = append(addrsByEntity[a.EntityID], a)
	}
	propsByEntity := make(map[string][]models.EntityProperty)
	for _, pr := range props {
		propsByEntity[pr.EntityID] = append(propsByEntity[pr.EntityID], pr)
	}

	candidates := make([]models.DuplicateCandidate, 0, len(people))
	for _, per := range people {
		owner, ok := byID[per.EntityID]
		if !ok {
			continue
		}
		candidates = append(candidates, models.DuplicateCandidate{
			Person:     per,
			Entity:     owner,
			Addresses:  addrsByEntity[per.EntityID],
			Properties: propsByEntity[per.EntityID],
		})
	}

	return candidates, peopleByEntity, nil
}

// claimGroups walks groups in deterministic key order, drops members whose
// person or entity was already claimed by an earlier group, and keeps only
// groups still holding two or more members. The seen sets are scoped to one
// pass and never leak across requests.
func (p *Planner) claimGroups(groups map[string][]models.DuplicateCandidate) []groupJob {
	seenPeople := make(map[string]bool)
	seenEntities := make(map[string]bool)

	jobs := make([]groupJob, 0, len(groups))
	for _, key := range grouper.SortedKeys(groups) {
		var members []models.DuplicateCandidate
		for _, m := range groups[key] {
			if seenPeople[m.Person.ID] || seenEntities[m.Entity.ID] {
				continue
			}
			members = append(members, m)
		}
		if len(members) < 2 {
			continue
		}
		for _, m := range members {
			seenPeople[m.Person.ID] = true
			seenEntities[m.Entity.ID] = true
		}
		jobs = append(jobs, groupJob{key: key, members: members})
	}

	return jobs
}

func (p *Planner) analyzeGroup(ctx context.Context, job groupJob, peopleByEntity map[string][]models.Person) models.AnalyzedGroup {
	ctx, span := tracing.StartSpan(ctx, "planner.Planner.analyzeGroup")
	defer span.End()

	decision, err := p.oracle.Decide(ctx, job.members[0], job.members[1:])
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"key": job.key}).Error("Oracle failed for duplicate group")
		return models.AnalyzedGroup{Key: job.key, Error: err.Error()}
	}

	proposal, err := BuildProposal(decision, job.members, peopleByEntity)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"key": job.key}).Error("Failed to build merge proposal")
		return models.AnalyzedGroup{Key: job.key, AIDecision: decision, Error: err.Error()}
	}

	return models.AnalyzedGroup{
		Key:          job.key,
		AIDecision:   decision,
		MergedPerson: proposal,
		DeletionPlan: proposal.DeletionPlan,
	}
}
