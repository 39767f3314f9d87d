package models

// MergeDecision is the resolution oracle's answer for one duplicate group.
type MergeDecision struct {
	Keep      string   `json:"keep"`
	Remove    []string `json:"remove"`
	Rationale string   `json:"rationale"`
}

// PersonPayload is a person as supplied in a merge payload. A payload that
// carries the id of a person already owned by the kept entity is an update;
// anything else is created new under the kept entity.
type PersonPayload struct {
	PeopleID    string `json:"people_id,omitempty"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
}

// AddressPayload is an address as supplied in a merge payload.
type AddressPayload struct {
	AddressID  string `json:"address_id,omitempty"`
	Street     string `json:"street"`
	Street2    string `json:"street2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	IsPrimary  bool   `json:"is_primary"`
}

// PropertyPayload is a typed property as supplied in a merge payload.
type PropertyPayload struct {
	PropertyTypeID string `json:"property_type_id"`
	Value          string `json:"value"`
	IsPrimary      bool   `json:"is_primary"`
}

// MergedFields holds the kept entity's final top-level field values.
type MergedFields struct {
	Name      string  `json:"name"`
	TradeName *string `json:"trade_name,omitempty"`
}

// MergeProposal is the reviewable merge plan for one duplicate group. It is
// transient: produced by the planner or authored by a client, consumed
// exactly once by the executor, never persisted.
type MergeProposal struct {
	KeepID           string              `json:"keep_id"`
	RemoveIDs        []string            `json:"remove_ids"`
	MergedFields     MergedFields        `json:"merged_fields"`
	MergedPeople     []PersonPayload     `json:"merged_people"`
	MergedAddresses  []AddressPayload    `json:"merged_addresses"`
	MergedProperties []PropertyPayload   `json:"merged_properties"`
	DeletionPlan     map[string][]string `json:"deletion_plan"`
}

// MergedEntityPayload is the client-authored merged record for the resolve
// endpoints.
type MergedEntityPayload struct {
	Name       *string           `json:"name,omitempty"`
	TradeName  *string           `json:"trade_name,omitempty"`
	People     []PersonPayload   `json:"people"`
	Addresses  []AddressPayload  `json:"address"`
	Properties []PropertyPayload `json:"entity_property"`
}

// ResolveDuplicatesRequest is the body for both resolve endpoints.
type ResolveDuplicatesRequest struct {
	KeepEntityID    string              `json:"keep_entity_id" validate:"required"`
	RemoveEntityIDs []string            `json:"remove_entity_ids" validate:"required,min=1"`
	MergedEntity    MergedEntityPayload `json:"merged_entity"`
}

// ResolveDuplicatesResult is the success payload for both resolve endpoints.
type ResolveDuplicatesResult struct {
	MergedEntityID   string   `json:"merged_entity_id"`
	DeletedEntityIDs []string `json:"deleted_entity_ids"`
	Applied          bool     `json:"applied"`
}

// DuplicateCandidate is one person-centric grouping unit: the person, its
// owning entity and the sub-records needed to plan a merge.
type DuplicateCandidate struct {
	Person     Person           `json:"person"`
	Entity     Entity           `json:"entity"`
	Addresses  []Address        `json:"addresses"`
	Properties []EntityProperty `json:"properties"`
}

// AnalyzedGroup is the planner output for one duplicate group.
type AnalyzedGroup struct {
	Key          string              `json:"key"`
	AIDecision   *MergeDecision      `json:"aiDecision"`
	MergedPerson *MergeProposal      `json:"mergedPerson"`
	DeletionPlan map[string][]string `json:"deletionPlan"`
	Error        string              `json:"error,omitempty"`
}

// AnalyzeResponse is the payload for the duplicates/analyze endpoint.
type AnalyzeResponse struct {
	Grouped    []AnalyzedGroup `json:"grouped"`
	TotalFound int             `json:"totalFound"`
}
