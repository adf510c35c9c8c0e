// Package taxonomy holds the closed requirement-type registry: one entry per
// reqType with its reqId prefix, singleton flag, and initial workflow state.
// The sets below are static product policy, not per-solution configuration.
package taxonomy

import (
	"fmt"
	"sort"

	"reqline/internal/domain"
)

// Requirement type tags.
const (
	Vision             = "vision"
	Situation          = "situation"
	StakeholderGroup   = "stakeholder_group"
	Person             = "person"
	GlossaryTerm       = "glossary_term"
	Constraint         = "constraint"
	EnvironmentEffect  = "environment_effect"
	Invariant          = "invariant"
	Outcome            = "outcome"
	Obstacle           = "obstacle"
	FunctionalBehavior = "functional_behavior"
	NonFunctional      = "nonfunctional_requirement"
	Scenario           = "scenario"
	UserStory          = "user_story"
	SystemLimit        = "system_limit"
	Silence            = "silence"
	ParsedRequirements = "parsed_requirements"
)

// Category chars derived from the first prefix character.
const (
	CategoryProject     = byte('P')
	CategoryEnvironment = byte('E')
	CategoryGoals       = byte('G')
	CategorySystem      = byte('S')
)

// Spec describes one requirement type. Prefix is empty for types that never
// receive a human-readable reqId (silence, parsed_requirements).
type Spec struct {
	Prefix    string
	Singleton bool
	Initial   string
}

var registry = map[string]Spec{
	Vision:             {Prefix: "PV", Singleton: true, Initial: domain.StateProposed},
	Situation:          {Prefix: "PS", Singleton: true, Initial: domain.StateProposed},
	StakeholderGroup:   {Prefix: "PG", Initial: domain.StateProposed},
	Person:             {Prefix: "PP", Initial: domain.StateProposed},
	GlossaryTerm:       {Prefix: "EG", Initial: domain.StateProposed},
	Constraint:         {Prefix: "EC", Initial: domain.StateProposed},
	EnvironmentEffect:  {Prefix: "EE", Initial: domain.StateProposed},
	Invariant:          {Prefix: "EI", Initial: domain.StateProposed},
	Outcome:            {Prefix: "GO", Initial: domain.StateProposed},
	Obstacle:           {Prefix: "GB", Initial: domain.StateProposed},
	FunctionalBehavior: {Prefix: "SF", Initial: domain.StateProposed},
	NonFunctional:      {Prefix: "SN", Initial: domain.StateProposed},
	Scenario:           {Prefix: "SE", Initial: domain.StateProposed},
	UserStory:          {Prefix: "SU", Initial: domain.StateProposed},
	SystemLimit:        {Prefix: "SL", Initial: domain.StateProposed},
	Silence:            {Initial: domain.StateRejected},
	ParsedRequirements: {Initial: domain.StateParsed},
}

// minimumRequired lists the types a solution needs at least one active
// instance of before it counts as minimally specified.
var minimumRequired = []string{Vision, Situation, Outcome}

// Lookup returns the spec for a reqType.
func Lookup(reqType string) (Spec, error) {
	s, ok := registry[reqType]
	if !ok {
		return Spec{}, fmt.Errorf("unknown requirement type %s", reqType)
	}
	return s, nil
}

// Known reports whether reqType is part of the registry.
func Known(reqType string) bool {
	_, ok := registry[reqType]
	return ok
}

// IsSingleton reports whether at most one non-removed instance of reqType may
// exist per solution.
func IsSingleton(reqType string) bool {
	return registry[reqType].Singleton
}

// HasReqID reports whether the type receives a human-readable reqId.
func HasReqID(reqType string) bool {
	return registry[reqType].Prefix != ""
}

// FormatReqID renders the human-readable id for a type and sequence number,
// e.g. "SF-12".
func FormatReqID(reqType string, seq int) string {
	s := registry[reqType]
	if s.Prefix == "" {
		return ""
	}
	return fmt.Sprintf("%s-%d", s.Prefix, seq)
}

// Category returns the category char (P, E, G, S) for a reqId or reqId
// prefix; zero when the value is empty.
func Category(reqID string) byte {
	if reqID == "" {
		return 0
	}
	return reqID[0]
}

// CategoryName maps a category char to its display name.
func CategoryName(category byte) string {
	switch category {
	case CategoryProject:
		return "Project"
	case CategoryEnvironment:
		return "Environment"
	case CategoryGoals:
		return "Goals"
	case CategorySystem:
		return "System"
	}
	return "Unknown"
}

// Types returns all registered reqTypes in stable order.
func Types() []string {
	out := make([]string, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// MinimumRequired returns the static minimum-required type set.
func MinimumRequired() []string {
	out := make([]string, len(minimumRequired))
	copy(out, minimumRequired)
	return out
}
