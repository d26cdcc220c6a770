package domain

import (
	"sort"
	"strings"
)

// Known user choice keys.
const (
	ChoiceProduct                  = "product"
	ChoiceModule                   = "module"
	ChoiceActivity                 = "activity"
	ChoiceJourney                  = "journey"
	ChoiceQuestionnaireType        = "questionnaire_type"
	ChoiceIndustry                 = "industry"
	ChoiceCompanySize              = "company_size"
	ChoiceOrganizationScope        = "organization_scope"
	ChoiceSupplyChainComplexity    = "supply_chain_complexity"
	ChoiceComplianceRiskGovernance = "compliance_risk_governance"
	ChoiceSustainabilityObjectives = "sustainability_objectives"
)

// UserChoices maps filter keys (product, module, industry, ...) to values.
// Values are not validated.
type UserChoices map[string]string

// DefaultUserChoices returns the built-in filter values.
func DefaultUserChoices() UserChoices {
	return UserChoices{
		ChoiceProduct:                  "SAP Ariba",
		ChoiceModule:                   "Sourcing",
		ChoiceQuestionnaireType:        "Standard Questionnaire",
		ChoiceIndustry:                 "Energy",
		ChoiceCompanySize:              "Large",
		ChoiceOrganizationScope:        "Global",
		ChoiceSupplyChainComplexity:    "High",
		ChoiceComplianceRiskGovernance: "Mandatory",
		ChoiceSustainabilityObjectives: "Advanced",
	}
}

// Clone returns an independent copy.
func (c UserChoices) Clone() UserChoices {
	out := make(UserChoices, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Merge overlays other onto a copy of c. Blank keys are ignored.
func (c UserChoices) Merge(other map[string]string) UserChoices {
	out := c.Clone()
	for k, v := range other {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// Keys returns the choice keys in sorted order.
func (c UserChoices) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Values returns the non-empty values ordered by key.
func (c UserChoices) Values() []string {
	values := make([]string, 0, len(c))
	for _, k := range c.Keys() {
		if v := strings.TrimSpace(c[k]); v != "" {
			values = append(values, v)
		}
	}
	return values
}
