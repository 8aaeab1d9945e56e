// Package medication checks transcribed medications against the dosage
// knowledge base and detects illegible transcriptions.
package medication

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"rx-reader/internal/domain"
	"rx-reader/internal/knowledge"
)

var dosagePattern = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(mcg|mg|ml|g)\b`)

// Validation is the validator verdict for one medication. Warning is empty
// when there is nothing to flag.
type Validation struct {
	Warning       string
	Interactions  []string
	PregnancyRisk string
	RenalRisk     string
}

// Validator is pure: it performs no I/O and returns the same Validation for
// the same inputs and knowledge base.
type Validator struct {
	kb knowledge.Lookuper
}

func NewValidator(kb knowledge.Lookuper) *Validator {
	return &Validator{kb: kb}
}

// Validate checks a free-text dosage. An unknown medication or an
// unparseable dosage yields an empty Validation, never an error.
func (v *Validator) Validate(name, dosage string) Validation {
	if v == nil || v.kb == nil {
		return Validation{}
	}
	limit, ok := v.kb.Lookup(name)
	if !ok {
		return Validation{}
	}
	m := dosagePattern.FindStringSubmatch(dosage)
	if m == nil {
		return Validation{}
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Validation{}
	}
	unit := strings.ToLower(m[2])

	out := Validation{
		Interactions:  limit.Interactions,
		PregnancyRisk: limit.PregnancyRisk,
		RenalRisk:     limit.RenalRisk,
	}
	// Unit mismatch stays silent: prescriptions legitimately mix notations.
	if unit != limit.Unit {
		return out
	}
	switch {
	case value > limit.Max:
		out.Warning = fmt.Sprintf("Warning: The dosage (%s%s) is higher than typically recommended (%s%s)",
			formatAmount(value), unit, formatAmount(limit.Max), limit.Unit)
	case value < limit.Min:
		out.Warning = fmt.Sprintf("Warning: The dosage (%s%s) is lower than typically recommended (%s%s)",
			formatAmount(value), unit, formatAmount(limit.Min), limit.Unit)
	}
	return out
}

// Apply returns a copy of med with the validation fields attached.
func (v *Validator) Apply(med domain.Medication) domain.Medication {
	res := v.Validate(med.Name, med.Dosage)
	med.Warning = res.Warning
	med.Interactions = res.Interactions
	med.PregnancyRisk = res.PregnancyRisk
	med.RenalRisk = res.RenalRisk
	return med
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
