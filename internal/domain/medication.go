package domain

// Medication is one recognized or claimed drug entry. Warning and the risk
// fields are only ever populated by the validator, never by the model.
type Medication struct {
	Name          string   `json:"name" yaml:"name"`
	Dosage        string   `json:"dosage" yaml:"dosage"`
	Instructions  string   `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	Warning       string   `json:"warning,omitempty" yaml:"warning,omitempty"`
	Interactions  []string `json:"interactions,omitempty" yaml:"interactions,omitempty"`
	PregnancyRisk string   `json:"pregnancyRisk,omitempty" yaml:"pregnancyRisk,omitempty"`
	RenalRisk     string   `json:"renalRisk,omitempty" yaml:"renalRisk,omitempty"`
}

// UnreadableReason records why an analysis ended in the unreadable state.
// The UI renders every reason the same way.
type UnreadableReason string

const (
	ReasonNone                   UnreadableReason = ""
	ReasonIllegibleTranscription UnreadableReason = "illegible_transcription"
	ReasonModelUnreadable        UnreadableReason = "model_unreadable"
	ReasonNoMedications          UnreadableReason = "no_medications"
	ReasonMalformedResponse      UnreadableReason = "malformed_response"
	ReasonExtractionFailed       UnreadableReason = "extraction_failed"
)

// PrescriptionAnalysis is the result of one analyze-image operation. When
// UnreadableImage is true, Medications must be treated as not meaningful.
type PrescriptionAnalysis struct {
	Medications     []Medication     `json:"medications" yaml:"medications"`
	UnreadableImage bool             `json:"unreadableImage" yaml:"unreadableImage"`
	AdditionalInfo  string           `json:"additionalInfo,omitempty" yaml:"additionalInfo,omitempty"`
	Reason          UnreadableReason `json:"-" yaml:"-"`
}

// Unreadable builds the unreadable analysis shape.
func Unreadable(reason UnreadableReason, info string) PrescriptionAnalysis {
	return PrescriptionAnalysis{
		Medications:     []Medication{},
		UnreadableImage: true,
		AdditionalInfo:  info,
		Reason:          reason,
	}
}
