package usecase

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"rx-reader/internal/domain"
)

const emptyTranscription = "Unable to analyze the prescription."

func buildTranscriptionMessages(img domain.Image) []domain.ChatMessage {
	return []domain.ChatMessage{
		{
			Role: domain.RoleSystem,
			Content: "You are an AI specialized in analyzing medical prescriptions. " +
				"Focus on identifying medication names, dosages, and instructions. Be precise and thorough.",
		},
		{
			Role: domain.RoleUser,
			Content: "This is a handwritten medical prescription. Please analyze it in detail and identify all " +
				"medications, dosages, and usage instructions. Even if the handwriting is difficult to read, " +
				"do your best to extract as much information as possible.",
			Image: &img,
		},
	}
}

func buildExtractionMessages(transcription string, abbreviations map[string][]string) []domain.ChatMessage {
	system := strings.Join([]string{
		"You are an AI specialized in extracting structured medication information from prescription analyses.",
		"Extract the medication names, dosages, and instructions into a structured format.",
		"If the image appears to be unreadable or doesn't contain a valid prescription, indicate this in your response.",
		"Be flexible with medication names and dosages, as prescriptions may contain less common drugs or abbreviations.",
	}, " ")
	if hints := abbreviationHints(abbreviations); hints != "" {
		system += "\n\nKnown abbreviations (write the full name in 'name'):\n" + hints
	}
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: system},
		{Role: domain.RoleUser, Content: extractionInstruction() + "\n\n" + transcription},
	}
}

func extractionInstruction() string {
	return "Extract the medication information from this prescription analysis into a structured JSON format " +
		"with an array of medications. Each medication should have 'name', 'dosage', and optionally " +
		"'instructions' fields. You may also include an 'additionalInfo' field for any relevant notes. " +
		"If the prescription appears unreadable or invalid, set 'unreadableImage' to true. Here's the analysis:"
}

func abbreviationHints(abbreviations map[string][]string) string {
	if len(abbreviations) == 0 {
		return ""
	}
	names := make([]string, 0, len(abbreviations))
	for n := range abbreviations {
		names = append(names, n)
	}
	sort.Strings(names)
	lines := make([]string, 0, len(names))
	for _, n := range names {
		lines = append(lines, fmt.Sprintf("- %s: %s", strings.Join(abbreviations[n], ", "), n))
	}
	return strings.Join(lines, "\n")
}

func buildChatMessages(text string) []domain.ChatMessage {
	return []domain.ChatMessage{
		{
			Role: domain.RoleSystem,
			Content: "You are a helpful medical prescription assistant called RX Reader. You help users understand " +
				"their prescriptions and provide general information about medications. Always remind users to " +
				"follow their doctor's instructions and consult healthcare professionals for medical advice. " +
				"Keep your responses concise, friendly, and informative.",
		},
		{Role: domain.RoleUser, Content: text},
	}
}

// extractionResponse is the loosely typed model answer. Every field is kept
// raw so a single bad field does not discard the rest.
type extractionResponse struct {
	Medications     json.RawMessage `json:"medications"`
	AdditionalInfo  json.RawMessage `json:"additionalInfo"`
	UnreadableImage json.RawMessage `json:"unreadableImage"`
}

type extraction struct {
	medications     []domain.Medication
	additionalInfo  string
	unreadableImage bool
}

// parseExtraction decodes the model answer leniently. It only fails when the
// payload is not a JSON object at all.
func parseExtraction(raw string) (extraction, error) {
	raw = stripCodeFence(raw)
	if raw == "" {
		raw = "{}"
	}
	var resp extractionResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return extraction{}, fmt.Errorf("usecase: decode extraction: %w", err)
	}
	out := extraction{
		additionalInfo:  strings.TrimSpace(asString(resp.AdditionalInfo)),
		unreadableImage: asBool(resp.UnreadableImage),
	}
	var items []json.RawMessage
	if err := json.Unmarshal(resp.Medications, &items); err != nil {
		// Missing or not an array: treated as no medications.
		return out, nil
	}
	for _, item := range items {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(item, &fields); err != nil {
			continue
		}
		med := domain.Medication{
			Name:         strings.TrimSpace(asString(fields["name"])),
			Dosage:       strings.TrimSpace(asString(fields["dosage"])),
			Instructions: strings.TrimSpace(asString(fields["instructions"])),
		}
		if med.Name == "" {
			continue
		}
		out.medications = append(out.medications, med)
	}
	return out, nil
}

func stripCodeFence(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimPrefix(raw, "json")
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	return strings.TrimSpace(raw)
}

// asString accepts strings and numbers; the model sometimes emits a bare
// number for dosage.
func asString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func asBool(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	return strings.EqualFold(strings.Trim(string(raw), `"`), "true")
}
