package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }

func TestNewMessage_EncodesEveryEntry(t *testing.T) {
	pid := int64Ptr(7)
	analysis := PrescriptionAnalysis{
		Medications: []Medication{{Name: "paracetamol", Dosage: "500mg", PregnancyRisk: "A"}},
	}

	tests := []struct {
		name        string
		entry       Entry
		wantType    MessageType
		wantContent string
		wantMeta    bool
	}{
		{name: "welcome", entry: SystemEntry{}, wantType: MessageSystem, wantContent: "welcome"},
		{name: "error", entry: SystemEntry{Error: &ErrorInfo{Message: "busy", ErrorType: "api"}}, wantType: MessageSystem, wantContent: "error", wantMeta: true},
		{name: "user", entry: UserEntry{Text: "hi"}, wantType: MessageUser, wantContent: "hi"},
		{name: "image", entry: ImageEntry{Source: "data:image/png;base64,AA=="}, wantType: MessageImage, wantContent: "data:image/png;base64,AA=="},
		{name: "ai", entry: AIEntry{Text: "hello"}, wantType: MessageAI, wantContent: "hello"},
		{name: "prescription", entry: PrescriptionEntry{Analysis: analysis}, wantType: MessagePrescription, wantContent: "Prescription analysis result", wantMeta: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := NewMessage(pid, tt.entry)
			require.NoError(t, err)
			require.Equal(t, tt.wantType, msg.Type)
			require.Equal(t, tt.wantContent, msg.Content)
			require.Equal(t, pid, msg.PrescriptionID)
			if tt.wantMeta {
				require.NotEmpty(t, msg.Metadata)
			} else {
				require.Empty(t, msg.Metadata)
			}

			back, err := msg.Entry()
			require.NoError(t, err)
			require.Equal(t, tt.entry, back)
		})
	}
}

func TestMessageEntry_PrescriptionMetadataShape(t *testing.T) {
	msg, err := NewMessage(nil, PrescriptionEntry{Analysis: Unreadable(ReasonNoMedications, "try again")})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(msg.Metadata, &raw))
	require.Equal(t, true, raw["unreadableImage"])
	require.Equal(t, "try again", raw["additionalInfo"])
	require.Equal(t, []any{}, raw["medications"])
	require.NotContains(t, raw, "Reason")
}

func TestMessageEntry_Errors(t *testing.T) {
	_, err := Message{Type: "video"}.Entry()
	require.ErrorIs(t, err, ErrUnknownMessageType)

	_, err = Message{Type: MessagePrescription, Metadata: json.RawMessage(`[`)}.Entry()
	require.Error(t, err)

	_, err = Message{Type: MessageSystem, Content: "error", Metadata: json.RawMessage(`"x"`)}.Entry()
	require.Error(t, err)
}

func TestMessageEntry_PrescriptionWithoutMetadata(t *testing.T) {
	e, err := Message{Type: MessagePrescription}.Entry()
	require.NoError(t, err)
	require.Equal(t, PrescriptionEntry{Analysis: PrescriptionAnalysis{Medications: []Medication{}}}, e)
}
