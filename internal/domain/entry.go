package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

type MessageType string

const (
	MessageSystem       MessageType = "system"
	MessageUser         MessageType = "user"
	MessageImage        MessageType = "image"
	MessageAI           MessageType = "ai"
	MessagePrescription MessageType = "prescription"
)

const (
	systemWelcome = "welcome"
	systemError   = "error"
)

// Entry is the typed view of a chat log message. The set of implementations
// is closed: SystemEntry, UserEntry, ImageEntry, AIEntry, PrescriptionEntry.
type Entry interface {
	MessageType() MessageType
	sealed()
}

// ErrorInfo is the classified failure shown in a system error bubble.
type ErrorInfo struct {
	Message   string `json:"message"`
	ErrorType string `json:"errorType"`
}

// SystemEntry is either the welcome card (Error == nil) or an error bubble.
type SystemEntry struct {
	Error *ErrorInfo
}

type UserEntry struct {
	Text string
}

// ImageEntry references the uploaded picture: an inline data URL or the key
// of the archived object.
type ImageEntry struct {
	Source string
}

type AIEntry struct {
	Text string
}

type PrescriptionEntry struct {
	Analysis PrescriptionAnalysis
}

func (SystemEntry) MessageType() MessageType       { return MessageSystem }
func (UserEntry) MessageType() MessageType         { return MessageUser }
func (ImageEntry) MessageType() MessageType        { return MessageImage }
func (AIEntry) MessageType() MessageType           { return MessageAI }
func (PrescriptionEntry) MessageType() MessageType { return MessagePrescription }

func (SystemEntry) sealed()       {}
func (UserEntry) sealed()         {}
func (ImageEntry) sealed()        {}
func (AIEntry) sealed()           {}
func (PrescriptionEntry) sealed() {}

var ErrUnknownMessageType = errors.New("domain: unknown message type")

// NewMessage encodes an entry into its persisted form. ID and CreatedAt are
// assigned by the store.
func NewMessage(prescriptionID *int64, e Entry) (Message, error) {
	msg := Message{PrescriptionID: prescriptionID, Type: e.MessageType()}
	switch v := e.(type) {
	case SystemEntry:
		if v.Error == nil {
			msg.Content = systemWelcome
			break
		}
		meta, err := json.Marshal(v.Error)
		if err != nil {
			return Message{}, fmt.Errorf("domain: encode error metadata: %w", err)
		}
		msg.Content = systemError
		msg.Metadata = meta
	case UserEntry:
		msg.Content = v.Text
	case ImageEntry:
		msg.Content = v.Source
	case AIEntry:
		msg.Content = v.Text
	case PrescriptionEntry:
		meta, err := json.Marshal(v.Analysis)
		if err != nil {
			return Message{}, fmt.Errorf("domain: encode analysis metadata: %w", err)
		}
		msg.Content = "Prescription analysis result"
		msg.Metadata = meta
	default:
		return Message{}, fmt.Errorf("%w: %T", ErrUnknownMessageType, e)
	}
	return msg, nil
}

// Entry decodes the typed view of a persisted message.
func (m Message) Entry() (Entry, error) {
	switch m.Type {
	case MessageSystem:
		if m.Content != systemError || len(m.Metadata) == 0 {
			return SystemEntry{}, nil
		}
		var info ErrorInfo
		if err := json.Unmarshal(m.Metadata, &info); err != nil {
			return nil, fmt.Errorf("domain: decode error metadata: %w", err)
		}
		return SystemEntry{Error: &info}, nil
	case MessageUser:
		return UserEntry{Text: m.Content}, nil
	case MessageImage:
		return ImageEntry{Source: m.Content}, nil
	case MessageAI:
		return AIEntry{Text: m.Content}, nil
	case MessagePrescription:
		var a PrescriptionAnalysis
		if len(m.Metadata) > 0 {
			if err := json.Unmarshal(m.Metadata, &a); err != nil {
				return nil, fmt.Errorf("domain: decode analysis metadata: %w", err)
			}
		}
		if a.Medications == nil {
			a.Medications = []Medication{}
		}
		return PrescriptionEntry{Analysis: a}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, m.Type)
	}
}
