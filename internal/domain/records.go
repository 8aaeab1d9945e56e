package domain

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("domain: record not found")

// User is a registered user. Authentication is not implemented; the record
// exists so prescriptions can reference an owner.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Password string `json:"-"`
}

// Prescription is one uploaded prescription image. Either ImageBase64 holds
// the original data URL or ImageKey points at the archived object.
type Prescription struct {
	ID          int64     `json:"id"`
	UserID      *int64    `json:"userId,omitempty"`
	ImageBase64 string    `json:"imageBase64,omitempty"`
	ImageKey    string    `json:"imageKey,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Message is the persisted form of a chat log entry. Metadata carries the
// type-dependent payload; use Entry to get the typed view.
type Message struct {
	ID             int64           `json:"id"`
	PrescriptionID *int64          `json:"prescriptionId,omitempty"`
	Type           MessageType     `json:"type"`
	Content        string          `json:"content"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// Feedback is a thumbs-up/down on an analysis message.
type Feedback struct {
	ID         int64     `json:"id"`
	MessageID  int64     `json:"messageId"`
	IsAccurate bool      `json:"isAccurate"`
	CreatedAt  time.Time `json:"createdAt"`
}
