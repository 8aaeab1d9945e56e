package client

import (
	"fmt"
	"net/http"
	"strings"
)

type ErrorKind string

const (
	KindAPI     ErrorKind = "api"
	KindSize    ErrorKind = "size"
	KindFormat  ErrorKind = "format"
	KindGeneral ErrorKind = "general"
)

const (
	defaultAnalyzeMessage  = "We couldn't analyze your prescription. Please try again."
	defaultMessageMessage  = "We couldn't send your message. Please try again."
	defaultFeedbackMessage = "We couldn't save your feedback. Please try again."
	sizeMessage            = "The image is too large. Please try with a smaller image."
)

// Error is what callers see when a request fails: a user-facing message
// and its category. Status is 0 for transport failures.
type Error struct {
	Kind    ErrorKind
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("client: %s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("client: %s (status %d): %s", e.Kind, e.Status, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Card returns the rendering of e in the error catalogue.
func (e *Error) Card() ErrorCard {
	c := Card(e.Kind)
	if e.Message != "" {
		c.Message = e.Message
	}
	return c
}

// ErrorCard is the title, message and recommendation shown for a failure.
type ErrorCard struct {
	Title          string `json:"title" yaml:"title"`
	Message        string `json:"message" yaml:"message"`
	Recommendation string `json:"recommendation,omitempty" yaml:"recommendation,omitempty"`
}

var catalogue = map[ErrorKind]ErrorCard{
	KindAPI: {
		Title:          "Service Temporarily Unavailable",
		Message:        "The AI service is busy right now. Please try again later.",
		Recommendation: "Please try again in a few minutes.",
	},
	KindSize: {
		Title:          "Image Size Too Large",
		Message:        sizeMessage,
		Recommendation: "Try using a smaller image or reduce image quality.",
	},
	KindFormat: {
		Title:          "Image Format Issue",
		Message:        "Unsupported image format. Please use a JPG, PNG or PDF file.",
		Recommendation: "Try using a clearer image in JPG or PNG format.",
	},
	KindGeneral: {
		Title:   "Error Processing Request",
		Message: defaultAnalyzeMessage,
	},
}

// Card looks up kind in the catalogue; unknown kinds render as general.
func Card(kind ErrorKind) ErrorCard {
	if c, ok := catalogue[kind]; ok {
		return c
	}
	return catalogue[KindGeneral]
}

type operation int

const (
	opAnalyze operation = iota
	opMessage
	opFeedback
)

func (o operation) defaultMessage() string {
	switch o {
	case opMessage:
		return defaultMessageMessage
	case opFeedback:
		return defaultFeedbackMessage
	default:
		return defaultAnalyzeMessage
	}
}

// errorBody is the server's failure payload.
type errorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// classify builds the caller-facing error. Server-provided message and type
// win over the defaults; for analysis, a 413 or size wording forces size.
func classify(op operation, status int, body *errorBody, raw string, cause error) *Error {
	e := &Error{Kind: KindGeneral, Message: op.defaultMessage(), Status: status, Err: cause}
	if body != nil {
		if body.Message != "" {
			e.Message = body.Message
		}
		if body.Type != "" && op != opFeedback {
			e.Kind = normalizeKind(body.Type)
		}
	}
	if op == opAnalyze {
		text := strings.ToLower(raw)
		if cause != nil {
			text += " " + strings.ToLower(cause.Error())
		}
		if status == http.StatusRequestEntityTooLarge || strings.Contains(text, "too large") || strings.Contains(text, "payload") {
			e.Kind = KindSize
			e.Message = sizeMessage
		}
	}
	return e
}

func normalizeKind(raw string) ErrorKind {
	switch k := ErrorKind(strings.ToLower(strings.TrimSpace(raw))); k {
	case KindAPI, KindSize, KindFormat:
		return k
	default:
		return KindGeneral
	}
}
