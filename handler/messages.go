package handler

import (
	"errors"
	"net/http"
	"strings"

	"rx-reader/internal/domain"
	"rx-reader/internal/usecase"
)

type messageRequest struct {
	Content string `json:"content"`
}

type chatResponse struct {
	Response string `json:"response"`
}

func (h *Handler) postMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	answer, err := h.chat.Reply(r.Context(), req.Content)
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidInput) {
			msg := "No message content provided"
			if strings.TrimSpace(req.Content) != "" {
				msg = "Message is too long"
			}
			writeMessage(w, http.StatusBadRequest, msg)
			return
		}
		writeClassified(w, http.StatusInternalServerError, usecase.Classify(err))
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Response: answer})
}

// feedbackRequest uses pointers so a missing field is distinguishable from
// false/0.
type feedbackRequest struct {
	MessageID  *int64 `json:"messageId"`
	IsAccurate *bool  `json:"isAccurate"`
}

type feedbackResponse struct {
	Success  bool            `json:"success"`
	Feedback domain.Feedback `json:"feedback"`
}

func (h *Handler) postFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	if req.MessageID == nil || req.IsAccurate == nil {
		writeMessage(w, http.StatusBadRequest, "Missing required feedback information")
		return
	}
	fb, err := h.feedback.Submit(r.Context(), *req.MessageID, *req.IsAccurate)
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidInput) {
			writeMessage(w, http.StatusBadRequest, "Missing required feedback information")
			return
		}
		writeClassified(w, http.StatusInternalServerError, usecase.Classify(err))
		return
	}
	writeJSON(w, http.StatusOK, feedbackResponse{Success: true, Feedback: fb})
}

func (h *Handler) getFeedback(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	fb, err := h.feedback.Get(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, r, "Feedback not found", err)
		return
	}
	writeJSON(w, http.StatusOK, fb)
}
