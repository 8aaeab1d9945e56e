package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"rx-reader/internal/domain"
	"rx-reader/internal/usecase"
)

const formatDetail = "Make sure the image is properly encoded as base64 with the correct mime type."

type analyzeRequest struct {
	ImageBase64 string `json:"imageBase64"`
}

type analyzeResponse struct {
	domain.PrescriptionAnalysis
	PrescriptionID int64 `json:"prescriptionId,omitempty"`
	MessageID      int64 `json:"messageId,omitempty"`
}

func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if !h.decodeBody(w, r, &req) {
		return
	}
	out, err := h.analyzer.Analyze(r.Context(), req.ImageBase64)
	if err != nil {
		h.writeAnalyzeError(w, err)
		return
	}
	if out.Analysis.Medications == nil {
		out.Analysis.Medications = []domain.Medication{}
	}
	writeJSON(w, http.StatusOK, analyzeResponse{
		PrescriptionAnalysis: out.Analysis,
		PrescriptionID:       out.PrescriptionID,
		MessageID:            out.MessageID,
	})
}

// writeAnalyzeError maps rejected input to 4xx and everything else to a
// classified 500.
func (h *Handler) writeAnalyzeError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrMissingImage) {
		writeMessage(w, http.StatusBadRequest, "No image provided")
		return
	}
	ae := usecase.Classify(err)
	switch {
	case errors.Is(err, domain.ErrUnsupportedImage) || errors.Is(err, domain.ErrCorruptImage):
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: ae.Message, Type: string(ae.Kind), Detail: formatDetail})
	case ae.Kind == usecase.ErrorSize:
		writeClassified(w, http.StatusRequestEntityTooLarge, ae)
	default:
		writeClassified(w, http.StatusInternalServerError, ae)
	}
}

type prescriptionResponse struct {
	ID        int64     `json:"id"`
	UserID    *int64    `json:"userId,omitempty"`
	HasImage  bool      `json:"hasImage"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h *Handler) getPrescription(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := h.analyzer.GetPrescription(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, r, "Prescription not found", err)
		return
	}
	resp := prescriptionResponse{ID: p.ID, UserID: p.UserID, CreatedAt: p.CreatedAt}
	if p.ImageBase64 != "" || p.ImageKey != "" {
		resp.HasImage = true
		resp.ImageURL = imageURL(p.ID)
	}
	writeJSON(w, http.StatusOK, resp)
}

// getImage streams the upload back, from the archive when the record only
// holds a key.
func (h *Handler) getImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := h.analyzer.GetPrescription(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, r, "Prescription not found", err)
		return
	}

	var img domain.Image
	switch {
	case p.ImageKey != "" && h.images != nil:
		img, err = h.images.Get(r.Context(), p.ImageKey)
		if err != nil {
			h.writeLookupError(w, r, "Image not found", err)
			return
		}
	case p.ImageBase64 != "":
		img, err = domain.ParseImageDataURL(p.ImageBase64)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "stored image unreadable", "prescription_id", id, "err", err)
			writeMessage(w, http.StatusInternalServerError, "Stored image could not be decoded")
			return
		}
	default:
		writeMessage(w, http.StatusNotFound, "Image not found")
		return
	}

	w.Header().Set("Content-Type", img.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img.Data)
}

type messageResponse struct {
	ID        int64                        `json:"id"`
	Type      domain.MessageType           `json:"type"`
	Content   string                       `json:"content,omitempty"`
	ImageURL  string                       `json:"imageUrl,omitempty"`
	Analysis  *domain.PrescriptionAnalysis `json:"analysis,omitempty"`
	Error     *domain.ErrorInfo            `json:"error,omitempty"`
	CreatedAt time.Time                    `json:"createdAt"`
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	msgs, err := h.analyzer.Conversation(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, r, "Prescription not found", err)
		return
	}
	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		view, err := renderMessage(id, m)
		if err != nil {
			h.logger.WarnContext(r.Context(), "skipping undecodable message", "message_id", m.ID, "err", err)
			continue
		}
		out = append(out, view)
	}
	writeJSON(w, http.StatusOK, out)
}

func renderMessage(prescriptionID int64, m domain.Message) (messageResponse, error) {
	e, err := m.Entry()
	if err != nil {
		return messageResponse{}, err
	}
	view := messageResponse{ID: m.ID, Type: e.MessageType(), CreatedAt: m.CreatedAt}
	switch v := e.(type) {
	case domain.SystemEntry:
		view.Error = v.Error
		if v.Error == nil {
			view.Content = "welcome"
		}
	case domain.UserEntry:
		view.Content = v.Text
	case domain.ImageEntry:
		// the source may be a multi-megabyte data URL; point at it instead
		view.ImageURL = imageURL(prescriptionID)
	case domain.AIEntry:
		view.Content = v.Text
	case domain.PrescriptionEntry:
		analysis := v.Analysis
		view.Analysis = &analysis
	default:
		return messageResponse{}, fmt.Errorf("handler: unhandled entry %T", e)
	}
	return view, nil
}

func imageURL(prescriptionID int64) string {
	return "/api/prescriptions/" + strconv.FormatInt(prescriptionID, 10) + "/image"
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeMessage(w, http.StatusBadRequest, "Invalid id")
		return 0, false
	}
	return id, true
}

func (h *Handler) writeLookupError(w http.ResponseWriter, r *http.Request, notFound string, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		writeMessage(w, http.StatusNotFound, notFound)
		return
	}
	h.logger.ErrorContext(r.Context(), "lookup failed", "path", r.URL.Path, "err", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{
		Message: "Something went wrong. Please try again.",
		Type:    string(usecase.ErrorGeneral),
	})
}
