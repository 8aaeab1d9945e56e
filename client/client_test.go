package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL + "/")
	require.NoError(t, err)
	return c
}

func reply(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func requireClientError(t *testing.T, err error) *Error {
	t.Helper()
	require.Error(t, err)
	var ce *Error
	require.ErrorAs(t, err, &ce)
	return ce
}

func TestNew_RequiresBaseURL(t *testing.T) {
	_, err := New("  ")
	require.Error(t, err)
}

// ---- analyze

func TestAnalyzeImage_HappyPath(t *testing.T) {
	var got map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/prescriptions/analyze", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		reply(http.StatusOK, `{"medications":[{"name":"paracetamol","dosage":"500mg"}],"unreadableImage":false,"prescriptionId":2,"messageId":5}`)(w, r)
	})

	out, err := c.AnalyzeImage(context.Background(), "data:image/png;base64,AA==")
	require.NoError(t, err)
	require.Equal(t, "data:image/png;base64,AA==", got["imageBase64"])
	require.Len(t, out.Medications, 1)
	require.Equal(t, int64(2), out.PrescriptionID)
	require.Equal(t, int64(5), out.MessageID)
}

func TestAnalyzeImage_UnreadableHasEmptyList(t *testing.T) {
	c := newTestClient(t, reply(http.StatusOK, `{"unreadableImage":true,"additionalInfo":"blurry"}`))
	out, err := c.AnalyzeImage(context.Background(), "x")
	require.NoError(t, err)
	require.True(t, out.UnreadableImage)
	require.NotNil(t, out.Medications)
}

func TestAnalyzeImage_ErrorClassification(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		kind    ErrorKind
		message string
	}{
		{"server kind and message", http.StatusInternalServerError, `{"message":"The AI service is busy right now. Please try again later.","type":"api"}`, KindAPI, "The AI service is busy right now. Please try again later."},
		{"format 400", http.StatusBadRequest, `{"message":"Unsupported image format. Please use a JPG, PNG or PDF file.","type":"format"}`, KindFormat, "Unsupported image format. Please use a JPG, PNG or PDF file."},
		{"413 forces size", http.StatusRequestEntityTooLarge, `{"message":"whatever","type":"general"}`, KindSize, sizeMessage},
		{"payload wording forces size", http.StatusInternalServerError, `{"message":"request payload rejected","type":"general"}`, KindSize, sizeMessage},
		{"non-json body", http.StatusBadGateway, `<html>bad gateway</html>`, KindGeneral, defaultAnalyzeMessage},
		{"non-json too large", http.StatusBadGateway, `entity too large`, KindSize, sizeMessage},
		{"message only", http.StatusBadRequest, `{"message":"No image provided"}`, KindGeneral, "No image provided"},
		{"unknown kind", http.StatusInternalServerError, `{"message":"x","type":"weird"}`, KindGeneral, "x"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, reply(tc.status, tc.body))
			_, err := c.AnalyzeImage(context.Background(), "x")
			ce := requireClientError(t, err)
			require.Equal(t, tc.kind, ce.Kind)
			require.Equal(t, tc.message, ce.Message)
			require.Equal(t, tc.status, ce.Status)
		})
	}
}

func TestAnalyzeImage_TransportError(t *testing.T) {
	srv := httptest.NewServer(reply(http.StatusOK, `{}`))
	srv.Close()
	c, err := New(srv.URL)
	require.NoError(t, err)

	_, err = c.AnalyzeImage(context.Background(), "x")
	ce := requireClientError(t, err)
	require.Equal(t, KindGeneral, ce.Kind)
	require.Equal(t, defaultAnalyzeMessage, ce.Message)
	require.Zero(t, ce.Status)
	require.NotNil(t, ce.Unwrap())
}

// ---- messages and feedback

func TestSendMessage(t *testing.T) {
	c := newTestClient(t, reply(http.StatusOK, `{"response":"Take with food."}`))
	out, err := c.SendMessage(context.Background(), "how?")
	require.NoError(t, err)
	require.Equal(t, "Take with food.", out)
}

func TestSendMessage_Errors(t *testing.T) {
	c := newTestClient(t, reply(http.StatusInternalServerError, `{"type":"api"}`))
	_, err := c.SendMessage(context.Background(), "how?")
	ce := requireClientError(t, err)
	require.Equal(t, KindAPI, ce.Kind)
	require.Equal(t, defaultMessageMessage, ce.Message)

	// size wording only matters for analysis
	c = newTestClient(t, reply(http.StatusRequestEntityTooLarge, `{"message":"too large"}`))
	_, err = c.SendMessage(context.Background(), "how?")
	ce = requireClientError(t, err)
	require.Equal(t, KindGeneral, ce.Kind)
}

func TestSubmitFeedback(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		reply(http.StatusOK, `{"success":true,"feedback":{"id":1,"messageId":9,"isAccurate":true}}`)(w, r)
	})
	fb, err := c.SubmitFeedback(context.Background(), 9, true)
	require.NoError(t, err)
	require.Equal(t, float64(9), got["messageId"])
	require.Equal(t, true, got["isAccurate"])
	require.Equal(t, int64(1), fb.ID)
}

func TestSubmitFeedback_ErrorIsAlwaysGeneral(t *testing.T) {
	c := newTestClient(t, reply(http.StatusInternalServerError, `{"type":"api"}`))
	_, err := c.SubmitFeedback(context.Background(), 9, true)
	ce := requireClientError(t, err)
	require.Equal(t, KindGeneral, ce.Kind)
	require.Equal(t, defaultFeedbackMessage, ce.Message)
}

// ---- catalogue

func TestCard(t *testing.T) {
	require.Equal(t, "Service Temporarily Unavailable", Card(KindAPI).Title)
	require.Equal(t, "Please try again in a few minutes.", Card(KindAPI).Recommendation)
	require.Equal(t, "Image Size Too Large", Card(KindSize).Title)
	require.Equal(t, "Image Format Issue", Card(KindFormat).Title)
	require.Equal(t, "Try using a clearer image in JPG or PNG format.", Card(KindFormat).Recommendation)
	require.Equal(t, "Error Processing Request", Card(KindGeneral).Title)
	require.Empty(t, Card(KindGeneral).Recommendation)
	require.Equal(t, Card(KindGeneral), Card("nope"))
}

func TestError_CardUsesServerMessage(t *testing.T) {
	e := &Error{Kind: KindFormat, Message: "HEIC not allowed"}
	card := e.Card()
	require.Equal(t, "Image Format Issue", card.Title)
	require.Equal(t, "HEIC not allowed", card.Message)
	require.Contains(t, e.Error(), "format")
}
