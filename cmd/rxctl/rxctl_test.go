package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"rx-reader/client"
	"rx-reader/internal/domain"
)

func init() {
	color.NoColor = true
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeTempImage(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))
	return path
}

func TestMimeFromPath(t *testing.T) {
	mime, err := mimeFromPath("scan.JPG")
	require.NoError(t, err)
	require.Equal(t, "image/jpeg", mime)

	mime, err = mimeFromPath("doc.pdf")
	require.NoError(t, err)
	require.Equal(t, "application/pdf", mime)

	_, err = mimeFromPath("anim.gif")
	require.Error(t, err)
}

func TestReadImage_BuildsDataURL(t *testing.T) {
	got, err := readImage(writeTempImage(t, "rx.png"))
	require.NoError(t, err)
	require.Equal(t, "data:image/png;base64,aGVsbG8=", got)
}

func TestRenderAnalysis_UnreadableIgnoresList(t *testing.T) {
	var buf bytes.Buffer
	err := renderAnalysis(&buf, formatHuman, client.AnalyzeResult{PrescriptionAnalysis: domain.PrescriptionAnalysis{
		Medications:     []domain.Medication{{Name: "ghost"}},
		UnreadableImage: true,
		AdditionalInfo:  "Please upload a clearer image.",
	}})
	require.NoError(t, err)
	require.Contains(t, buf.String(), "IMAGE COULD NOT BE READ")
	require.Contains(t, buf.String(), "Please upload a clearer image.")
	require.NotContains(t, buf.String(), "ghost")
}

func TestRenderAnalysis_Human(t *testing.T) {
	var buf bytes.Buffer
	err := renderAnalysis(&buf, formatHuman, client.AnalyzeResult{
		PrescriptionAnalysis: domain.PrescriptionAnalysis{Medications: []domain.Medication{{
			Name:         "paracetamol",
			Dosage:       "2000mg",
			Warning:      "Warning: The dosage (2000mg) is higher than typically recommended (1000mg)",
			Interactions: []string{"warfarin"},
		}}},
		MessageID: 12,
	})
	require.NoError(t, err)
	out := buf.String()
	require.Contains(t, out, "MEDICATIONS FOUND (1)")
	require.Contains(t, out, "1. paracetamol 2000mg")
	require.Contains(t, out, "higher than typically recommended")
	require.Contains(t, out, "Interactions: warfarin")
	require.Contains(t, out, "rxctl feedback 12")
}

func TestRenderAnalysis_YAMLIsFlat(t *testing.T) {
	var buf bytes.Buffer
	err := renderAnalysis(&buf, formatYAML, client.AnalyzeResult{
		PrescriptionAnalysis: domain.PrescriptionAnalysis{Medications: []domain.Medication{}, UnreadableImage: true},
		PrescriptionID:       3,
	})
	require.NoError(t, err)
	var got map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &got))
	require.Equal(t, true, got["unreadableImage"])
	require.Equal(t, 3, got["prescriptionId"])
}

func TestAnalyzeCommand_JSON(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"medications":[{"name":"prednisona","dosage":"20mg"}],"unreadableImage":false,"messageId":4}`)
	}))
	defer srv.Close()

	out, err := runCLI(t, "analyze", writeTempImage(t, "rx.jpeg"), "--server", srv.URL, "-o", "json")
	require.NoError(t, err)
	require.Equal(t, "data:image/jpeg;base64,aGVsbG8=", got["imageBase64"])

	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Equal(t, float64(4), res["messageId"])
}

func TestAnalyzeCommand_RendersErrorCard(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"message":"The AI service is busy right now. Please try again later.","type":"api"}`)
	}))
	defer srv.Close()

	out, err := runCLI(t, "analyze", writeTempImage(t, "rx.png"), "--server", srv.URL)
	require.Error(t, err)
	require.Contains(t, out, "Service Temporarily Unavailable")
	require.Contains(t, out, "Please try again in a few minutes.")
}

func TestAnalyzeCommand_RejectsUnknownExtension(t *testing.T) {
	_, err := runCLI(t, "analyze", writeTempImage(t, "rx.gif"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported file type")
}

func TestFeedbackCommand(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/feedbacks", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = io.WriteString(w, `{"success":true,"feedback":{"id":2,"messageId":12,"isAccurate":true}}`)
	}))
	defer srv.Close()

	out, err := runCLI(t, "feedback", "12", "--accurate", "--server", srv.URL)
	require.NoError(t, err)
	require.Equal(t, true, got["isAccurate"])
	require.Contains(t, out, "Feedback 2 recorded for message 12")

	_, err = runCLI(t, "feedback", "zero", "--server", srv.URL)
	require.Error(t, err)
}

func TestAskCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"response":"Take it after meals."}`)
	}))
	defer srv.Close()

	out, err := runCLI(t, "ask", "when", "should", "I", "take", "it?", "--server", srv.URL)
	require.NoError(t, err)
	require.Equal(t, "Take it after meals.\n", out)
}

func TestOutputFlagValidated(t *testing.T) {
	_, err := runCLI(t, "ask", "hi", "-o", "xml")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown output format")
}

func TestVersion(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	require.Contains(t, out, "rxctl version")
}
