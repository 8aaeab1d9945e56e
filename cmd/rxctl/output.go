package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"rx-reader/client"
	"rx-reader/internal/domain"
)

const (
	formatHuman = "human"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func encode(w io.Writer, format string, v any) error {
	switch format {
	case formatJSON:
		out, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(out))
		return err
	case formatYAML:
		out, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(w, string(out))
		return err
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func renderAnalysis(w io.Writer, format string, r client.AnalyzeResult) error {
	if format != formatHuman {
		return encode(w, format, r)
	}
	yellow := color.New(color.FgYellow, color.Bold)
	cyan := color.New(color.FgCyan, color.Bold)
	red := color.New(color.FgRed)

	fmt.Fprintln(w)
	// unreadable wins over whatever the list holds
	if r.UnreadableImage {
		yellow.Fprintln(w, "IMAGE COULD NOT BE READ")
		if r.AdditionalInfo != "" {
			fmt.Fprintf(w, "   %s\n", r.AdditionalInfo)
		}
		fmt.Fprintln(w, "   Tips: use good lighting, keep the page flat and the text in focus.")
		return nil
	}

	cyan.Fprintf(w, "MEDICATIONS FOUND (%d):\n", len(r.Medications))
	for i, m := range r.Medications {
		fmt.Fprintf(w, "   %d. %s", i+1, m.Name)
		if m.Dosage != "" {
			fmt.Fprintf(w, " %s", m.Dosage)
		}
		fmt.Fprintln(w)
		if m.Instructions != "" {
			fmt.Fprintf(w, "      Instructions: %s\n", m.Instructions)
		}
		if m.Warning != "" {
			red.Fprintf(w, "      %s\n", m.Warning)
		}
		if len(m.Interactions) > 0 {
			fmt.Fprintf(w, "      Interactions: %s\n", strings.Join(m.Interactions, ", "))
		}
		if m.PregnancyRisk != "" {
			fmt.Fprintf(w, "      Pregnancy: %s\n", m.PregnancyRisk)
		}
		if m.RenalRisk != "" {
			fmt.Fprintf(w, "      Renal: %s\n", m.RenalRisk)
		}
	}
	if r.AdditionalInfo != "" {
		fmt.Fprintf(w, "\n   Notes: %s\n", r.AdditionalInfo)
	}
	if r.MessageID != 0 {
		fmt.Fprintf(w, "\n   Message id: %d (rxctl feedback %d --accurate)\n", r.MessageID, r.MessageID)
	}
	return nil
}

func renderAnswer(w io.Writer, format, answer string) error {
	if format != formatHuman {
		return encode(w, format, map[string]string{"response": answer})
	}
	_, err := fmt.Fprintln(w, answer)
	return err
}

func renderFeedback(w io.Writer, format string, fb domain.Feedback) error {
	if format != formatHuman {
		return encode(w, format, fb)
	}
	green := color.New(color.FgGreen)
	_, err := green.Fprintf(w, "✓ Feedback %d recorded for message %d\n", fb.ID, fb.MessageID)
	return err
}

type errorView struct {
	Type             string `json:"type" yaml:"type"`
	client.ErrorCard `yaml:",inline"`
}

func renderError(w io.Writer, format string, e *client.Error) error {
	card := e.Card()
	if format != formatHuman {
		return encode(w, format, errorView{Type: string(e.Kind), ErrorCard: card})
	}
	red := color.New(color.FgRed, color.Bold)
	fmt.Fprintln(w)
	red.Fprintf(w, "✗ %s\n", card.Title)
	fmt.Fprintf(w, "   %s\n", card.Message)
	if card.Recommendation != "" {
		fmt.Fprintf(w, "   Recommendation: %s\n", card.Recommendation)
	}
	return nil
}
