package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"rx-reader/client"
	"rx-reader/internal/domain"
)

var mimeByExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".heic": "image/heic",
	".pdf":  "application/pdf",
}

func mimeFromPath(path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	mime, ok := mimeByExt[ext]
	if !ok {
		return "", fmt.Errorf("unsupported file type %q (use jpg, png, webp, heic or pdf)", ext)
	}
	return mime, nil
}

func readImage(path string) (string, error) {
	mime, err := mimeFromPath(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return domain.Image{MIMEType: mime, Data: data}.DataURL(), nil
}

// withSpinner shows progress on stderr for human output only.
func withSpinner[T any](opts *rootOptions, cmd *cobra.Command, suffix string, fn func() (T, error)) (T, error) {
	if opts.output != formatHuman {
		return fn()
	}
	s := spinner.New(spinner.CharSets[11], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
	s.Suffix = " " + suffix
	s.Start()
	defer s.Stop()
	return fn()
}

// reportError renders classified failures as an error card and keeps the
// exit status non-zero.
func reportError(opts *rootOptions, cmd *cobra.Command, err error) error {
	var ce *client.Error
	if !errors.As(err, &ce) {
		return err
	}
	if rerr := renderError(cmd.OutOrStdout(), opts.output, ce); rerr != nil {
		return rerr
	}
	return fmt.Errorf("request failed: %s", ce.Kind)
}

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze FILE",
		Short: "Upload a prescription image and list the medications found",
		Long: `Upload a prescription photo or PDF for analysis.

Examples:
  rxctl analyze prescription.jpg
  rxctl analyze scan.pdf -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validateOutput(); err != nil {
				return err
			}
			dataURL, err := readImage(args[0])
			if err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			result, err := withSpinner(opts, cmd, "Analyzing prescription...", func() (client.AnalyzeResult, error) {
				return c.AnalyzeImage(cmd.Context(), dataURL)
			})
			if err != nil {
				return reportError(opts, cmd, err)
			}
			return renderAnalysis(cmd.OutOrStdout(), opts.output, result)
		},
	}
}

func newAskCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ask QUESTION",
		Short: "Ask a follow-up question about medications",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validateOutput(); err != nil {
				return err
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			question := strings.Join(args, " ")
			answer, err := withSpinner(opts, cmd, "Thinking...", func() (string, error) {
				return c.SendMessage(cmd.Context(), question)
			})
			if err != nil {
				return reportError(opts, cmd, err)
			}
			return renderAnswer(cmd.OutOrStdout(), opts.output, answer)
		},
	}
}

func newFeedbackCmd(opts *rootOptions) *cobra.Command {
	var accurate bool
	cmd := &cobra.Command{
		Use:   "feedback MESSAGE_ID",
		Short: "Mark an analysis as accurate or inaccurate",
		Long: `Record whether an analysis was accurate. MESSAGE_ID is the messageId
printed by "rxctl analyze".

Examples:
  rxctl feedback 12 --accurate
  rxctl feedback 12 --accurate=false`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validateOutput(); err != nil {
				return err
			}
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid message id %q", args[0])
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			fb, err := c.SubmitFeedback(cmd.Context(), id, accurate)
			if err != nil {
				return reportError(opts, cmd, err)
			}
			return renderFeedback(cmd.OutOrStdout(), opts.output, fb)
		},
	}
	cmd.Flags().BoolVar(&accurate, "accurate", false, "Whether the analysis was accurate")
	return cmd
}
