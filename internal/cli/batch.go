package cli

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/romega/certforge/internal/config"
	"github.com/romega/certforge/pkg/assets"
	"github.com/romega/certforge/pkg/batch"
	"github.com/romega/certforge/pkg/cert"
	"github.com/romega/certforge/pkg/cert/placeholder"
	"github.com/romega/certforge/pkg/fonts"
	"github.com/romega/certforge/pkg/queue"
)

// batchOpts holds the command-line flags for the batch command.
type batchOpts struct {
	recipients string        // recipient list file (required)
	outDir     string        // write PNGs to this directory instead of queueing
	subject    string        // email subject template
	message    string        // email message template
	delay      time.Duration // pause between recipients
	validate   bool          // pre-flight placeholder check before rendering
	plain      bool          // log progress lines instead of the TUI
	example    bool          // print an example recipient file and exit
}

// newBatchCmd creates the batch command: render one certificate per
// recipient and queue each result for email delivery.
func newBatchCmd() *cobra.Command {
	opts := batchOpts{
		subject: batch.DefaultSubject,
		message: batch.DefaultMessage,
		delay:   batch.DefaultDelay,
	}

	cmd := &cobra.Command{
		Use:   "batch [design.json]",
		Short: "Generate certificates for a recipient list and queue them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.example {
				fmt.Println(exampleRecipients)
				return nil
			}
			if len(args) != 1 {
				return fmt.Errorf("design file required (or use --example)")
			}
			if opts.recipients == "" {
				return fmt.Errorf("--recipients is required")
			}
			return runBatch(cmd.Context(), args[0], &opts)
		},
	}

	cmd.Flags().StringVarP(&opts.recipients, "recipients", "r", "", "recipient list file (JSON)")
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", "", "write PNG files to this directory instead of queueing")
	cmd.Flags().StringVar(&opts.subject, "subject", opts.subject, "email subject template")
	cmd.Flags().StringVar(&opts.message, "message", opts.message, "email message template")
	cmd.Flags().DurationVar(&opts.delay, "delay", opts.delay, "pause between recipients")
	cmd.Flags().BoolVar(&opts.validate, "validate", false, "check every recipient fills every placeholder before rendering")
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "log progress instead of showing the progress UI")
	cmd.Flags().BoolVar(&opts.example, "example", false, "print an example recipient file and exit")

	return cmd
}

func runBatch(ctx context.Context, designPath string, opts *batchOpts) error {
	logger := loggerFromContext(ctx)

	design, err := cert.LoadDesign(designPath)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(opts.recipients)
	if err != nil {
		return fmt.Errorf("read recipient file: %w", err)
	}
	recipients, err := batch.ParseRecipients(data)
	if err != nil {
		return err
	}
	logger.Debug("parsed recipients", "count", len(recipients))

	if opts.validate {
		if err := validatePlaceholders(design, recipients, opts); err != nil {
			return err
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	sink, closeSink, err := buildSink(ctx, cfg, opts.outDir)
	if err != nil {
		return err
	}
	defer closeSink()

	assetCache, err := cfg.OpenCache(ctx)
	if err != nil {
		return err
	}
	defer assetCache.Close()

	events := make(chan batch.Progress, 8)
	runner := batch.NewRunner(design, assets.NewLoader(assets.WithCache(assetCache)), sink,
		batch.WithSubject(opts.subject),
		batch.WithMessage(opts.message),
		batch.WithDelay(opts.delay),
		batch.WithFonts(fonts.NewLibrary(fonts.WithDirs(cfg.Fonts.Dirs...))),
		batch.WithRenderCache(assetCache),
		batch.WithEvents(events),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type runResult struct {
		result *batch.Result
		err    error
	}
	done := make(chan runResult, 1)
	go func() {
		result, err := runner.Run(runCtx, recipients)
		close(events)
		done <- runResult{result, err}
	}()

	if opts.plain {
		for p := range events {
			if p.Status == batch.StatusProcessing {
				logger.Info("rendering", "recipient", p.CurrentName, "progress", fmt.Sprintf("%d/%d", p.Current, p.Total))
			}
		}
	} else {
		model, err := tea.NewProgram(NewBatchModel(events)).Run()
		if err != nil {
			cancel()
			<-done
			return err
		}
		if m, ok := model.(BatchModel); ok && m.Aborted() {
			cancel()
		}
		// Keep draining in case the TUI quit before the runner finished.
		go func() {
			for range events {
			}
		}()
	}

	run := <-done
	return reportBatch(run.result, run.err, opts)
}

// buildSink picks the delivery sink: the configured queue store, or a
// directory of PNG files when --out is set.
func buildSink(ctx context.Context, cfg config.Config, outDir string) (batch.Sink, func(), error) {
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create output directory: %w", err)
		}
		return &fileSink{dir: outDir}, func() {}, nil
	}

	store, err := cfg.OpenStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	return queue.NewStoreSink(store), func() { store.Close() }, nil
}

// reportBatch prints the final summary for a batch run.
func reportBatch(result *batch.Result, err error, opts *batchOpts) error {
	printNewline()
	if err != nil {
		printError("Batch failed: %s", err)
		return err
	}

	ok := result.Total - result.Failed
	if opts.outDir != "" {
		printSuccess("Wrote %d certificates", ok)
		printFile(opts.outDir)
	} else {
		printSuccess("Queued %d certificates for delivery", ok)
		printNextStep("Send them", "certforge queue send")
	}

	if result.Failed > 0 {
		printWarning("%d recipients failed", result.Failed)
		for _, o := range result.Outcomes {
			if o.Err != nil {
				printDetail("%s <%s>: %s", o.Recipient.Name, o.Recipient.Email, o.Err)
			}
		}
	}
	return nil
}

// validatePlaceholders runs the opt-in pre-flight check: every placeholder
// used by the design, subject, or message must be fillable by every
// recipient.
func validatePlaceholders(design cert.Design, recipients []cert.Recipient, opts *batchOpts) error {
	required := placeholder.ExtractFromElements(design.TextElements)
	for _, tpl := range []string{opts.subject, opts.message} {
		for _, name := range placeholder.Extract(tpl) {
			if !containsFold(required, name) {
				required = append(required, name)
			}
		}
	}

	// The default subject tolerates a missing title via its fallback.
	if opts.subject == batch.DefaultSubject {
		required = removeFold(required, "title")
	}

	result := placeholder.ValidateRecipients(recipients, required)
	if !result.Valid {
		for _, msg := range result.Errors {
			printDetail("%s", msg)
		}
		return fmt.Errorf("placeholder validation failed for %d fields", len(result.Errors))
	}
	return nil
}

func containsFold(names []string, name string) bool {
	for _, n := range names {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

func removeFold(names []string, name string) []string {
	out := names[:0]
	for _, n := range names {
		if !strings.EqualFold(n, name) {
			out = append(out, n)
		}
	}
	return out
}

// fileSink writes submissions as PNG files named after the recipient.
type fileSink struct {
	dir string
	n   int
}

func (s *fileSink) Submit(_ context.Context, sub batch.Submission) error {
	png, err := decodePNGDataURI(sub.CertificateImage)
	if err != nil {
		return err
	}

	s.n++
	base := sanitizeFilename(sub.RecipientName)
	if base == "" {
		base = fmt.Sprintf("certificate-%d", s.n)
	}
	return os.WriteFile(filepath.Join(s.dir, base+".png"), png, 0o644)
}

// decodePNGDataURI reverses assets.EncodePNGDataURI.
func decodePNGDataURI(uri string) ([]byte, error) {
	payload, ok := strings.CutPrefix(uri, "data:image/png;base64,")
	if !ok {
		return nil, fmt.Errorf("unexpected certificate image encoding")
	}
	return base64.StdEncoding.DecodeString(payload)
}

// exampleRecipients is the sample printed by --example.
const exampleRecipients = `{
  "recipients": [
    {
      "name": "Ada Lovelace",
      "email": "ada@example.com",
      "title": "Advanced Go Workshop",
      "date": "2026-08-28"
    },
    {
      "name": "Grace Hopper",
      "email": "grace@example.com",
      "title": "Advanced Go Workshop",
      "date": "2026-08-28",
      "customFields": { "company": "Navy" }
    }
  ]
}`
