package batch

import (
	"context"
	"encoding/json"
	"time"

	"github.com/romega/certforge/pkg/assets"
	"github.com/romega/certforge/pkg/cache"
	"github.com/romega/certforge/pkg/cert"
	"github.com/romega/certforge/pkg/cert/compose"
	"github.com/romega/certforge/pkg/cert/placeholder"
	"github.com/romega/certforge/pkg/errors"
	"github.com/romega/certforge/pkg/fonts"
	"github.com/romega/certforge/pkg/observability"
)

// Defaults for delivery content and pacing.
const (
	// DefaultSubject is the subject template used when the caller supplies
	// none. An empty recipient title substitutes as "Completion".
	DefaultSubject = "Your Certificate - {{title}}"

	// DefaultMessage is the body template used when the caller supplies none.
	DefaultMessage = "Dear {{name}},\n\nCongratulations! Please find your certificate attached.\n\nBest regards"

	// DefaultDelay paces consecutive submissions so downstream delivery is
	// not flooded.
	DefaultDelay = 100 * time.Millisecond
)

// Submission is one rendered certificate handed to a delivery sink.
// CertificateImage is a base64 PNG data URI.
type Submission struct {
	RecipientEmail   string `json:"recipientEmail"`
	RecipientName    string `json:"recipientName"`
	Subject          string `json:"subject"`
	Message          string `json:"message"`
	CertificateImage string `json:"certificateImage"`
}

// Sink receives rendered certificates. Implementations queue them for
// delivery (queue.StoreSink) or send them directly.
type Sink interface {
	Submit(ctx context.Context, s Submission) error
}

// Outcome records how one recipient fared.
type Outcome struct {
	Index     int
	Recipient cert.Recipient
	Err       error
}

// Result summarizes a completed run.
type Result struct {
	Total    int
	Failed   int
	Outcomes []Outcome
}

// Runner generates certificates for a recipient list against one design.
type Runner struct {
	design  cert.Design
	loader  compose.Loader
	sink    Sink
	fonts   *fonts.Library
	cache   cache.Cache
	events  chan<- Progress
	subject string
	message string
	delay   time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithSubject overrides the delivery subject template.
func WithSubject(tpl string) Option {
	return func(r *Runner) { r.subject = tpl }
}

// WithMessage overrides the delivery message template.
func WithMessage(tpl string) Option {
	return func(r *Runner) { r.message = tpl }
}

// WithDelay sets the pause between consecutive recipients. Zero disables
// pacing.
func WithDelay(d time.Duration) Option {
	return func(r *Runner) { r.delay = d }
}

// WithFonts sets the font library used for rendering.
func WithFonts(lib *fonts.Library) Option {
	return func(r *Runner) { r.fonts = lib }
}

// WithRenderCache caches rendered certificates keyed by design and
// recipient, so re-running an interrupted batch skips completed renders.
func WithRenderCache(c cache.Cache) Option {
	return func(r *Runner) { r.cache = c }
}

// WithEvents sets the channel progress snapshots are sent on. Sends block,
// so the caller must drain the channel until Run returns.
func WithEvents(ch chan<- Progress) Option {
	return func(r *Runner) { r.events = ch }
}

// NewRunner creates a runner for one design. The sink receives every
// successfully rendered certificate.
func NewRunner(design cert.Design, loader compose.Loader, sink Sink, opts ...Option) *Runner {
	r := &Runner{
		design:  design,
		loader:  loader,
		sink:    sink,
		cache:   cache.NewNullCache(),
		subject: DefaultSubject,
		message: DefaultMessage,
		delay:   DefaultDelay,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run generates one certificate per recipient, in order, and submits each
// to the sink.
//
// A recipient that fails to render or submit is recorded in the result and
// the run continues; the returned error is non-nil only for run-fatal
// conditions: an invalid design, an empty recipient list, an asset that
// cannot be loaded, or context cancellation. On cancellation the partial
// result is still returned.
func (r *Runner) Run(ctx context.Context, recipients []cert.Recipient) (*Result, error) {
	total := len(recipients)
	start := time.Now()
	observability.Batch().OnRunStart(ctx, total)

	res, err := r.run(ctx, recipients)
	failed := 0
	if res != nil {
		failed = res.Failed
	}
	observability.Batch().OnRunComplete(ctx, total, failed, time.Since(start), err)
	return res, err
}

func (r *Runner) run(ctx context.Context, recipients []cert.Recipient) (*Result, error) {
	total := len(recipients)
	r.emit(Progress{Total: total, Status: StatusIdle})

	if total == 0 {
		err := errors.New(errors.ErrCodeInvalidInput, "no recipients to process")
		r.emit(Progress{Status: StatusError, Err: err})
		return nil, err
	}
	if err := r.design.Validate(); err != nil {
		r.emit(Progress{Total: total, Status: StatusError, Err: err})
		return nil, err
	}

	// Load every asset before the first render so a broken reference fails
	// the run up front instead of midway through.
	loaded, err := compose.Preload(ctx, r.loader, r.design)
	if err != nil {
		r.emit(Progress{Total: total, Status: StatusError, Err: err})
		return nil, err
	}

	renderer, err := compose.NewRenderer(r.design.Template, r.fonts)
	if err != nil {
		r.emit(Progress{Total: total, Status: StatusError, Err: err})
		return nil, err
	}

	designHash := r.designHash()
	result := &Result{Total: total}

	for i, recipient := range recipients {
		if err := ctx.Err(); err != nil {
			r.emit(Progress{Total: total, Current: i, Status: StatusError, Err: err})
			return result, err
		}

		r.emit(Progress{Total: total, Current: i + 1, Status: StatusProcessing, CurrentName: recipient.Name})
		observability.Batch().OnItemStart(ctx, i, recipient.Name)

		itemStart := time.Now()
		err := r.processOne(ctx, renderer, loaded, designHash, recipient)
		observability.Batch().OnItemComplete(ctx, i, recipient.Name, time.Since(itemStart), err)

		result.Outcomes = append(result.Outcomes, Outcome{Index: i, Recipient: recipient, Err: err})
		if err != nil {
			result.Failed++
		}

		if r.delay > 0 && i < total-1 {
			select {
			case <-ctx.Done():
			case <-time.After(r.delay):
			}
		}
	}

	r.emit(Progress{Total: total, Current: total, Status: StatusComplete})
	return result, nil
}

// processOne renders one recipient's certificate and submits it.
func (r *Runner) processOne(ctx context.Context, renderer *compose.Renderer, loaded *compose.Assets, designHash string, recipient cert.Recipient) error {
	png, err := r.renderCached(ctx, renderer, loaded, designHash, recipient)
	if err != nil {
		return err
	}

	return r.sink.Submit(ctx, Submission{
		RecipientEmail:   recipient.Email,
		RecipientName:    recipient.Name,
		Subject:          placeholder.Substitute(r.subject, withTitleFallback(recipient)),
		Message:          placeholder.Substitute(r.message, recipient),
		CertificateImage: assets.EncodePNGDataURI(png),
	})
}

// renderCached returns the recipient's certificate PNG, consulting the
// render cache first.
func (r *Runner) renderCached(ctx context.Context, renderer *compose.Renderer, loaded *compose.Assets, designHash string, recipient cert.Recipient) ([]byte, error) {
	recipientJSON, _ := json.Marshal(recipient)
	key := cache.RenderKey(designHash, cache.Hash(recipientJSON))

	if data, hit, err := r.cache.Get(ctx, key); err == nil && hit {
		observability.Cache().OnCacheHit(ctx, "render")
		return data, nil
	}
	observability.Cache().OnCacheMiss(ctx, "render")

	png, err := renderer.Render(ctx, loaded, r.design.TextElements, &recipient)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Set(ctx, key, png, cache.TTLRender); err == nil {
		observability.Cache().OnCacheSet(ctx, "render", len(png))
	}
	return png, nil
}

func (r *Runner) designHash() string {
	data, _ := json.Marshal(r.design)
	return cache.Hash(data)
}

func (r *Runner) emit(p Progress) {
	if r.events != nil {
		r.events <- p
	}
}

// withTitleFallback substitutes "Completion" for an empty title so the
// default subject never reads "Your Certificate - ".
func withTitleFallback(r cert.Recipient) cert.Recipient {
	if r.Title == "" {
		r.Title = "Completion"
	}
	return r
}
