package memo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/memo-api/internal/common"
	"github.com/noah-isme/memo-api/internal/delivery"
	"github.com/noah-isme/memo-api/internal/obs"
)

const (
	nameClaimTTL    = time.Minute
	maxNameAttempts = 5
	fileNamePrefix  = "memo_"
	fileNameSuffix  = ".pdf"
)

// DocumentRenderer draws an invoice into w. Renderer is the PDF implementation.
type DocumentRenderer interface {
	Render(w io.Writer, inv Invoice, totals Totals) error
}

// NameClaimer reserves document names across service instances.
type NameClaimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (release func(context.Context), ok bool, err error)
}

// Service turns a raw items query into a delivered PDF memo.
type Service struct {
	renderer DocumentRenderer
	sink     delivery.Sink
	names    NameClaimer
	maxItems int
	now      func() time.Time

	// lastStamp keeps file names unique within this process.
	lastStamp atomic.Int64
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	// Renderer defaults to a zero Renderer.
	Renderer DocumentRenderer
	Sink     delivery.Sink
	// MaxItems caps the number of records per request; zero disables the cap.
	MaxItems int
	// Now defaults to time.Now.
	Now func() time.Time
	// Names is optional; without it names are only unique per process.
	Names NameClaimer
}

// Request carries the raw query parameters of one memo request.
type Request struct {
	Items string
	Paid  string
	// BaseURL resolves path-only sink URLs, e.g. "https://host:5000".
	BaseURL string
}

// Result describes a delivered memo.
type Result struct {
	URL      string
	FileName string
	Totals   Totals
	Bytes    int
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Sink == nil {
		return nil, errors.New("memo: delivery sink required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	renderer := cfg.Renderer
	if renderer == nil {
		renderer = Renderer{}
	}
	return &Service{renderer: renderer, sink: cfg.Sink, names: cfg.Names, maxItems: cfg.MaxItems, now: now}, nil
}

// FileName returns the suggested document name for a memo generated at t.
func FileName(t time.Time) string {
	return fileNameAt(t.UnixMilli())
}

func fileNameAt(millis int64) string {
	return fmt.Sprintf("%s%d%s", fileNamePrefix, millis, fileNameSuffix)
}

// Generate parses, computes, renders and delivers one memo. Stages run in
// order and the first failure aborts the request; the sink is only called
// once the document is fully rendered.
func (s *Service) Generate(ctx context.Context, req Request) (res Result, err error) {
	ctx, span := otel.Tracer("memo.Service").Start(ctx, "MemoService.Generate")
	outcome := "ok"
	defer func() {
		span.SetAttributes(attribute.String("memo.result", outcome))
		if err != nil {
			span.RecordError(err)
		}
		span.End()
		if obs.MemoRenderTotal != nil {
			obs.MemoRenderTotal.WithLabelValues(outcome).Inc()
		}
	}()

	inv, err := s.parse(req)
	if err != nil {
		outcome = "rejected"
		return Result{}, err
	}
	totals := Compute(inv.Items, inv.Paid)
	if err := CheckTotals(req.Items, totals); err != nil {
		outcome = "rejected"
		return Result{}, rejected(err)
	}
	span.SetAttributes(
		attribute.Int("memo.items", len(inv.Items)),
		attribute.Bool("memo.paid_given", inv.PaidGiven),
	)

	doc, err := s.render(ctx, inv, totals)
	if err != nil {
		outcome = "render_error"
		return Result{}, err
	}

	link, err := s.sink.Deliver(ctx, doc)
	if err != nil {
		outcome = "delivery_error"
		zerolog.Ctx(ctx).Error().Err(err).Str("sink", s.sink.Name()).Str("file", doc.Name).Msg("memo_delivery_failed")
		return Result{}, deliveryFailure(err)
	}
	if req.BaseURL != "" {
		link = common.ResolveURL(req.BaseURL, link)
	}

	zerolog.Ctx(ctx).Info().
		Str("sink", s.sink.Name()).
		Str("file", doc.Name).
		Int("items", len(inv.Items)).
		Int("bytes", len(doc.Body)).
		Msg("memo_generated")

	return Result{URL: link, FileName: doc.Name, Totals: totals, Bytes: len(doc.Body)}, nil
}

func (s *Service) parse(req Request) (Invoice, error) {
	if err := CheckItemLimit(req.Items, s.maxItems); err != nil {
		return Invoice{}, rejected(err)
	}
	items, err := ParseItems(req.Items)
	if err != nil {
		return Invoice{}, rejected(err)
	}
	paid, given, err := ParsePaid(req.Paid)
	if err != nil {
		return Invoice{}, rejected(err)
	}
	return Invoice{Items: items, Paid: paid, PaidGiven: given, GeneratedAt: s.now()}, nil
}

func (s *Service) render(ctx context.Context, inv Invoice, totals Totals) (delivery.Document, error) {
	_, span := otel.Tracer("memo.Service").Start(ctx, "MemoService.Render", trace.WithAttributes(
		attribute.Int("memo.items", len(inv.Items)),
	))
	defer span.End()

	start := time.Now()
	var buf bytes.Buffer
	if err := s.renderer.Render(&buf, inv, totals); err != nil {
		span.RecordError(err)
		return delivery.Document{}, renderFailure(err)
	}
	if obs.MemoRenderDuration != nil {
		obs.MemoRenderDuration.Observe(obs.DurationMillis(time.Since(start)))
	}
	if obs.MemoDocumentBytes != nil {
		obs.MemoDocumentBytes.Observe(float64(buf.Len()))
	}
	span.SetAttributes(attribute.Int("memo.bytes", buf.Len()))
	return delivery.Document{
		Name:        s.fileName(ctx, inv.GeneratedAt),
		ContentType: delivery.ContentTypePDF,
		Body:        buf.Bytes(),
	}, nil
}

func rejected(err error) error {
	if appErr := clientError(err); appErr != nil {
		return appErr
	}
	return err
}

// fileName picks memo_<millis>.pdf for at, moving forward one millisecond at
// a time when the name was already used by this process or claimed by
// another instance.
func (s *Service) fileName(ctx context.Context, at time.Time) string {
	stamp := s.nextStamp(at.UnixMilli())
	if s.names == nil {
		return fileNameAt(stamp)
	}
	for attempt := 0; attempt < maxNameAttempts; attempt++ {
		name := fileNameAt(stamp)
		_, ok, err := s.names.Claim(ctx, name, nameClaimTTL)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("file", name).Msg("memo_name_claim_failed")
			return name
		}
		if ok {
			return name
		}
		stamp = s.nextStamp(stamp + 1)
	}
	return fileNameAt(stamp)
}

func (s *Service) nextStamp(candidate int64) int64 {
	for {
		last := s.lastStamp.Load()
		next := candidate
		if next <= last {
			next = last + 1
		}
		if s.lastStamp.CompareAndSwap(last, next) {
			return next
		}
	}
}
