package delivery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/memo-api/internal/resilience"
)

// S3Uploader is the subset of s3manager.Uploader used by S3Sink.
type S3Uploader interface {
	UploadWithContext(ctx aws.Context, input *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error)
}

// S3Options configures NewS3Sink.
type S3Options struct {
	Bucket         string
	Region         string
	Endpoint       string
	Prefix         string
	PublicBaseURL  string
	ForcePathStyle bool
	// Static credentials; when empty the SDK default chain is used.
	AccessKeyID     string
	SecretAccessKey string
	// HTTPClient must use a *http.Transport (or nil) when AWS_CA_BUNDLE is set.
	HTTPClient *http.Client
	Breaker    *resilience.Breaker
}

// S3Sink uploads documents into an S3 compatible bucket.
type S3Sink struct {
	Uploader      S3Uploader
	Bucket        string
	Prefix        string
	PublicBaseURL string
	Breaker       *resilience.Breaker
}

// NewS3Sink builds a session and uploader from opts. SDK retries are
// disabled; a failed upload fails the request.
func NewS3Sink(opts S3Options) (*S3Sink, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, errors.New("s3: bucket required")
	}
	awsCfg := &aws.Config{
		Region:           aws.String(opts.Region),
		S3ForcePathStyle: aws.Bool(opts.ForcePathStyle),
		MaxRetries:       aws.Int(0),
	}
	if opts.Endpoint != "" {
		awsCfg.Endpoint = aws.String(opts.Endpoint)
	}
	if opts.HTTPClient != nil {
		awsCfg.HTTPClient = opts.HTTPClient
	}
	if opts.AccessKeyID != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(opts.AccessKeyID, opts.SecretAccessKey, "")
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("s3: new session: %w", err)
	}
	traceRequests(&sess.Handlers)
	return &S3Sink{
		Uploader:      s3manager.NewUploader(sess),
		Bucket:        opts.Bucket,
		Prefix:        strings.Trim(opts.Prefix, "/"),
		PublicBaseURL: strings.TrimRight(opts.PublicBaseURL, "/"),
		Breaker:       opts.Breaker,
	}, nil
}

func (s *S3Sink) Name() string { return "s3" }

// Deliver uploads the document under Prefix and returns its public URL.
func (s *S3Sink) Deliver(ctx context.Context, doc Document) (string, error) {
	if err := validateName(doc.Name); err != nil {
		return "", err
	}
	if s.Uploader == nil {
		return "", errors.New("s3: uploader not configured")
	}
	if s.Breaker != nil && !s.Breaker.Allow(ctx) {
		return "", s.Breaker.Rejection()
	}
	key := s.key(doc.Name)
	out, err := s.Uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(doc.Body),
		ContentType: aws.String(contentType(doc)),
	})
	if s.Breaker != nil {
		s.Breaker.Report(ctx, err == nil)
	}
	if err != nil {
		return "", fmt.Errorf("s3: upload %s: %w", key, err)
	}
	if s.PublicBaseURL != "" {
		return s.PublicBaseURL + "/" + key, nil
	}
	if out == nil || out.Location == "" {
		return "", fmt.Errorf("s3: upload %s returned no location", key)
	}
	return out.Location, nil
}

// Check reports whether the bucket is configured and the breaker is closed.
func (s *S3Sink) Check(context.Context) error {
	if strings.TrimSpace(s.Bucket) == "" {
		return errors.New("s3: bucket not configured")
	}
	if s.Breaker != nil && s.Breaker.State() == resilience.Open {
		return s.Breaker.Rejection()
	}
	return nil
}

func (s *S3Sink) key(name string) string {
	if s.Prefix == "" {
		return name
	}
	return path.Join(s.Prefix, name)
}

type s3SpanKey struct{}

// traceRequests opens a client span per SDK request. Handlers are copied into
// clients at construction, so this must run before the uploader is built.
func traceRequests(handlers *request.Handlers) {
	handlers.Build.PushFrontNamed(request.NamedHandler{Name: "memo.otel.start", Fn: startRequestSpan})
	handlers.Complete.PushBackNamed(request.NamedHandler{Name: "memo.otel.end", Fn: endRequestSpan})
}

func startRequestSpan(r *request.Request) {
	ctx, span := otel.Tracer("delivery.S3Sink").Start(r.Context(), "S3."+r.Operation.Name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rpc.system", "aws-api"),
			attribute.String("rpc.service", r.ClientInfo.ServiceName),
			attribute.String("rpc.method", r.Operation.Name),
		),
	)
	r.SetContext(context.WithValue(ctx, s3SpanKey{}, span))
}

func endRequestSpan(r *request.Request) {
	span, ok := r.Context().Value(s3SpanKey{}).(trace.Span)
	if !ok {
		return
	}
	if r.HTTPResponse != nil && r.HTTPResponse.StatusCode != 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", r.HTTPResponse.StatusCode))
	}
	if r.Error != nil {
		span.RecordError(r.Error)
		span.SetStatus(codes.Error, r.Error.Error())
	}
	span.End()
}
