package delivery

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/memo-api/internal/config"
	"github.com/noah-isme/memo-api/internal/resilience"
)

// New builds the sink named by cfg.DeliverySink, wrapped with instrumentation.
func New(cfg *config.Config, logger zerolog.Logger) (Sink, error) {
	if cfg == nil {
		return nil, fmt.Errorf("delivery: config required")
	}
	var (
		sink Sink
		err  error
	)
	switch cfg.DeliverySink {
	case config.SinkLocal:
		sink, err = NewLocalSink(cfg.MemoDir, cfg.PublicBaseURL)
	case config.SinkGofile:
		sink = &GofileSink{
			Client:    NewUpstreamClient(cfg, config.SinkGofile, logger),
			UploadURL: cfg.GofileUploadURL,
			Token:     cfg.GofileToken,
		}
	case config.SinkTransferSh:
		sink = &TransferShSink{
			Client:  NewUpstreamClient(cfg, config.SinkTransferSh, logger),
			BaseURL: cfg.TransferShURL,
			MaxDays: cfg.TransferShMaxDays,
		}
	case config.SinkS3:
		sink, err = NewS3Sink(S3Options{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			Prefix:          cfg.S3Prefix,
			PublicBaseURL:   cfg.S3PublicBaseURL,
			ForcePathStyle:  cfg.S3ForcePathStyle,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			HTTPClient:      s3HTTPClient(cfg),
			Breaker:         newBreaker(cfg, config.SinkS3, logger),
		})
	default:
		return nil, fmt.Errorf("delivery: unknown sink %q", cfg.DeliverySink)
	}
	if err != nil {
		return nil, err
	}
	logger.Info().Str("sink", sink.Name()).Msg("delivery_sink_selected")
	return Instrument(sink), nil
}

// NewUpstreamClient returns a single-attempt client guarded by a breaker
// labelled with target.
func NewUpstreamClient(cfg *config.Config, target string, logger zerolog.Logger) resilience.HTTPClient {
	return resilience.HTTPClient{
		Client:  tracedHTTPClient(cfg),
		Breaker: newBreaker(cfg, target, logger),
		Timeout: cfg.UploadTimeout,
		Target:  target,
		Logger:  &logger,
	}
}

func newBreaker(cfg *config.Config, target string, logger zerolog.Logger) *resilience.Breaker {
	return resilience.NewBreaker(cfg.CircuitMinRequests, cfg.CircuitFailureRatio, cfg.CircuitOpenFor).
		WithTarget(target).
		WithLogger(logger)
}

// s3HTTPClient keeps a concrete *http.Transport so the SDK can apply
// AWS_CA_BUNDLE and client TLS settings; S3 calls are traced by SDK handlers.
func s3HTTPClient(cfg *config.Config) *http.Client {
	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if base, ok := http.DefaultTransport.(*http.Transport); ok {
		transport = base.Clone()
	}
	return &http.Client{Timeout: cfg.UploadTimeout, Transport: transport}
}

func tracedHTTPClient(cfg *config.Config) *http.Client {
	return &http.Client{
		Timeout:   cfg.UploadTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}
