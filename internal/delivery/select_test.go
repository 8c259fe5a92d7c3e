package delivery_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/memo-api/internal/config"
	"github.com/noah-isme/memo-api/internal/delivery"
	"github.com/noah-isme/memo-api/internal/obs"
)

func baseConfig(sink string) *config.Config {
	return &config.Config{
		DeliverySink:        sink,
		GofileUploadURL:     "https://upload.gofile.io",
		TransferShURL:       "https://transfer.sh",
		S3Bucket:            "memos",
		S3Region:            "us-east-1",
		UploadTimeout:       time.Second,
		CircuitMinRequests:  5,
		CircuitFailureRatio: 0.5,
		CircuitOpenFor:      time.Second,
	}
}

func TestNewSelectsConfiguredSink(t *testing.T) {
	cases := map[string]string{
		config.SinkGofile:     "gofile",
		config.SinkTransferSh: "transfersh",
		config.SinkS3:         "s3",
	}
	for name, want := range cases {
		sink, err := delivery.New(baseConfig(name), zerolog.Nop())
		require.NoError(t, err, name)
		require.Equal(t, want, sink.Name())
		require.NoError(t, sink.Check(context.Background()))
	}
}

func TestNewLocalCreatesDirectory(t *testing.T) {
	cfg := baseConfig(config.SinkLocal)
	cfg.MemoDir = filepath.Join(t.TempDir(), "nested", "memos")

	sink, err := delivery.New(cfg, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, "local", sink.Name())
	require.NoError(t, sink.Check(context.Background()))
}

func TestNewRejectsUnknownSink(t *testing.T) {
	_, err := delivery.New(baseConfig("ftp"), zerolog.Nop())
	require.Error(t, err)
}

func TestInstrumentRecordsDeliveryMetrics(t *testing.T) {
	obs.MustRegisterDomainMetrics("memo", prometheus.NewRegistry())

	local, err := delivery.NewLocalSink(t.TempDir(), "")
	require.NoError(t, err)
	sink := delivery.Instrument(local)
	require.Equal(t, sink, delivery.Instrument(sink))

	okBefore := testutil.ToFloat64(obs.MemoDeliveryTotal.WithLabelValues("local", "ok"))
	errBefore := testutil.ToFloat64(obs.MemoDeliveryTotal.WithLabelValues("local", "error"))

	_, err = sink.Deliver(context.Background(), delivery.Document{Name: "memo_1.pdf", Body: []byte("x")})
	require.NoError(t, err)
	_, err = sink.Deliver(context.Background(), delivery.Document{Name: "../bad.pdf", Body: []byte("x")})
	require.Error(t, err)

	require.Equal(t, okBefore+1, testutil.ToFloat64(obs.MemoDeliveryTotal.WithLabelValues("local", "ok")))
	require.Equal(t, errBefore+1, testutil.ToFloat64(obs.MemoDeliveryTotal.WithLabelValues("local", "error")))
}
