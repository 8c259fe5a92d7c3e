package delivery_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/memo-api/internal/delivery"
)

func TestLocalSinkWritesAndReturnsURL(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "memos")
	sink, err := delivery.NewLocalSink(dir, "https://memo.example.com/")
	require.NoError(t, err)

	link, err := sink.Deliver(context.Background(), delivery.Document{Name: "memo_1700000000000.pdf", Body: []byte("%PDF-1.3")})
	require.NoError(t, err)
	require.Equal(t, "https://memo.example.com/memos/memo_1700000000000.pdf", link)

	data, err := os.ReadFile(filepath.Join(dir, "memo_1700000000000.pdf"))
	require.NoError(t, err)
	require.Equal(t, "%PDF-1.3", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp files must not be left behind")
}

func TestLocalSinkPathOnlyURLWithoutBase(t *testing.T) {
	sink, err := delivery.NewLocalSink(t.TempDir(), "")
	require.NoError(t, err)

	link, err := sink.Deliver(context.Background(), delivery.Document{Name: "memo_1.pdf", Body: []byte("x")})
	require.NoError(t, err)
	require.Equal(t, "/memos/memo_1.pdf", link)
}

func TestLocalSinkRejectsTraversal(t *testing.T) {
	sink, err := delivery.NewLocalSink(t.TempDir(), "")
	require.NoError(t, err)

	for _, name := range []string{"", "..", "../escape.pdf", "a/b.pdf", " memo.pdf"} {
		_, err := sink.Deliver(context.Background(), delivery.Document{Name: name, Body: []byte("x")})
		require.Truef(t, errors.Is(err, delivery.ErrInvalidName), "name %q", name)
	}
}

func TestLocalSinkHonoursCancelledContext(t *testing.T) {
	dir := t.TempDir()
	sink, err := delivery.NewLocalSink(dir, "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = sink.Deliver(ctx, delivery.Document{Name: "memo_1.pdf", Body: []byte("x")})
	require.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestLocalSinkCheck(t *testing.T) {
	dir := t.TempDir()
	sink, err := delivery.NewLocalSink(dir, "")
	require.NoError(t, err)
	require.NoError(t, sink.Check(context.Background()))

	missing := &delivery.LocalSink{Dir: filepath.Join(dir, "gone")}
	require.Error(t, missing.Check(context.Background()))
}

func TestFileServerServesDocumentsOnly(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "memo_1.pdf"), []byte("%PDF"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".memo-123.tmp"), []byte("partial"), 0o644))

	handler := delivery.FileServer(dir)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/memos/memo_1.pdf", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "%PDF", rr.Body.String())

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/memos/", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/memos/.memo-123.tmp", nil))
	require.Equal(t, http.StatusNotFound, rr.Code)
}
