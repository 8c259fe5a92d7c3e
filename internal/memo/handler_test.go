package memo_test

import (
	"crypto/tls"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/memo-api/internal/memo"
)

func TestHandlerGenerate(t *testing.T) {
	sink := &recordingSink{}
	handler := memo.NewHandler(memo.HandlerConfig{Service: newService(t, sink, 0)})

	req := httptest.NewRequest(http.MethodGet, "/api/memo?items=Pen:2:10,Book:1:50&paid=60", nil)
	req.Host = "memo.local:5000"
	req.TLS = &tls.ConnectionState{}
	rr := httptest.NewRecorder()
	handler.Generate(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	var body struct {
		PDFURL   string `json:"pdfUrl"`
		FileName string `json:"fileName"`
		Totals   struct {
			Lines      []float64 `json:"lines"`
			GrandTotal float64   `json:"grandTotal"`
			Paid       float64   `json:"paid"`
			Due        float64   `json:"due"`
		} `json:"totals"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "https://memo.local:5000/memos/memo_1709647620000.pdf", body.PDFURL)
	require.Equal(t, "memo_1709647620000.pdf", body.FileName)
	require.Equal(t, []float64{20, 50}, body.Totals.Lines)
	require.InDelta(t, 70.0, body.Totals.GrandTotal, 1e-9)
	require.InDelta(t, 10.0, body.Totals.Due, 1e-9)
}

func TestHandlerMissingItems(t *testing.T) {
	sink := &recordingSink{}
	handler := memo.NewHandler(memo.HandlerConfig{Service: newService(t, sink, 0)})

	rr := httptest.NewRecorder()
	handler.Generate(rr, httptest.NewRequest(http.MethodGet, "/api/memo", nil))

	require.Equal(t, http.StatusBadRequest, rr.Code)
	var body struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, memo.CodeMissingItems, body.Error.Code)
	require.Equal(t, "Missing items", body.Error.Message)
	require.Empty(t, sink.calls())
}

func TestHandlerWithoutService(t *testing.T) {
	rr := httptest.NewRecorder()
	memo.NewHandler(memo.HandlerConfig{}).Generate(rr, httptest.NewRequest(http.MethodGet, "/api/memo?items=a:1:1", nil))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestHandlerOverflowingTotalsIsClientError(t *testing.T) {
	sink := &recordingSink{}
	handler := memo.NewHandler(memo.HandlerConfig{Service: newService(t, sink, 0)})

	rr := httptest.NewRecorder()
	handler.Generate(rr, httptest.NewRequest(http.MethodGet, "/api/memo?items=Gold:2:1e308", nil))

	require.Equal(t, http.StatusBadRequest, rr.Code)
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, memo.CodeMalformedLineItem, body.Error.Code)
	require.Empty(t, sink.calls())
}
