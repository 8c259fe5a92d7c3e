package memo

import (
	"net/http"

	"github.com/noah-isme/memo-api/internal/common"
	"github.com/noah-isme/memo-api/internal/obs"
)

// Handler exposes the memo endpoint.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

type generateResponse struct {
	PDFURL   string `json:"pdfUrl"`
	FileName string `json:"fileName"`
	Totals   Totals `json:"totals"`
}

// Generate handles GET /api/memo?items=name:qty:price[,...]&paid=x.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "memo service not configured", nil)
		return
	}
	query := r.URL.Query()
	res, err := h.service.Generate(r.Context(), Request{
		Items:   query.Get("items"),
		Paid:    query.Get("paid"),
		BaseURL: common.BaseURL(r),
	})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	obs.Annotate(r.Context(), "memo_file", res.FileName)
	common.JSON(w, http.StatusOK, generateResponse{
		PDFURL:   res.URL,
		FileName: res.FileName,
		Totals:   res.Totals,
	})
}
