package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/hitoshi/feedshelf/internal/middleware"
	"github.com/hitoshi/feedshelf/internal/opml"
)

// maxOPMLBodySize はOPMLアップロードの上限（5MB）。
const maxOPMLBodySize = 5 << 20

// OPMLServiceInterface はOPMLの入出力サービスのインターフェース。
type OPMLServiceInterface interface {
	Import(ctx context.Context, r io.Reader) (*opml.ImportResult, error)
	Export(ctx context.Context) ([]byte, error)
}

// OPMLHandler はOPMLのインポート・エクスポートのHTTPハンドラー。
type OPMLHandler struct {
	service OPMLServiceInterface
}

// NewOPMLHandler はOPMLHandlerを生成する。
func NewOPMLHandler(service OPMLServiceInterface) *OPMLHandler {
	return &OPMLHandler{service: service}
}

// Import はリクエストボディのOPMLを取り込み、集計結果を返す。
// POST /api/opml
func (h *OPMLHandler) Import(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Import(r.Context(), http.MaxBytesReader(w, r.Body, maxOPMLBodySize))
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	if result.Failed == nil {
		result.Failed = []opml.ImportError{}
	}
	writeJSON(w, http.StatusOK, result)
}

// Export は削除されていない全フィードをOPML 2.0で返す。
// GET /api/opml
func (h *OPMLHandler) Export(w http.ResponseWriter, r *http.Request) {
	data, err := h.service.Export(r.Context())
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/x-opml; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="feedshelf.opml"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
