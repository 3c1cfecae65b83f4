package dashboardhttp

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/salesdash/salesdash/internal/classify"
	"github.com/salesdash/salesdash/internal/export"
	"github.com/salesdash/salesdash/internal/platform/httpx"
)

func (h *Handler) handleSalesXLSX(w http.ResponseWriter, r *http.Request) {
	h.exportSales(w, r, "xlsx")
}

func (h *Handler) handleSalesCSV(w http.ResponseWriter, r *http.Request) {
	h.exportSales(w, r, "csv")
}

// exportSales defaults to the national scope.
func (h *Handler) exportSales(w http.ResponseWriter, r *http.Request, format string) {
	q, err := h.parseQuery(r, classify.ScopeNational)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	lines, err := h.service.ExportSales(ctx, q)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	buf := h.buffer()
	defer h.filePool.Put(buf)
	filename := export.SalesFilename(h.now(), format)
	if format == "csv" {
		if err := export.WriteCSV(buf, export.SalesColumns, lines, h.opts.Formatter); err != nil {
			h.respondError(w, r, err)
			return
		}
		httpx.Attachment(w, csvContentType, filename, buf.Bytes())
		return
	}
	if err := export.WriteXLSX(buf, export.SalesSheet, export.SalesColumns, lines, h.opts.Formatter); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.Attachment(w, xlsxContentType, filename, buf.Bytes())
}

func (h *Handler) handlePendingXLSX(w http.ResponseWriter, r *http.Request) {
	q, err := h.parseQuery(r, classify.ScopeAll)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	lines, err := h.service.ExportPending(ctx, q)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	buf := h.buffer()
	defer h.filePool.Put(buf)
	if err := export.WriteXLSX(buf, export.PendingSheet, export.PendingColumns, lines, h.opts.Formatter); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.Attachment(w, xlsxContentType, export.PendingFilename(h.now()), buf.Bytes())
}

func (h *Handler) handleDetailsXLSX(w http.ResponseWriter, r *http.Request) {
	month := strings.TrimSpace(r.URL.Query().Get("mes"))
	if month == "" {
		h.respondError(w, r, fieldErrors{"mes": "required"})
		return
	}
	ctx, cancel := h.context(r)
	defer cancel()
	lines, err := h.service.MonthDetails(ctx, month)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	buf := h.buffer()
	defer h.filePool.Put(buf)
	if err := export.WriteXLSX(buf, export.DetailsSheet(month), export.SalesColumns, lines, h.opts.Formatter); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.Attachment(w, xlsxContentType, export.DetailsFilename(month), buf.Bytes())
}

func (h *Handler) buffer() *bytes.Buffer {
	buf := h.filePool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}
