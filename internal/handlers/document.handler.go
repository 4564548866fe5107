package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fasthttp/router"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/model"
	"github.com/ronaldochiavegatti/fiscalassistantsaas/internal/services"
	xhttp "github.com/ronaldochiavegatti/fiscalassistantsaas/pkg/http"
)

type DocumentService interface {
	Upload(ctx context.Context, p model.DocumentUploadRequest) (*model.Document, error)
	Get(ctx context.Context, id int64) (*model.Document, error)
	List(ctx context.Context, f model.DocumentFilter) ([]*model.Document, int64, error)
	ListTransactions(ctx context.Context, f model.TransactionFilter) ([]*model.Transaction, int64, error)
}

type DocumentHandler struct {
	svc DocumentService
}

func RegisterDocumentRoutes(e *router.Group, h *DocumentHandler) {
	e.POST("/documents", h.UploadDocument)
	e.GET("/documents", h.ListDocuments)
	e.GET("/documents/{id}", h.GetDocument)
	e.GET("/transactions", h.ListTransactions)
}

func NewDocumentHandler(documentService DocumentService) *DocumentHandler {
	return &DocumentHandler{
		svc: documentService,
	}
}

type listDocumentsResponse struct {
	Items []*model.Document `json:"items"`
	Total int64             `json:"total"`
}

type listTransactionsResponse struct {
	Items []*model.Transaction `json:"items"`
	Total int64                `json:"total"`
}

/* --------------------------------- Routes ----------------------------------- */

// UploadDocument accepts a multipart form with a "user_id" field and a "file"
// part. An empty file is accepted; the pipeline records it with default values.
func (h *DocumentHandler) UploadDocument(ctx *xhttp.RequestCtx) {
	form, err := ctx.MultipartForm()
	if err != nil {
		writeError(ctx, 400, "invalid multipart form: "+err.Error())
		return
	}

	userID, err := formInt64(form.Value, "user_id")
	if err != nil {
		writeError(ctx, 400, "user_id is required")
		return
	}

	files := form.File["file"]
	if len(files) == 0 {
		writeError(ctx, 400, "file part is required")
		return
	}
	fh := files[0]

	f, err := fh.Open()
	if err != nil {
		writeError(ctx, 400, "cannot read file: "+err.Error())
		return
	}
	content, err := io.ReadAll(f)
	_ = f.Close()
	if err != nil {
		writeError(ctx, 400, "cannot read file: "+err.Error())
		return
	}

	p := model.DocumentUploadRequest{
		UserID:   userID,
		Filename: fh.Filename,
		Content:  content,
	}
	doc, err := h.svc.Upload(ctx, p)
	if err != nil {
		writeError(ctx, 400, err.Error())
		return
	}
	writeJSON(ctx, 201, doc)
}

func (h *DocumentHandler) GetDocument(ctx *xhttp.RequestCtx) {
	idStr, _ := ctx.UserValue("id").(string)
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(ctx, 400, "invalid document id")
		return
	}

	doc, err := h.svc.Get(ctx, id)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			writeError(ctx, 404, "document not found")
			return
		}
		writeError(ctx, 500, err.Error())
		return
	}
	writeJSON(ctx, 200, doc)
}

func (h *DocumentHandler) ListDocuments(ctx *xhttp.RequestCtx) {
	var f model.DocumentFilter

	if v := query(ctx, "user_id"); v != "" {
		if id, e := strconv.ParseInt(v, 10, 64); e == nil {
			f.UserID = &id
		}
	}
	if v := query(ctx, "status"); v != "" {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
			if parts[i] != "" {
				f.Statuses = append(f.Statuses, model.DocumentStatus(parts[i]))
			}
		}
	}
	if v := query(ctx, "from"); v != "" {
		if t, e := parseTime(v); e == nil {
			f.From = &t
		}
	}
	if v := query(ctx, "to"); v != "" {
		if t, e := parseTime(v); e == nil {
			f.To = &t
		}
	}
	if v := query(ctx, "limit"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			f.Limit = n
		}
	}
	if v := query(ctx, "offset"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			f.Offset = n
		}
	}
	if strings.EqualFold(query(ctx, "order"), "desc") {
		f.Desc = true
	}

	items, total, err := h.svc.List(ctx, f)
	if err != nil {
		writeError(ctx, 400, err.Error())
		return
	}
	writeJSON(ctx, 200, listDocumentsResponse{Items: items, Total: total})
}

func (h *DocumentHandler) ListTransactions(ctx *xhttp.RequestCtx) {
	var f model.TransactionFilter

	if v := query(ctx, "user_id"); v != "" {
		if id, e := strconv.ParseInt(v, 10, 64); e == nil {
			f.UserID = &id
		}
	}
	if v := query(ctx, "document_id"); v != "" {
		if id, e := strconv.ParseInt(v, 10, 64); e == nil {
			f.DocumentID = &id
		}
	}
	if v := query(ctx, "from"); v != "" {
		if t, e := parseTime(v); e == nil {
			f.From = &t
		}
	}
	if v := query(ctx, "to"); v != "" {
		if t, e := parseTime(v); e == nil {
			f.To = &t
		}
	}
	if v := query(ctx, "limit"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			f.Limit = n
		}
	}
	if v := query(ctx, "offset"); v != "" {
		if n, e := strconv.Atoi(v); e == nil {
			f.Offset = n
		}
	}
	if strings.EqualFold(query(ctx, "order"), "desc") {
		f.Desc = true
	}

	items, total, err := h.svc.ListTransactions(ctx, f)
	if err != nil {
		writeError(ctx, 400, err.Error())
		return
	}
	writeJSON(ctx, 200, listTransactionsResponse{Items: items, Total: total})
}

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	return json.Unmarshal(body, dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, map[string]string{"error": msg})
}

func formInt64(values map[string][]string, key string) (int64, error) {
	vs := values[key]
	if len(vs) == 0 {
		return 0, errors.New("missing " + key)
	}
	return strconv.ParseInt(strings.TrimSpace(vs[0]), 10, 64)
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

func parseTime(s string) (time.Time, error) {
	// Accept RFC3339 or YYYY-MM-DD
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
