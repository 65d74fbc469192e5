package server

import (
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/docchat/internal/domain"
	"github.com/mohammad-safakhou/docchat/internal/pipeline"
)

type DocumentsHandler struct {
	Svc Service
}

func (h *DocumentsHandler) Register(g *echo.Group) {
	g.POST("", h.create)
	g.GET("/:id", h.get)
	g.DELETE("/:id", h.delete)
	g.GET("/:id/chunks", h.chunks)
}

type createDocumentRequest struct {
	ID     string `json:"document_id"`
	UserID string `json:"user_id"`
	Title  string `json:"title"`
	Text   string `json:"text"`
}

type createDocumentResponse struct {
	Document domain.Document       `json:"document"`
	Ingest   pipeline.IngestReport `json:"ingest"`
}

// create accepts a multipart upload (file, user_id, title) or a JSON body with inline text.
func (h *DocumentsHandler) create(c echo.Context) error {
	var in pipeline.NewDocument
	if fh, err := c.FormFile("file"); err == nil {
		f, err := fh.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "cannot read upload")
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "cannot read upload")
		}
		in = pipeline.NewDocument{
			ID:          c.FormValue("document_id"),
			UserID:      c.FormValue("user_id"),
			Title:       c.FormValue("title"),
			Filename:    fh.Filename,
			ContentType: fh.Header.Get(echo.HeaderContentType),
			Data:        data,
		}
	} else {
		var req createDocumentRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "expected multipart file or JSON body")
		}
		in = pipeline.NewDocument{
			ID:          req.ID,
			UserID:      req.UserID,
			Title:       req.Title,
			ContentType: "text/plain",
			Data:        []byte(req.Text),
		}
	}

	doc, report, err := h.Svc.AddDocument(c.Request().Context(), in)
	if err != nil {
		return err
	}
	status := http.StatusCreated
	if report.Stage == pipeline.StageQueued {
		status = http.StatusAccepted
	}
	return c.JSON(status, createDocumentResponse{Document: doc, Ingest: report})
}

func (h *DocumentsHandler) get(c echo.Context) error {
	doc, err := h.Svc.Document(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, doc)
}

func (h *DocumentsHandler) delete(c echo.Context) error {
	if err := h.Svc.DeleteDocument(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *DocumentsHandler) chunks(c echo.Context) error {
	chunks, err := h.Svc.Chunks(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"document_id": c.Param("id"),
		"count":       len(chunks),
		"chunks":      chunks,
	})
}

func required(name, v string) error {
	if v == "" {
		return fmt.Errorf("%w: %s required", domain.ErrInvalidInput, name)
	}
	return nil
}
