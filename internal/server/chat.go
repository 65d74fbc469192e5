package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/docchat/internal/domain"
	"github.com/mohammad-safakhou/docchat/internal/pipeline"
)

type ChatHandler struct {
	Svc          Service
	DefaultLevel int
}

func (h *ChatHandler) Register(g *echo.Group) {
	g.GET("", h.ask)
	g.GET("/", h.ask)
	g.GET("/general", h.general)
	g.GET("/history", h.history)
}

func (h *ChatHandler) level(c echo.Context) (int, error) {
	raw := c.QueryParam("user_level_rate")
	if raw == "" {
		return h.DefaultLevel, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: user_level_rate must be an integer", domain.ErrInvalidInput)
	}
	return n, nil
}

func (h *ChatHandler) ask(c echo.Context) error {
	q := pipeline.Query{
		Question:   c.QueryParam("question"),
		DocumentID: c.QueryParam("document_id"),
		UserID:     c.QueryParam("user_id"),
	}
	for _, f := range [][2]string{{"question", q.Question}, {"document_id", q.DocumentID}, {"user_id", q.UserID}} {
		if err := required(f[0], f[1]); err != nil {
			return err
		}
	}
	level, err := h.level(c)
	if err != nil {
		return err
	}
	q.Level = level

	resp, err := h.Svc.Ask(c.Request().Context(), q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *ChatHandler) general(c echo.Context) error {
	q := pipeline.GeneralQuery{Question: c.QueryParam("question"), UserID: c.QueryParam("user_id")}
	if err := required("question", q.Question); err != nil {
		return err
	}
	if err := required("user_id", q.UserID); err != nil {
		return err
	}
	level, err := h.level(c)
	if err != nil {
		return err
	}
	q.Level = level

	resp, err := h.Svc.AskGeneral(c.Request().Context(), q)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *ChatHandler) history(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if err := required("user_id", userID); err != nil {
		return err
	}
	var documentID *string
	if v := c.QueryParam("document_id"); v != "" {
		documentID = &v
	}
	entries, err := h.Svc.History(c.Request().Context(), userID, documentID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entries)
}
