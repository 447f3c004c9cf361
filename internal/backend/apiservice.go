package backend

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/jo-hoe/photostamp/internal/common"
	"github.com/jo-hoe/photostamp/internal/core"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ProbePath   = "/probe"
	MetricsPath = "/metrics"
	entriesPath = "/api/entries"
)

type APIService struct {
	coreService *core.CoreService
}

type errorResponse struct {
	Error string `json:"error"`
}

// saveEntryForm holds the text fields of an upload; the photo arrives as a multipart file.
type saveEntryForm struct {
	Comment string `form:"comment" validate:"max=4000"`
	Lat     string `form:"lat" validate:"omitempty,numeric"`
	Lng     string `form:"lng" validate:"omitempty,numeric"`
}

func NewAPIService(coreService *core.CoreService) *APIService {
	return &APIService{
		coreService: coreService,
	}
}

func (s *APIService) SetRoutes(e *echo.Echo) {
	if e.Validator == nil {
		e.Validator = common.NewGenericEchoValidator()
	}

	// Set probe route
	e.GET(ProbePath, func(c echo.Context) error {
		return c.String(http.StatusOK, "photostamp is running")
	})
	e.GET(MetricsPath, echo.WrapHandler(promhttp.Handler()))

	e.POST(entriesPath, s.saveEntryHandler)
	e.GET(entriesPath, s.listEntriesHandler)
	e.DELETE(entriesPath, s.clearEntriesHandler)
	e.GET(entriesPath+"/:id/image", s.entryImageHandler)
	e.DELETE(entriesPath+"/:id", s.deleteEntryHandler)
}

func (s *APIService) saveEntryHandler(ctx echo.Context) error {
	var form saveEntryForm
	if err := ctx.Bind(&form); err != nil {
		slog.Warn("saveEntryHandler: failed to bind form", "status", http.StatusBadRequest, "error", err)
		return ctx.JSON(http.StatusBadRequest, errorResponse{Error: "invalid form"})
	}
	if err := ctx.Validate(&form); err != nil {
		slog.Warn("saveEntryHandler: invalid form", "status", http.StatusBadRequest, "error", err)
		return ctx.JSON(http.StatusBadRequest, errorResponse{Error: "invalid form"})
	}

	lat, err := parseOptionalFloat(form.Lat)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, errorResponse{Error: "invalid lat"})
	}
	lng, err := parseOptionalFloat(form.Lng)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, errorResponse{Error: "invalid lng"})
	}
	locator, err := s.coreService.LocatorFor(lat, lng, ctx.RealIP())
	if err != nil {
		slog.Warn("saveEntryHandler: invalid coordinates", "status", http.StatusBadRequest, "error", err)
		return ctx.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	photo, err := readPhoto(ctx)
	if err != nil {
		slog.Warn("saveEntryHandler: no photo received", "status", http.StatusBadRequest, "error", err)
		return ctx.JSON(http.StatusBadRequest, errorResponse{Error: core.ErrNoPhoto.Error()})
	}

	entry, err := s.coreService.SaveEntry(ctx.Request().Context(), core.SaveRequest{
		Photo:   photo,
		Comment: form.Comment,
		Locator: locator,
	})
	switch {
	case errors.Is(err, core.ErrNoPhoto):
		return ctx.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, core.ErrSaveInProgress):
		slog.Warn("saveEntryHandler: rejected overlapping save", "status", http.StatusConflict)
		return ctx.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	case err != nil:
		slog.Error("saveEntryHandler: failed to save entry", "status", http.StatusInternalServerError, "error", err)
		return ctx.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to save entry"})
	}

	return ctx.JSON(http.StatusCreated, entry)
}

func readPhoto(ctx echo.Context) ([]byte, error) {
	file, err := ctx.FormFile("photo")
	if err != nil {
		return nil, err
	}
	src, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			slog.Error("saveEntryHandler: failed to close uploaded file reader", "error", cerr, "filename", file.Filename)
		}
	}()
	return io.ReadAll(src)
}

func parseOptionalFloat(value string) (*float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *APIService) listEntriesHandler(ctx echo.Context) error {
	entries := s.coreService.ListEntries(ctx.Request().Context())

	// Prevent caching so the latest entries are always shown
	setNoCache(ctx)

	return ctx.JSON(http.StatusOK, entries)
}

func (s *APIService) entryImageHandler(ctx echo.Context) error {
	id := ctx.Param("id")
	data, mime, err := s.coreService.EntryImage(ctx.Request().Context(), id)
	if errors.Is(err, core.ErrEntryNotFound) {
		slog.Warn("entryImageHandler: entry not found", "status", http.StatusNotFound, "entry_id", id)
		return ctx.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	}
	if err != nil {
		slog.Error("entryImageHandler: failed to load image", "status", http.StatusInternalServerError, "entry_id", id, "error", err)
		return ctx.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to load image"})
	}

	// Entries are immutable, so the image under an id never changes
	ctx.Response().Header().Set("Cache-Control", "private, max-age=86400, immutable")
	return ctx.Blob(http.StatusOK, mime, data)
}

func (s *APIService) deleteEntryHandler(ctx echo.Context) error {
	id := ctx.Param("id")
	err := s.coreService.DeleteEntry(ctx.Request().Context(), id)
	if errors.Is(err, core.ErrEntryNotFound) {
		slog.Warn("deleteEntryHandler: entry not found", "status", http.StatusNotFound, "entry_id", id)
		return ctx.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	}
	if err != nil {
		slog.Error("deleteEntryHandler: failed to delete entry", "status", http.StatusInternalServerError, "entry_id", id, "error", err)
		return ctx.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to delete entry"})
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (s *APIService) clearEntriesHandler(ctx echo.Context) error {
	if err := s.coreService.ClearEntries(ctx.Request().Context()); err != nil {
		slog.Error("clearEntriesHandler: failed to clear entries", "status", http.StatusInternalServerError, "error", err)
		return ctx.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to clear entries"})
	}
	return ctx.NoContent(http.StatusNoContent)
}

func setNoCache(ctx echo.Context) {
	ctx.Response().Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
	ctx.Response().Header().Set("Pragma", "no-cache")
	ctx.Response().Header().Set("Expires", "0")
}
