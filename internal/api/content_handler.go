package api

import (
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/gracefellowship/fellowship/internal/auth"
	"github.com/gracefellowship/fellowship/internal/models"
	"github.com/gracefellowship/fellowship/internal/service"
)

// AnnouncementHandler serves the news feed.
type AnnouncementHandler struct {
	service *service.AnnouncementService
}

func NewAnnouncementHandler(svc *service.AnnouncementService) *AnnouncementHandler {
	return &AnnouncementHandler{service: svc}
}

// List handles GET /api/v1/announcements.
func (h *AnnouncementHandler) List(c echo.Context) error {
	before, limit, err := pageParams(c)
	if err != nil {
		return mapServiceError(c, err)
	}
	out, err := h.service.List(c.Request().Context(), before, limit)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

type announcementRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Create handles POST /api/v1/announcements.
func (h *AnnouncementHandler) Create(c echo.Context) error {
	var req announcementRequest
	if err := c.Bind(&req); err != nil {
		return Error(c, http.StatusBadRequest, "INVALID_BODY", "invalid request body")
	}
	a, err := h.service.Create(c.Request().Context(), auth.GetUserID(c), req.Title, req.Body)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, a)
}

// SermonHandler serves the sermon and devotional library.
type SermonHandler struct {
	service *service.SermonService
}

func NewSermonHandler(svc *service.SermonService) *SermonHandler {
	return &SermonHandler{service: svc}
}

// List handles GET /api/v1/sermons?kind=sermon|devotional.
func (h *SermonHandler) List(c echo.Context) error {
	limit := 0
	if l := c.QueryParam("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > service.MaxPageSize {
			return Error(c, http.StatusBadRequest, "INVALID_LIMIT", "limit must be 1-100")
		}
		limit = parsed
	}
	out, err := h.service.List(c.Request().Context(), c.QueryParam("kind"), limit)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// Upload handles POST /api/v1/sermons as multipart form data with fields
// title, speaker, kind and file.
func (h *SermonHandler) Upload(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return Error(c, http.StatusBadRequest, "MISSING_FILE", "file field is required")
	}

	src, err := file.Open()
	if err != nil {
		return Error(c, http.StatusInternalServerError, "INTERNAL", "internal server error")
	}
	defer src.Close()

	sermon, err := h.service.Upload(c.Request().Context(), auth.GetUserID(c), service.SermonUpload{
		Title:       c.FormValue("title"),
		Speaker:     c.FormValue("speaker"),
		Kind:        models.SermonKind(c.FormValue("kind")),
		Filename:    filepath.Base(file.Filename),
		ContentType: file.Header.Get("Content-Type"),
		Size:        file.Size,
		Body:        src,
	})
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, sermon)
}
