package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"
	"github.com/tanq16/rangeload/internal/downloader"
	"github.com/tanq16/rangeload/internal/utils"
)

type DownloadController struct {
	Downloads Downloads
}

type EnqueueRequest struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

type EnqueueResponse struct {
	ID downloader.EntryID `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (ctrl *DownloadController) List(c *echo.Context) error {
	return c.JSON(http.StatusOK, ctrl.Downloads.State().Snapshot())
}

func (ctrl *DownloadController) Get(c *echo.Context) error {
	row, ok := ctrl.Downloads.State().Get(downloader.EntryID(c.Param("id")))
	if !ok {
		return c.JSON(http.StatusNotFound, errorResponse{Error: downloader.ErrUnknownEntry.Error()})
	}
	return c.JSON(http.StatusOK, row)
}

func (ctrl *DownloadController) Create(c *echo.Context) error {
	var req EnqueueRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if req.URL == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "url is required"})
	}
	id, err := ctrl.Downloads.Enqueue(req.URL, req.Name)
	if err != nil {
		return c.JSON(statusFor(err), errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusAccepted, EnqueueResponse{ID: id})
}

func (ctrl *DownloadController) Restart(c *echo.Context) error {
	if err := ctrl.Downloads.Restart(downloader.EntryID(c.Param("id"))); err != nil {
		return c.JSON(statusFor(err), errorResponse{Error: err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

func (ctrl *DownloadController) Delete(c *echo.Context) error {
	if err := ctrl.Downloads.Delete(downloader.EntryID(c.Param("id"))); err != nil {
		return c.JSON(statusFor(err), errorResponse{Error: err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, downloader.ErrUnknownEntry):
		return http.StatusNotFound
	case errors.Is(err, downloader.ErrNotRestartable):
		return http.StatusConflict
	case errors.Is(err, utils.ErrUnsupportedScheme), errors.Is(err, utils.ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, downloader.ErrManagerClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
