package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/example/photo-capture/internal/usecase"
	"github.com/example/photo-capture/pkg/models"
)

// PhotoStore is the optional gallery collaborator backing the photo
// endpoints. A nil store serves an empty gallery.
type PhotoStore interface {
	List() ([]string, error)
	Path(name string) (string, error)
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, uc *usecase.ProcessingUseCase, photos PhotoStore) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/process", func(c *gin.Context) {
		var req models.ProcessingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request body"})
			return
		}

		resp, err := uc.Process(c.Request.Context(), req)
		if err != nil {
			status, message := classifyError(err)
			c.JSON(status, models.ErrorResponse{Error: message})
			return
		}

		c.JSON(http.StatusOK, resp)
	})

	router.GET("/api/photos", func(c *gin.Context) {
		if photos == nil {
			c.JSON(http.StatusOK, gin.H{"photos": []string{}, "total": 0})
			return
		}
		names, err := photos.List()
		if err != nil {
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to list photos"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"photos": names, "total": len(names)})
	})

	router.GET("/api/photos/:filename", func(c *gin.Context) {
		if photos == nil {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "photo storage is disabled"})
			return
		}
		path, err := photos.Path(c.Param("filename"))
		if err != nil {
			c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "photo not found"})
			return
		}
		c.File(path)
	})

	router.GET("/api/captures", func(c *gin.Context) {
		logs, err := uc.RecentCaptures(c.Request.Context(), 50)
		if err != nil {
			if errors.Is(err, usecase.ErrHistoryDisabled) {
				c.JSON(http.StatusNotFound, models.ErrorResponse{Error: err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to load captures"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"captures": logs, "total": len(logs)})
	})

	router.GET("/api/metrics", func(c *gin.Context) {
		summary, err := uc.GetMetricsSummary(c.Request.Context())
		if err != nil {
			if errors.Is(err, usecase.ErrHistoryDisabled) {
				c.JSON(http.StatusNotFound, models.ErrorResponse{Error: err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to aggregate metrics"})
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

// classifyError maps use case failures to statuses without leaking internal
// detail to the client.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, usecase.ErrInvalidImageEncoding):
		return http.StatusBadRequest, usecase.ErrInvalidImageEncoding.Error()
	case errors.Is(err, usecase.ErrTransform):
		return http.StatusInternalServerError, usecase.ErrTransform.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
