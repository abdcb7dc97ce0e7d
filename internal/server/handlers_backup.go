package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/halcyonlabs/halcyon-device/internal/backup"
	"github.com/halcyonlabs/halcyon-device/internal/cloudsync"
	"go.uber.org/zap"
)

func (h *httpHandler) handleBackupExport(c *gin.Context) {
	snapshot, err := h.orchestrator.Export(c.Request.Context())
	if err != nil {
		h.logger.Error("backup export failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export_failed"})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (h *httpHandler) handleBackupRestore(c *gin.Context) {
	var snapshot backup.Snapshot
	if err := c.ShouldBindJSON(&snapshot); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_snapshot"})
		return
	}

	counts, err := h.orchestrator.Restore(c.Request.Context(), snapshot)
	if errors.Is(err, backup.ErrUnsupportedVersion) {
		c.JSON(http.StatusConflict, gin.H{"error": "unsupported_version"})
		return
	}
	if err != nil {
		h.logger.Error("backup restore failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "restore_failed"})
		return
	}

	h.dispatcher.Publish(EventBackup)
	c.JSON(http.StatusOK, gin.H{"restored": counts})
}

func (h *httpHandler) handleBackupClear(c *gin.Context) {
	if err := h.orchestrator.ClearAll(c.Request.Context()); err != nil {
		h.logger.Error("clear all failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "clear_failed"})
		return
	}

	h.dispatcher.Publish(EventBackup)
	c.Status(http.StatusNoContent)
}

type cloudStatusPayload struct {
	Configured  bool                   `json:"configured"`
	Destination *cloudsync.Destination `json:"destination,omitempty"`
}

func (h *httpHandler) handleCloudStatus(c *gin.Context) {
	destination, found, err := h.cloud.Status(c.Request.Context())
	if err != nil {
		h.logger.Error("cloud status failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "status_failed"})
		return
	}

	payload := cloudStatusPayload{Configured: found}
	if found {
		payload.Destination = &destination
	}
	c.JSON(http.StatusOK, payload)
}

type cloudConfigurePayload struct {
	Provider string `json:"provider"`
	URI      string `json:"uri"`
	Path     string `json:"path"`
	Platform string `json:"platform"`
}

func (h *httpHandler) handleCloudConfigure(c *gin.Context) {
	var payload cloudConfigurePayload
	if err := c.ShouldBindJSON(&payload); err != nil || payload.Path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	destination, err := h.cloud.ConfigureDestination(c.Request.Context(), cloudsync.PickedDirectory{
		URI:      payload.URI,
		Path:     payload.Path,
		Platform: payload.Platform,
	}, cloudsync.Provider(payload.Provider))
	if errors.Is(err, cloudsync.ErrUnknownProvider) || errors.Is(err, cloudsync.ErrProviderMismatch) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_destination"})
		return
	}
	if errors.Is(err, cloudsync.ErrDestinationUnreachable) {
		c.JSON(http.StatusBadGateway, gin.H{"error": "destination_unreachable"})
		return
	}
	if err != nil {
		h.logger.Error("cloud configure failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "configure_failed"})
		return
	}
	c.JSON(http.StatusOK, destination)
}

func (h *httpHandler) handleCloudBackup(c *gin.Context) {
	fileName, err := h.cloud.BackupNow(c.Request.Context())
	if errors.Is(err, cloudsync.ErrNotConfigured) {
		c.JSON(http.StatusConflict, gin.H{"error": "not_configured"})
		return
	}
	if errors.Is(err, cloudsync.ErrDestinationUnreachable) {
		c.JSON(http.StatusBadGateway, gin.H{"error": "destination_unreachable"})
		return
	}
	if err != nil {
		h.logger.Error("cloud backup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "backup_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"file": fileName})
}

func (h *httpHandler) handleCloudRestore(c *gin.Context) {
	counts, err := h.cloud.RestoreLatest(c.Request.Context())
	if errors.Is(err, cloudsync.ErrNotConfigured) {
		c.JSON(http.StatusConflict, gin.H{"error": "not_configured"})
		return
	}
	if errors.Is(err, cloudsync.ErrNoBackupsFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no_backups_found"})
		return
	}
	if errors.Is(err, cloudsync.ErrDestinationUnreachable) {
		c.JSON(http.StatusBadGateway, gin.H{"error": "destination_unreachable"})
		return
	}
	if errors.Is(err, backup.ErrUnsupportedVersion) {
		c.JSON(http.StatusConflict, gin.H{"error": "unsupported_version"})
		return
	}
	if err != nil {
		h.logger.Error("cloud restore failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "restore_failed"})
		return
	}

	h.dispatcher.Publish(EventBackup)
	c.JSON(http.StatusOK, gin.H{"restored": counts})
}
