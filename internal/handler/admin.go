package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/timetable/timetable-sync/internal/gc"
	"github.com/timetable/timetable-sync/internal/model"
	"github.com/timetable/timetable-sync/internal/syncer"
	"github.com/timetable/timetable-sync/internal/timetable"
	"github.com/timetable/timetable-sync/internal/validation"
)

// SyncRunner runs a sync pass on demand.
type SyncRunner interface {
	Sync(ctx context.Context) (*syncer.Result, error)
}

// GCRunner runs a garbage collection pass on demand.
type GCRunner interface {
	Run(ctx context.Context, live map[string]model.IDSet) (*gc.Report, error)
}

// TimetableReader reads the published timetable.
type TimetableReader interface {
	Channels(ctx context.Context) ([]string, error)
	Channel(ctx context.Context, channelID model.Identifier) ([]timetable.Entry, error)
}

// QuotaReporter reports YouTube API quota usage.
type QuotaReporter interface {
	GetQuotaInfo(ctx context.Context) (*model.QuotaInfo, error)
}

// QuotaHistory lists the daily quota usage.
type QuotaHistory interface {
	GetQuotaHistory(ctx context.Context, days int) ([]model.QuotaUsage, error)
}

// AdminHandler exposes operator endpoints. Nil dependencies disable their
// routes.
type AdminHandler struct {
	syncer    SyncRunner
	collector GCRunner
	timetable TimetableReader
	quota     QuotaReporter
	history   QuotaHistory
	logger    *zap.Logger
}

// NewAdminHandler creates a new AdminHandler instance.
func NewAdminHandler(s SyncRunner, collector GCRunner, tt TimetableReader, quota QuotaReporter, history QuotaHistory, logger *zap.Logger) *AdminHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdminHandler{
		syncer:    s,
		collector: collector,
		timetable: tt,
		quota:     quota,
		history:   history,
		logger:    logger,
	}
}

// TriggerSync handles POST /api/v1/sync.
func (h *AdminHandler) TriggerSync(c *gin.Context) {
	if h.syncer == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "sync is not configured"})
		return
	}

	res, err := h.syncer.Sync(c.Request.Context())
	switch {
	case errors.Is(err, syncer.ErrPassInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		h.logger.Warn("manual sync pass failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "result": res})
	default:
		c.JSON(http.StatusOK, res)
	}
}

// TriggerGC handles POST /api/v1/gc. Without live subscription sets it only
// reconciles reachability.
func (h *AdminHandler) TriggerGC(c *gin.Context) {
	if h.collector == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "garbage collection is disabled"})
		return
	}

	report, err := h.collector.Run(c.Request.Context(), nil)
	switch {
	case gc.IsPassInProgress(err):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		h.logger.Error("manual gc pass failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, report)
	}
}

// ListTimetableChannels handles GET /api/v1/timetable.
func (h *AdminHandler) ListTimetableChannels(c *gin.Context) {
	if h.timetable == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "timetable is not configured"})
		return
	}

	channels, err := h.timetable.Channels(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list timetable channels", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read timetable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"channels": channels})
}

// GetTimetable handles GET /api/v1/timetable/:platform/:channel.
func (h *AdminHandler) GetTimetable(c *gin.Context) {
	if h.timetable == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "timetable is not configured"})
		return
	}

	platform := model.Platform(c.Param("platform"))
	if !platform.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown platform"})
		return
	}
	channelID := model.Identifier{Platform: platform, Kind: model.KindChannel, Value: c.Param("channel")}
	if err := validation.ValidateIdentifier(channelID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entries, err := h.timetable.Channel(c.Request.Context(), channelID)
	if err != nil {
		h.logger.Error("failed to read timetable", zap.Stringer("channel", channelID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read timetable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"channel_id": channelID.Value, "platform": platform, "entries": entries})
}

// GetQuota handles GET /api/v1/quota?days=N.
func (h *AdminHandler) GetQuota(c *gin.Context) {
	if h.quota == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "youtube quota is not tracked"})
		return
	}

	days := 7
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 90 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be between 1 and 90"})
			return
		}
		days = n
	}

	ctx := c.Request.Context()
	info, err := h.quota.GetQuotaInfo(ctx)
	if err != nil {
		h.logger.Error("failed to read quota", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read quota"})
		return
	}

	body := gin.H{"today": info}
	if h.history != nil {
		usage, err := h.history.GetQuotaHistory(ctx, days)
		if err != nil {
			h.logger.Error("failed to read quota history", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read quota"})
			return
		}
		body["history"] = usage
	}
	c.JSON(http.StatusOK, body)
}
