// Package handler is the HTTP surface: the runtime websocket, health and
// metrics endpoints and read-only staff APIs.
package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"rpworld/backend/internal/apperr"
	"rpworld/backend/internal/gateway"
	"rpworld/backend/internal/models"
	"rpworld/backend/internal/moderation"
	"rpworld/backend/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Moderation is what the staff endpoints read.
type Moderation interface {
	ListOpenReports(adminID uint) ([]models.Report, error)
	History(ctx context.Context, adminID, targetID uint) (*moderation.History, error)
	RecentActions(adminID uint, n int) ([]models.AdminAction, error)
}

type Online interface {
	ForEach(fn func(session.Actor))
}

type FactionLister interface {
	List() []models.Faction
}

type Handler struct {
	Hub      *gateway.Hub
	Secret   []byte
	Mod      Moderation
	Online   Online
	Factions FactionLister
	// Ready reports whether the store answers.
	Ready func(ctx context.Context) error

	log *zap.Logger
}

func NewHandler(hub *gateway.Hub, secret string, mod Moderation, online Online, factions FactionLister, ready func(context.Context) error, log *zap.Logger) *Handler {
	return &Handler{Hub: hub, Secret: []byte(secret), Mod: mod, Online: online, Factions: factions, Ready: ready, log: log}
}

// Routes registers every endpoint on r.
func (h *Handler) Routes(r *gin.Engine) {
	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", h.requireRole(RoleRuntime), h.ServeWebSocket)

	api := r.Group("/api", h.requireRole(RoleAdmin))
	api.GET("/reports", h.OpenReports)
	api.GET("/players/:id/history", h.PlayerHistory)
	api.GET("/audit", h.AuditLog)
	api.GET("/online", h.OnlinePlayers)
	api.GET("/factions", h.ListFactions)
}

func (h *Handler) Health(c *gin.Context) {
	if h.Ready != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.Ready(ctx); err != nil {
			h.log.Warn("health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// fail maps a domain error onto an HTTP status.
func (h *Handler) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindPermissionDenied:
		status = http.StatusForbidden
	case apperr.KindInvalidInput:
		status = http.StatusBadRequest
	case apperr.KindConflict, apperr.KindInsufficientFunds:
		status = http.StatusConflict
	default:
		h.log.Error("api request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": apperr.UserMessage(err)})
}

func (h *Handler) OpenReports(c *gin.Context) {
	reports, err := h.Mod.ListOpenReports(c.GetUint("actor_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

func (h *Handler) PlayerHistory(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid player id"})
		return
	}
	history, err := h.Mod.History(c.Request.Context(), c.GetUint("actor_id"), uint(id))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (h *Handler) AuditLog(c *gin.Context) {
	n, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	actions, err := h.Mod.RecentActions(c.GetUint("actor_id"), n)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions})
}

type onlinePlayer struct {
	ID         uint   `json:"id"`
	Name       string `json:"name"`
	AdminLevel int    `json:"admin_level"`
	FactionID  *uint  `json:"faction_id,omitempty"`
	JobID      string `json:"job_id,omitempty"`
}

func (h *Handler) OnlinePlayers(c *gin.Context) {
	players := []onlinePlayer{}
	h.Online.ForEach(func(a session.Actor) {
		players = append(players, onlinePlayer{ID: a.ID, Name: a.Name, AdminLevel: a.AdminLevel, FactionID: a.FactionID, JobID: a.JobID})
	})
	c.JSON(http.StatusOK, gin.H{"count": len(players), "players": players})
}

func (h *Handler) ListFactions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"factions": h.Factions.List()})
}
