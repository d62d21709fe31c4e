package app

import (
	"fmt"
	"strconv"

	"chat_sync_service/internal/chatsync/domain"
	"chat_sync_service/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// DebugStore read side of the debug event store
type DebugStore interface {
	GetMetrics() domain.Metrics
	GetEvents(limit int) []domain.DebugEvent
	Reset()
}

// DebugHandler debug surface of the sync daemon
type DebugHandler struct {
	store      DebugStore
	session    *Session
	allowReset bool
}

// NewDebugHandler create DebugHandler, session may be nil
func NewDebugHandler(store DebugStore, session *Session, allowReset bool) *DebugHandler {
	return &DebugHandler{
		store:      store,
		session:    session,
		allowReset: allowReset,
	}
}

// ConnectCheck check service start
// @Summary Check chat sync status
// @Description Returns a simple confirmation message
// @Tags Shared
// @Success 200 {string} string "chat sync start!"
// @Router / [get]
func ConnectCheck(c *fiber.Ctx) error {
	return c.SendString("chat sync start!")
}

// DebugLogFlag toggle debug log flag
// @Summary Toggle Debug Log Flag
// @Description Enable or disable debug logging, requires an admin token when jwt_secret is set
// @Tags Shared
// @Param status query bool true "Debug status"
// @Success 200 {string} string "debug mode updated"
// @Failure 400 {string} string "Invalid status value"
// @Failure 401 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Router /debug [post]
func DebugLogFlag(c *fiber.Ctx) error {
	statusStr := c.Query("status")
	logger.Log.Info("debug", zap.String("status", statusStr))
	status, err := strconv.ParseBool(statusStr)
	if err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}

	logger.Log.SetDebugMode(status)
	return c.SendString(fmt.Sprintf("debug mode is : %t", status))
}

// Metrics aggregated debug metrics
// @Summary Debug metrics
// @Description Connections, joined rooms, messages and disconnects in the window, top error codes
// @Tags Debug
// @Produce json
// @Success 200 {object} domain.Metrics
// @Failure 401 {object} map[string]string
// @Router /debug/chat/metrics [get]
func (h *DebugHandler) Metrics(c *fiber.Ctx) error {
	return c.JSON(h.store.GetMetrics())
}

// Events recent debug events, most recent first
// @Summary Debug events
// @Tags Debug
// @Produce json
// @Param limit query int false "Max events, 0 returns every buffered event"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Router /debug/chat/events [get]
func (h *DebugHandler) Events(c *fiber.Ctx) error {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "limit must be a non-negative integer"})
		}
		limit = n
	}

	events := h.store.GetEvents(limit)
	return c.JSON(fiber.Map{"events": events, "count": len(events)})
}

// Reset clear the debug store
// @Summary Reset debug store
// @Description Only when debug.allow_reset is set, requires an admin token when jwt_secret is set
// @Tags Debug
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 403 {object} map[string]string
// @Router /debug/chat/reset [post]
func (h *DebugHandler) Reset(c *fiber.Ctx) error {
	if !h.allowReset {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "reset is disabled"})
	}
	h.store.Reset()
	logger.Log.Info("debug store reset", zap.String("ip", c.IP()))
	return c.JSON(fiber.Map{"message": "debug store reset"})
}

// SessionState counters of the running session
// @Summary Session state
// @Tags Debug
// @Produce json
// @Success 200 {object} SessionStats
// @Failure 404 {object} map[string]string
// @Router /debug/chat/session [get]
func (h *DebugHandler) SessionState(c *fiber.Ctx) error {
	if h.session == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no session"})
	}
	return c.JSON(h.session.Stats())
}
