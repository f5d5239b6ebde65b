package handlers

import (
	"context"
	"net/http"
	"strconv"

	"fleetserver/broker"
	"fleetserver/middlewares"
	"fleetserver/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultAuditLimit = 50

// AuditReader lists recent room lifecycle rows.
type AuditReader interface {
	Recent(ctx context.Context, limit int) ([]models.RoomRecord, error)
}

// HealthHandler はブローカーの稼働状況を返します。
func HealthHandler(c *gin.Context, b *broker.Broker) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"rooms":       b.Registry().Count(),
		"connections": b.Connections(),
	})
}

// RoomsHandler returns the rooms a client could join, like LIST_ROOMS.
func RoomsHandler(c *gin.Context, b *broker.Broker) {
	c.JSON(http.StatusOK, gin.H{"rooms": b.Registry().OpenRooms()})
}

// AdminRoomsHandler はオペレーター向けに全ての部屋と監査ログを返します。
func AdminRoomsHandler(c *gin.Context, b *broker.Broker, audit AuditReader, logger *zap.Logger) {
	response := gin.H{
		"operator": c.GetString(middlewares.OperatorKey),
		"rooms":    b.Registry().Rooms(),
	}

	if audit != nil {
		limit := defaultAuditLimit
		if raw := c.Query("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
				return
			}
			limit = n
		}
		records, err := audit.Recent(c.Request.Context(), limit)
		if err != nil {
			logger.Error("Failed to read room audit", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Audit unavailable"})
			return
		}
		response["audit"] = records
	}

	c.JSON(http.StatusOK, response)
}
