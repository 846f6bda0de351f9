package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"neuro-match/services"
)

type HealthController struct {
	db  *gorm.DB
	hub *services.Hub
}

func NewHealthController(db *gorm.DB, hub *services.Hub) *HealthController {
	return &HealthController{db: db, hub: hub}
}

// Health 数据库不可用时返回 503
func (hc *HealthController) Health(c *gin.Context) {
	status := http.StatusOK
	database := "ok"
	if sqlDB, err := hc.db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
		status = http.StatusServiceUnavailable
		database = "unavailable"
	}

	body := gin.H{
		"status":   http.StatusText(status),
		"database": database,
	}
	if hc.hub != nil {
		body["clients"] = hc.hub.ClientCount()
	}
	c.JSON(status, body)
}
