package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/alumni/pkg/logctx"
	"github.com/fatflowers/alumni/pkg/response"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DBPinger pings the pool behind a gorm handle.
type DBPinger struct{ DB *gorm.DB }

func (p DBPinger) Ping(ctx context.Context) error {
	sqlDB, err := p.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// @Summary      Health check
// @Description  Returns service status
// @Tags         System
// @Produce      json
// @Success      200  {object}  handlers.RespOK
// @Router       /healthz [get]
func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, response.OKT(map[string]string{"status": "ok"}))
}

// @Summary      Readiness check
// @Description  Returns 503 while the database is unreachable
// @Tags         System
// @Produce      json
// @Success      200  {object}  handlers.RespOK
// @Failure      503  {object}  handlers.RespError
// @Router       /readyz [get]
func Readyz(db Pinger, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			logctx.FromGin(c, log).Warnw("readiness_db_unreachable", "err", err)
			c.JSON(http.StatusServiceUnavailable, response.ErrorT(response.APIResponseCodeError, response.ErrorBody{Error: "database unreachable"}))
			return
		}
		c.JSON(http.StatusOK, response.OKT(map[string]string{"status": "ready"}))
	}
}

func RegisterHealthRoutes(r gin.IRouter, db Pinger, log *zap.SugaredLogger) {
	r.GET("/healthz", Healthz)
	r.GET("/readyz", Readyz(db, log))
}
