package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/educore-sync/internal/handler"
	"github.com/noah-isme/educore-sync/internal/middleware"
	"github.com/noah-isme/educore-sync/internal/service"
	"github.com/noah-isme/educore-sync/pkg/config"
	"github.com/noah-isme/educore-sync/pkg/logger"
	corsmiddleware "github.com/noah-isme/educore-sync/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/educore-sync/pkg/middleware/requestid"
)

type routeHandlers struct {
	auth       *handler.AuthHandler
	records    *handler.RecordHandler
	readStatus *handler.ReadStatusHandler
	metrics    *handler.MetricsHandler
	exports    *handler.ExportHandler
	files      *handler.FileHandler
}

func newRouter(cfg *config.Config, logr *zap.Logger, tokens middleware.TokenValidator, metrics *service.MetricsService, h routeHandlers) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", h.metrics.Health)
	r.GET("/ready", h.metrics.Ready)
	r.GET("/metrics", h.metrics.Prometheus)
	if h.files != nil {
		r.GET("/files/:token", h.files.Download)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/signup", h.auth.SignUp)
	auth.POST("/signin", h.auth.SignIn)
	auth.POST("/password/forgot", h.auth.ForgotPassword)
	auth.POST("/password/reset", h.auth.ResetPassword)

	secured := api.Group("", middleware.JWT(tokens))
	secured.POST("/auth/signout", h.auth.SignOut)
	secured.GET("/auth/me", h.auth.Me)

	writer := middleware.CollectionWriter("collection")
	audit := logger.Component(logr, "audit")
	collections := secured.Group("/collections/:collection")
	collections.GET("/records", h.records.List)
	collections.POST("/records", writer, middleware.Audit(audit, "record.create"), h.records.Create)
	collections.GET("/records/:id", h.records.Get)
	collections.PATCH("/records/:id", writer, middleware.Audit(audit, "record.update"), h.records.Update)
	collections.DELETE("/records/:id", writer, middleware.Audit(audit, "record.delete"), h.records.Delete)
	collections.PUT("/records/:id/category", writer, middleware.Audit(audit, "record.move"), h.records.MoveCategory)
	collections.POST("/refresh", h.records.Refresh)
	collections.GET("/query", h.records.Query)
	collections.GET("/partitions", h.records.Partitions)
	collections.GET("/unread", h.readStatus.Unread)
	if h.exports != nil {
		collections.GET("/partitions/export", h.exports.Export)
	}

	secured.GET("/roster", h.records.Roster)
	secured.POST("/read-status/:id", h.readStatus.MarkRead)
	secured.GET("/read-status/:id", h.readStatus.Status)

	return r
}
