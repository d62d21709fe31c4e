package router

import (
	"chat_sync_service/internal/chatsync/app"
	"chat_sync_service/pkg/middlewares"
	"chat_sync_service/pkg/token"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes 注册 debug 相关的路由, debugHandler nil 表示 debug 關閉.
// jwtSecret set requires an operator token on reads, an admin token on reset and the log toggle.
// @title Chat Sync Debug API
// @version 1.0
// @description Debug surface of the chat sync daemon
// @host localhost:8090
// @BasePath /
func RegisterRoutes(r *fiber.App, debugHandler *app.DebugHandler, gatherer prometheus.Gatherer, jwtSecret []byte) {
	r.Get("/swagger/*", swagger.HandlerDefault)
	r.Get("/", app.ConnectCheck)

	readGuards := []fiber.Handler{}
	adminGuards := []fiber.Handler{}
	if len(jwtSecret) > 0 {
		readGuards = append(readGuards, middlewares.JWTMiddleware(jwtSecret, token.RoleOperator, token.RoleAdmin))
		adminGuards = append(adminGuards, middlewares.JWTMiddleware(jwtSecret, token.RoleAdmin))
	}
	r.Post("/debug", append(adminGuards, app.DebugLogFlag)...)

	if debugHandler == nil {
		return
	}

	debugRoutes := r.Group("/debug/chat", readGuards...)
	debugRoutes.Get("/metrics", debugHandler.Metrics)
	debugRoutes.Get("/events", debugHandler.Events)
	debugRoutes.Get("/session", debugHandler.SessionState)
	debugRoutes.Post("/reset", append(adminGuards, debugHandler.Reset)...)
	if gatherer != nil {
		debugRoutes.Get("/prometheus", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}
