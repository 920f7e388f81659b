package routes

import (
	"net/http"

	"github.com/Krish-Depani/session-admission/controllers"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRoutes(router *gin.Engine, authController *controllers.AuthController, sessionController *controllers.SessionController, dashboardController *controllers.DashboardController) {
	sessions := router.Group("/api/sessions")
	{
		sessions.POST("/register", authController.AuthMiddleware(), sessionController.Register)
		sessions.POST("/heartbeat", authController.AuthMiddleware(), sessionController.Heartbeat)
		sessions.POST("/remove", authController.AuthMiddleware(), sessionController.Remove)
		sessions.GET("/validate", authController.AuthMiddleware(), sessionController.Validate)
	}

	admin := router.Group("/api/sessions", authController.AdminMiddleware())
	{
		admin.GET("/active", dashboardController.GetActiveSessions)
		admin.GET("/events", dashboardController.Stream)
		admin.DELETE("/users/:userId", sessionController.ForceRemoveUser)
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
