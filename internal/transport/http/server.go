package http

import (
	"github.com/gin-gonic/gin"

	"enterprise-kb/internal/bootstrap"
	"enterprise-kb/internal/transport/http/handler"
	"enterprise-kb/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.MaxMultipartMemory = 8 << 20

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	services := app.Services
	authHandler := handler.NewAuthHandler(services.Auth)
	documentHandler := handler.NewDocumentHandler(services.Documents, int64(app.Config.Storage.MaxFileSize))
	chatHandler := handler.NewChatHandler(services.Answerer)
	conversationHandler := handler.NewConversationHandler(services.Conversations)
	authRequired := middleware.AuthJWT(app.Config.Auth.JWTSecret)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", authRequired, authHandler.Me)

	documentGroup := v1.Group("/documents")
	documentGroup.Use(authRequired)
	documentGroup.POST("/upload", documentHandler.Upload)
	documentGroup.GET("", documentHandler.List)
	documentGroup.GET("/:id", documentHandler.Get)
	documentGroup.DELETE("/:id", documentHandler.Delete)
	documentGroup.POST("/:id/reindex", documentHandler.Reindex)

	chatGroup := v1.Group("/chat")
	chatGroup.Use(authRequired)
	chatGroup.POST("/completions", chatHandler.Completions)
	chatGroup.POST("/stream", chatHandler.Stream)

	conversationGroup := v1.Group("/conversations")
	conversationGroup.Use(authRequired)
	conversationGroup.GET("", conversationHandler.List)
	conversationGroup.GET("/:id", conversationHandler.Get)
	conversationGroup.DELETE("/:id", conversationHandler.Delete)

	return router
}
