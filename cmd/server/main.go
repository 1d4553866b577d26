package main

import (
	"fmt"
	"log"
	"net/http"

	"commune/backend/internal/auth"
	"commune/backend/internal/community"
	"commune/backend/internal/config"
	"commune/backend/internal/database"
	"commune/backend/internal/events"
	"commune/backend/internal/gateway"
	"commune/backend/internal/handler"
	"commune/backend/internal/hub"
	"commune/backend/internal/store"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func init() {
	config.LoadConfig()
}

// @title           Commune Social API
// @version         1.0
// @description     Friendship graph and real-time conversation API.
// @host            localhost:8080
// @BasePath        /api/v1
// @securityDefinitions.apiKey BearerAuth
// @in header
// @name Authorization
func main() {
	db := database.Connect(config.AppConfig.DatabaseURL)

	liveHub := hub.New()
	members := community.NewGormMembership(db)
	conversations := store.NewConversationStore(db, members)
	relationships := store.NewRelationshipStore(db, conversations, events.LogNotifier{})
	gw := gateway.New(liveHub, conversations, relationships)

	userHandler := handler.NewUserHandler(db)
	friendHandler := handler.NewFriendHandler(relationships, liveHub)
	conversationHandler := handler.NewConversationHandler(conversations, members, liveHub)

	router := gin.Default()

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check endpoint
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	// Live transport
	router.GET("/ws", auth.AuthMiddleware(), gw.ServeWS)

	// API v1 routes
	apiV1 := router.Group("/api/v1")
	{
		// Auth routes
		authRoutes := apiV1.Group("/auth")
		{
			authRoutes.POST("/register", userHandler.Register)
			authRoutes.POST("/login", userHandler.Login)
		}

		// User routes (protected)
		userRoutes := apiV1.Group("/users")
		userRoutes.Use(auth.AuthMiddleware())
		{
			userRoutes.GET("/me", userHandler.GetMe)
		}

		// Friendship routes (protected)
		friendRoutes := apiV1.Group("/friends")
		friendRoutes.Use(auth.AuthMiddleware())
		{
			friendRoutes.POST("/request", friendHandler.SendRequest)
			friendRoutes.POST("/:id/respond", friendHandler.Respond)
			friendRoutes.GET("", friendHandler.List)
			friendRoutes.GET("/pending", friendHandler.ListPending)
			friendRoutes.DELETE("/:id", friendHandler.Remove)
		}

		// Conversation routes (protected)
		conversationRoutes := apiV1.Group("/conversations")
		conversationRoutes.Use(auth.AuthMiddleware())
		{
			conversationRoutes.GET("/direct/:friendId", conversationHandler.GetDirectChannel)
			conversationRoutes.GET("/:id/messages", conversationHandler.ListMessages)
			conversationRoutes.POST("/:id/messages", conversationHandler.PostMessage)
		}

		// Community channel routes (protected)
		communityRoutes := apiV1.Group("/communities")
		communityRoutes.Use(auth.AuthMiddleware())
		{
			communityRoutes.GET("/:id/channel", conversationHandler.GetCommunityChannel)
		}
	}

	fmt.Printf("Server is running on %s\n", config.AppConfig.ListenAddr)
	fmt.Println("Swagger UI is available at http://localhost:8080/swagger/index.html")
	log.Fatal(router.Run(config.AppConfig.ListenAddr))
}
