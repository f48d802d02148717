package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messenger-service/internal/auth"
	"messenger-service/internal/db"
	"messenger-service/internal/handlers"
	"messenger-service/internal/middleware"
	"messenger-service/internal/observability"
	"messenger-service/internal/rabbitmq"
	"messenger-service/internal/telemetry"
	"messenger-service/internal/ws"

	"messenger-service/internal/repositories"
)

const serviceName = "messenger-service"

func main() {
	database, err := db.Connect()
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	environment := getEnv("ENVIRONMENT", "dev")
	shutdownTracing, err := telemetry.SetupTracing(context.Background(), serviceName, environment, getEnv("OTLP_ENDPOINT", ""))
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctx)
	}()

	publisher := rabbitmq.NewPublisher(getEnv("AMQP_URL", ""), getEnv("AMQP_EXCHANGE", "messenger.events"))
	defer publisher.Close()
	log.Printf("event publisher mode=%s", rabbitmq.PublisherMode(publisher))
	observability.SetPublisher(publisher)

	emitter := telemetry.NewAuditEmitter(publisher, getEnv("AUDIT_ROUTING_KEY", "audit.messenger"), serviceName, environment)

	userRepo := repositories.NewUserRepo(database)
	groupRepo := repositories.NewGroupRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	verifier := auth.NewJWTVerifier(getEnv("JWT_SECRET", "dev-secret-change-me"), userRepo)

	registry := ws.NewRegistry()
	router := ws.NewRouter(registry)
	session := ws.NewSessionManager(registry, router, userRepo)
	wsHandler := ws.NewHandler(session, router, verifier, messageRepo, groupRepo)

	userHandler := handlers.NewUserHandler(userRepo, registry)
	messageHandler := handlers.NewMessageHandler(messageRepo, userRepo)
	groupHandler := handlers.NewGroupHandler(groupRepo, messageRepo, userRepo, registry)

	engine := gin.Default()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware(serviceName))
	engine.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier)

	engine.GET("/api/me", authMiddleware, userHandler.GetMe)
	engine.GET("/api/users", authMiddleware, userHandler.ListUsers)
	engine.GET("/api/users/:user_id", authMiddleware, userHandler.GetUser)
	engine.GET("/api/messages/:other_user_id", authMiddleware, messageHandler.GetDirectMessages)
	engine.POST("/api/groups", authMiddleware, groupHandler.CreateGroup)
	engine.GET("/api/groups", authMiddleware, groupHandler.ListGroups)
	engine.POST("/api/groups/:group_id/join", authMiddleware, groupHandler.JoinGroup)
	engine.GET("/api/groups/:group_id/messages", authMiddleware, groupHandler.GetGroupMessages)

	engine.GET("/ws/:token", wsHandler.Handle)

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterDebugRoutes(engine, emitter, getEnv("DEBUG_ROUTES", "") == "true")

	port := getEnv("PORT", "8080")
	if err := engine.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
