package main // Entry point package

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/charaka/user-auth-service/internal/config"
	"github.com/charaka/user-auth-service/internal/database"
	"github.com/charaka/user-auth-service/internal/handler"
	"github.com/charaka/user-auth-service/internal/mailer"
	"github.com/charaka/user-auth-service/internal/queue"
	"github.com/charaka/user-auth-service/internal/repository"
	"github.com/charaka/user-auth-service/internal/router"
	"github.com/charaka/user-auth-service/internal/storage"
)

func main() {
	// Load .env when present; deployed environments set vars directly.
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg := config.Load()

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	// Redis is optional; a nil client disables rate limiting and caching.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable, rate limiting and response cache disabled")
	}

	users := repository.NewUserRepo(db)
	roles := repository.NewRoleRepo(db)
	otps := repository.NewOTPRepo(db)
	mail := mailer.NewSMTPMailer(cfg)
	avatars := storage.NewAvatarStore(os.Getenv("UPLOAD_DIR"))

	authHandler := handler.NewAuthHandler(cfg, users, roles, otps, mail)
	userHandler := handler.NewUserHandler(cfg, users, roles, mail, avatars)

	// Audit trail consumer runs for the lifetime of the process and
	// reconnects on broker failures.
	go func() {
		if err := queue.StartAuditConsumer(); err != nil {
			log.Printf("audit consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterAuth(e, authHandler, userHandler, cfg, rdb)
	router.RegisterUsers(e, userHandler, cfg, rdb)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
