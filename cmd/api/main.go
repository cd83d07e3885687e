package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"attendguard/internal/attendance"
	"attendguard/internal/auth"
	"attendguard/internal/cloudinary"
	"attendguard/internal/config"
	"attendguard/internal/httpapi"
	"attendguard/internal/httpmiddleware"
	"attendguard/internal/queue"
	"attendguard/internal/store"
)

// API accepts frames from capture devices and serves attendance history.
// Verification happens in the worker.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx := context.Background()

	db, err := store.NewDB(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return err
	}

	var redisClient *store.Redis
	if cfg.QueueBackend == "redis" {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
	}
	q, err := queue.New(cfg.QueueBackend, redisClient.Raw(), cfg.FrameQueue, 64)
	if err != nil {
		return err
	}

	repo := attendance.NewRepository(db)

	// Cloudinary client (nil when not configured)
	var uploader httpapi.Uploader
	if cfg.Cloudinary.Enabled() {
		uploader = cloudinary.New(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret, cfg.Cloudinary.Folder)
		log.Println("Cloudinary configured:", cfg.Cloudinary.CloudName)
	} else {
		log.Println("Cloudinary not configured, only image_url submissions accepted")
	}

	loc, err := cfg.Policy.Location()
	if err != nil {
		return err
	}

	checks := []httpapi.Check{{Name: "db", OK: func(c *gin.Context) bool {
		return db.Client.PingContext(c.Request.Context()) == nil
	}}}
	if redisClient != nil {
		checks = append(checks, httpapi.Check{Name: "redis", OK: func(c *gin.Context) bool {
			return redisClient.Healthy(c.Request.Context())
		}})
	}

	r := httpapi.NewRouter(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin))
	intake := &httpapi.Intake{
		Devices: repo,
		Records: repo,
		Issuer: auth.Issuer{
			Name:       cfg.JWTIssuer,
			Key:        cfg.JWTSigningKey,
			AccessTTL:  cfg.AccessTTL,
			RefreshTTL: cfg.RefreshTTL,
		},
		Uploader: uploader,
		Frames:   q,
		Location: loc,
		Checks:   checks,
	}
	intake.Register(r)
	(&httpapi.Status{Gatherer: prometheus.DefaultGatherer}).RegisterMetrics(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("api listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down api...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Println("api stopped")
	return nil
}
