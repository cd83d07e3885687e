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
	"github.com/prometheus/client_golang/prometheus/collectors"

	"attendguard/internal/attendance"
	"attendguard/internal/audit"
	"attendguard/internal/auth"
	"attendguard/internal/cloudinary"
	"attendguard/internal/config"
	"attendguard/internal/factor"
	"attendguard/internal/faceclient"
	"attendguard/internal/httpapi"
	"attendguard/internal/httpmiddleware"
	"attendguard/internal/identity"
	"attendguard/internal/matcher"
	"attendguard/internal/metrics"
	"attendguard/internal/narrate"
	"attendguard/internal/notify"
	"attendguard/internal/presence"
	"attendguard/internal/prompt"
	"attendguard/internal/queue"
	"attendguard/internal/report"
	"attendguard/internal/session"
	"attendguard/internal/store"
)

// Worker owns every session: it consumes frames, verifies people at the
// console, watches network presence and sends the daily report.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("worker failed: %v", err)
	}
	log.Println("worker stopped")
}

func run(ctx context.Context, cfg config.App) error {
	if err := cfg.ResolveSecrets(ctx, nil); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	loc, err := cfg.Policy.Location()
	if err != nil {
		return err
	}

	db, err := store.NewDB(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return err
	}

	roster, err := loadRoster(ctx, cfg, db)
	if err != nil {
		return err
	}
	log.Printf("roster loaded: %d identities, dimension %d", roster.Len(), roster.Dimension())

	var redisClient *store.Redis
	if cfg.QueueBackend == "redis" {
		redisClient = store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
	}
	frames, err := queue.New(cfg.QueueBackend, redisClient.Raw(), cfg.FrameQueue, 64)
	if err != nil {
		return err
	}
	notifications, err := queue.New(cfg.QueueBackend, redisClient.Raw(), cfg.NotifyQueue, 256)
	if err != nil {
		return err
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)

	repo := attendance.NewRepository(db)

	var alerter audit.Alerter
	var slackClient *notify.Slack
	if cfg.Slack.Enabled() {
		slackClient = notify.NewSlack(nil, cfg.Slack.Token, cfg.Slack.InfoChannel, cfg.Slack.ErrorChannel)
		alerter = slackClient
	}
	var mailer *notify.Mailer
	if cfg.Email.Enabled() {
		mailer, err = notify.NewMailer(ctx, nil, cfg.Email.Sender, cfg.Email.Receiver)
		if err != nil {
			log.Printf("email disabled: %v", err)
		}
	}

	dispatcher := audit.NewDispatcher(repo, notifications, alerter, m)
	if mailer != nil {
		dispatcher.AddChannel("email", mailer)
	}
	if slackClient != nil {
		dispatcher.AddChannel("slack", slackClient)
	}

	registry := session.NewRegistry(roster, dispatcher, loc)
	today := time.Now().In(loc).Format(session.DateLayout)
	prior, err := repo.List(ctx, attendance.Filter{Date: today})
	if err != nil {
		return err
	}
	if n := registry.Restore(prior, time.Now()); n > 0 {
		log.Printf("restored %d session(s) from today's records", n)
	}

	discovery, err := presence.New(cfg.Presence.Discovery, cfg.Presence.ARPPath, cfg.Presence.Devices)
	if err != nil {
		return err
	}
	monitor := presence.NewMonitor(registry, discovery, m)
	monitor.Interval = cfg.Presence.Interval
	monitor.Timeout = cfg.Presence.Timeout

	codes, err := factor.NewCodeVerifier(cfg.Policy.CodeSecret, cfg.Policy.CodeStep, monitor)
	if err != nil {
		return err
	}
	narrator := narrate.Multi{narrate.Log{}, narrate.NewWriter(os.Stdout)}
	svc := attendance.NewService(
		registry,
		factor.NewPINVerifier(roster),
		codes,
		prompt.NewConsole(os.Stdin, os.Stdout),
		narrator,
		m,
		attendance.Options{Cooldown: cfg.Policy.Cooldown, FactorTimeout: cfg.Policy.FactorTimeout},
	)

	metric, ok := matcher.MetricByName(cfg.Match.Metric)
	if !ok {
		log.Printf("unknown match metric %q, using euclidean", cfg.Match.Metric)
	}
	face := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip)

	// Check face service health on startup
	if !cfg.FaceSkip {
		if err := face.Health(ctx); err != nil {
			log.Printf("WARNING: face service not available: %v", err)
			log.Println("frames will fail until it comes up")
		} else {
			log.Println("face service connected")
		}
	}
	pipeline := attendance.NewPipeline(face, matcher.New(metric, cfg.Match.Tolerance, cfg.Match.ConfidenceFloor), roster, svc, narrator, m)

	go func() {
		if err := monitor.Run(ctx); err != nil {
			log.Printf("presence monitor stopped: %v", err)
		}
	}()

	notifyMsgs, err := notifications.Consume(ctx)
	if err != nil {
		return err
	}
	go dispatcher.Consume(ctx, notifyMsgs)

	var archiver report.Archiver
	if cfg.Report.Bucket != "" {
		s3a, err := report.NewS3Archiver(ctx, nil, cfg.Report.Bucket)
		if err != nil {
			log.Printf("report archive disabled: %v", err)
		} else {
			archiver = s3a
		}
	}
	var reportMailer notify.Notifier
	if mailer != nil {
		reportMailer = mailer
	}
	job := report.NewJob(repo, reportMailer, archiver, loc)
	job.Interval = cfg.Report.Interval
	job.Start(ctx)

	servers := []*http.Server{statusServer(cfg, registry, promReg, db, redisClient)}
	if cfg.QueueBackend == "memory" {
		// An in-memory queue cannot cross processes, so intake runs here.
		servers = append(servers, intakeServer(cfg, repo, frames, loc))
	}
	for _, srv := range servers {
		go func(srv *http.Server) {
			log.Printf("listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("listen %s: %v", srv.Addr, err)
			}
		}(srv)
	}

	frameMsgs, err := frames.Consume(ctx)
	if err != nil {
		return err
	}
	log.Println("worker started, waiting for frames...")
	pipeline.Serve(ctx, frameMsgs)

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	for _, srv := range servers {
		_ = srv.Shutdown(shutdownCtx)
	}
	dispatcher.Wait()
	return nil
}

func loadRoster(ctx context.Context, cfg config.App, db *store.DB) (*identity.Roster, error) {
	if cfg.RosterPath != "" {
		return identity.Load(ctx, identity.FileSource{Path: cfg.RosterPath})
	}
	return identity.Load(ctx, identity.NewSQLSource(db))
}

func statusServer(cfg config.App, registry *session.Registry, reg *prometheus.Registry, db *store.DB, rc *store.Redis) *http.Server {
	checks := []httpapi.Check{{Name: "db", OK: func(c *gin.Context) bool {
		return db.Client.PingContext(c.Request.Context()) == nil
	}}}
	if rc != nil {
		checks = append(checks, httpapi.Check{Name: "redis", OK: func(c *gin.Context) bool {
			return rc.Healthy(c.Request.Context())
		}})
	}
	r := httpapi.NewRouter(nil)
	(&httpapi.Status{Registry: registry, Gatherer: reg, Checks: checks}).Register(r)
	return &http.Server{
		Addr:         ":" + cfg.StatusPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func intakeServer(cfg config.App, repo *attendance.Repository, frames queue.Queue, loc *time.Location) *http.Server {
	intake := &httpapi.Intake{
		Devices: repo,
		Records: repo,
		Issuer: auth.Issuer{
			Name:       cfg.JWTIssuer,
			Key:        cfg.JWTSigningKey,
			AccessTTL:  cfg.AccessTTL,
			RefreshTTL: cfg.RefreshTTL,
		},
		Frames:   frames,
		Location: loc,
	}
	if cfg.Cloudinary.Enabled() {
		intake.Uploader = cloudinary.New(cfg.Cloudinary.CloudName, cfg.Cloudinary.APIKey, cfg.Cloudinary.APISecret, cfg.Cloudinary.Folder)
	}
	r := httpapi.NewRouter(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin))
	intake.Register(r)
	return &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
