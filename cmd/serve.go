package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vibast-solutions/ms-go-campaigns/app/controller"
	"github.com/vibast-solutions/ms-go-campaigns/app/delivery"
	"github.com/vibast-solutions/ms-go-campaigns/app/dispatch"
	"github.com/vibast-solutions/ms-go-campaigns/app/lock"
	"github.com/vibast-solutions/ms-go-campaigns/app/netmon"
	"github.com/vibast-solutions/ms-go-campaigns/app/preparer"
	"github.com/vibast-solutions/ms-go-campaigns/app/queue"
	"github.com/vibast-solutions/ms-go-campaigns/app/quota"
	"github.com/vibast-solutions/ms-go-campaigns/app/repository"
	"github.com/vibast-solutions/ms-go-campaigns/app/resume"
	"github.com/vibast-solutions/ms-go-campaigns/app/retry"
	"github.com/vibast-solutions/ms-go-campaigns/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  "Start the HTTP (Echo) server exposing campaign submission, run control, quota, and progress endpoints.",
	Run:   runServe,
}

// init registers the serve command.
func init() {
	rootCmd.AddCommand(serveCmd)
}

// deps bundles the shared wiring for serve and consume.
type deps struct {
	cfg          *config.Config
	db           *sql.DB
	rdb          *redis.Client
	orchestrator *dispatch.Orchestrator
	monitor      *netmon.Monitor
	log          *logrus.Entry
}

func (d *deps) close() {
	_ = d.db.Close()
	_ = d.rdb.Close()
}

// buildDeps loads config and wires the dispatch stack.
func buildDeps(ctx context.Context) (*deps, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %v", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logEntry := logrus.NewEntry(logger)

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %v", err)
	}
	db.SetMaxOpenConns(cfg.MySQLMaxOpen)
	db.SetMaxIdleConns(cfg.MySQLMaxIdle)
	db.SetConnMaxLifetime(cfg.MySQLMaxLife)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = db.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis: %v", err)
	}

	client, err := buildDeliveryClient(ctx, cfg)
	if err != nil {
		_ = db.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("build delivery client: %v", err)
	}

	loc, err := time.LoadLocation(cfg.ProviderTimezone)
	if err != nil {
		_ = db.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("load provider timezone: %v", err)
	}

	tracker := quota.New(rdb, cfg.QuotaDailyLimit, loc)
	store := resume.NewStore(rdb, cfg.SnapshotTTL)
	history := repository.NewOutcomeHistoryRepository(db)
	locker := lock.NewRedisLocker(rdb)

	retrier := retry.NewManager(client, tracker, retry.Config{
		BaseDelay:      cfg.RetryBaseDelay,
		AttemptTimeout: cfg.AttemptTimeout,
	}, logEntry)

	orchestrator := dispatch.New(ctx, retrier, tracker, store, history, locker, dispatch.Config{
		LockTTL: cfg.RunLockTTL,
	}, logEntry)

	monitor := netmon.New(netmon.NewHTTPProber(cfg.ProbeURL, 5*time.Second), cfg.ProbeInterval, logEntry)
	monitor.OnOffline(orchestrator.PauseAll)
	monitor.OnOnline(orchestrator.ResumeAll)

	return &deps{
		cfg:          cfg,
		db:           db,
		rdb:          rdb,
		orchestrator: orchestrator,
		monitor:      monitor,
		log:          logEntry,
	}, nil
}

// runServe wires dependencies and starts the HTTP server.
func runServe(_ *cobra.Command, _ []string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := buildDeps(ctx)
	if err != nil {
		log.Fatalf("Failed to build dependencies: %v", err)
	}
	defer d.close()

	d.monitor.Start(ctx)

	producer := queue.NewSubmissionProducer(d.rdb)
	campaignController := controller.NewCampaignController(d.orchestrator, producer)

	e := setupHTTPServer(campaignController)

	go func() {
		httpAddr := net.JoinHostPort(d.cfg.HTTPHost, d.cfg.HTTPPort)
		log.Printf("Starting HTTP server on %s", httpAddr)
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	d.monitor.Stop()
	// Cooperative stop: in-flight attempts finish and snapshots flush
	// before the process exits.
	d.orchestrator.Shutdown(shutdownCtx)

	log.Println("Server stopped")
}

// setupHTTPServer configures the Echo HTTP server and routes.
func setupHTTPServer(campaignController *controller.CampaignController) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	campaigns := e.Group("/campaigns")
	campaigns.POST("/:id/submit", campaignController.Submit)
	campaigns.POST("/:id/stop", campaignController.Stop)
	campaigns.POST("/:id/retry-failed", campaignController.RetryFailed)
	campaigns.POST("/:id/resume", campaignController.Resume)
	campaigns.GET("/:id/progress", campaignController.Progress)
	campaigns.GET("/:id/snapshot", campaignController.Snapshot)
	campaigns.DELETE("/:id/snapshot", campaignController.DiscardSnapshot)

	e.GET("/quota", campaignController.Quota)
	e.DELETE("/quota", campaignController.ResetQuota)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})

	return e
}

func buildDeliveryClient(ctx context.Context, cfg *config.Config) (delivery.Client, error) {
	switch strings.ToLower(cfg.EmailProvider) {
	case "", "ses":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, err
		}
		prep := preparer.NewChain(preparer.NewMIMEPreparer(cfg.SourceEmail))
		return delivery.NewSESClient(awsCfg, prep, cfg.SourceEmail), nil
	case "noop":
		return delivery.NewNoopClient(), nil
	default:
		return nil, fmt.Errorf("unsupported EMAIL_PROVIDER: %s", cfg.EmailProvider)
	}
}
