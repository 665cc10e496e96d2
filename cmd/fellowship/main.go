package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/gracefellowship/fellowship/internal/api"
	"github.com/gracefellowship/fellowship/internal/auth"
	"github.com/gracefellowship/fellowship/internal/config"
	"github.com/gracefellowship/fellowship/internal/database"
	"github.com/gracefellowship/fellowship/internal/gateway"
	"github.com/gracefellowship/fellowship/internal/notify"
	"github.com/gracefellowship/fellowship/internal/payments"
	redisclient "github.com/gracefellowship/fellowship/internal/redis"
	"github.com/gracefellowship/fellowship/internal/scheduler"
	"github.com/gracefellowship/fellowship/internal/service"
	"github.com/gracefellowship/fellowship/internal/snowflake"
	"github.com/gracefellowship/fellowship/internal/storage"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Infrastructure ---

	pool, err := database.NewPostgresPool(sigCtx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	rdb, err := redisclient.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	ids, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		log.Fatalf("snowflake: %v", err)
	}
	tokenSvc := auth.NewTokenService(cfg.JWTSecret)

	var media service.MediaStorage
	if cfg.MinIOEndpoint != "" {
		store, err := storage.NewMediaStore(sigCtx, cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOBucket, cfg.MinIOUseSSL)
		if err != nil {
			log.Fatalf("minio: %v", err)
		}
		media = store
	} else {
		slog.Warn("MINIO_ENDPOINT not set, sermon uploads disabled")
	}

	var processor payments.Processor
	if cfg.PaymentsEnabled() {
		processor = payments.NewStripe(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
	} else {
		slog.Warn("stripe keys not set, donations disabled")
	}

	// --- Repositories ---

	users := database.NewUserRepository(pool)
	rooms := database.NewRoomRepository(pool)
	messages := database.NewMessageRepository(pool)
	campaigns := database.NewCampaignRepository(pool)
	donations := database.NewDonationRepository(pool)
	announcements := database.NewAnnouncementRepository(pool)
	sermons := database.NewSermonRepository(pool)

	// --- Notifications ---

	var pusher notify.Pusher = notify.LogPusher{}
	if cfg.FirebaseCredentials != "" {
		fcm, err := notify.NewFCMPusher(sigCtx, cfg.FirebaseCredentials)
		if err != nil {
			log.Fatalf("firebase: %v", err)
		}
		pusher = fcm
	}
	deliverer := notify.NewDeliverer(users, pusher)

	var (
		queue  notify.Enqueuer
		worker *notify.Worker
	)
	if cfg.AMQPURL != "" {
		amqpQueue, err := notify.DialAMQP(cfg.AMQPURL)
		if err != nil {
			log.Fatalf("amqp: %v", err)
		}
		defer amqpQueue.Close()
		if worker, err = amqpQueue.NewWorker(deliverer, 10); err != nil {
			log.Fatalf("amqp worker: %v", err)
		}
		queue = amqpQueue
	} else {
		queue = notify.NewInlineQueue(deliverer)
	}

	// --- Gateway ---

	gwManager := gateway.NewManager(tokenSvc, users, rdb)

	// --- Services ---

	perms := service.NewPermissionChecker(users)
	authSvc := service.NewAuthService(users, tokenSvc, rdb, ids)
	userSvc := service.NewUserService(users, perms)
	messageSvc := service.NewMessageService(rooms, messages, ids, gwManager, perms, cfg.BlockedWords)
	campaignSvc := service.NewCampaignService(campaigns, ids, gwManager, perms)
	donationSvc := service.NewDonationService(donations, campaigns, processor, queue, ids, gwManager, perms,
		cfg.Currency, service.CheckoutURLs{Success: cfg.CheckoutSuccessURL, Cancel: cfg.CheckoutCancelURL})
	announcementSvc := service.NewAnnouncementService(announcements, queue, ids, gwManager, perms)
	sermonSvc := service.NewSermonService(sermons, media, ids, perms)

	deps := &api.Dependencies{
		Auth:          api.NewAuthHandler(authSvc),
		Users:         api.NewUserHandler(userSvc),
		Messages:      api.NewMessageHandler(messageSvc),
		Campaigns:     api.NewCampaignHandler(campaignSvc, donationSvc),
		Donations:     api.NewDonationHandler(donationSvc),
		Announcements: api.NewAnnouncementHandler(announcementSvc),
		Sermons:       api.NewSermonHandler(sermonSvc),
		Gateway:       gwManager,
		TokenService:  tokenSvc,
		Redis:         rdb,
	}

	// --- Scheduled jobs ---

	sched := scheduler.New()
	if err := sched.Add("close-expired-campaigns", cfg.CampaignCloseCron, scheduler.CloseExpiredCampaigns(campaignSvc)); err != nil {
		log.Fatalf("scheduler: %v", err)
	}

	// --- Echo ---

	e := echo.New()
	e.HidePort = true
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	api.SetupRouter(e, deps)

	// --- Start ---

	g, ctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		slog.Info("fellowship starting", "addr", cfg.ServerAddr)
		if err := e.Start(cfg.ServerAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return sched.Run(ctx) })
	if worker != nil {
		g.Go(func() error { return worker.Run(ctx) })
	}
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		gwManager.Shutdown(shutdownCtx)
		return e.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("fellowship: %v", err)
	}
}
