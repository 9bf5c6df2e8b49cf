package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"

	"github.com/synkgo/rewards/internal/config"
	"github.com/synkgo/rewards/internal/db"
	"github.com/synkgo/rewards/internal/gift"
	rewardshttp "github.com/synkgo/rewards/internal/http"
	"github.com/synkgo/rewards/internal/models"
	"github.com/synkgo/rewards/internal/moderation"
	"github.com/synkgo/rewards/internal/notify"
	"github.com/synkgo/rewards/internal/payout"
	"github.com/synkgo/rewards/internal/security"
	"github.com/synkgo/rewards/internal/settings"
	"github.com/synkgo/rewards/internal/store"
	"github.com/synkgo/rewards/internal/withdrawal"
)

func main() {
	if errEnv := godotenv.Load(); errEnv != nil {
		log.Info("no .env file found, reading environment directly")
	}

	confPath := flag.String("conf", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, errLoad := config.Load(*confPath)
	if errLoad != nil {
		log.WithError(errLoad).Fatal("load configuration")
	}

	setupLogging(cfg)

	conn, errOpen := db.Open(cfg.DatabaseDSN)
	if errOpen != nil {
		log.WithError(errOpen).Fatal("open database")
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		log.WithError(errMigrate).Fatal("migrate database")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if errRefresh := settings.RefreshDBConfigSnapshot(ctx, conn); errRefresh != nil {
		log.WithError(errRefresh).Fatal("load settings snapshot")
	}
	if errAdmin := bootstrapAdmin(ctx, conn, cfg.Admin); errAdmin != nil {
		log.WithError(errAdmin).Fatal("bootstrap admin account")
	}

	gateway, errGateway := payout.NewEthGateway(payout.EthConfig{
		RPCEndpoint:   cfg.Chain.RPCEndpoint,
		ChainID:       cfg.Chain.ChainID,
		TokenContract: cfg.Chain.TokenContract,
		PrivateKey:    cfg.Chain.PrivateKey,
		TokenPerPoint: decimal.NewFromFloat(cfg.Chain.TokenPerPoint),
		TokenDecimals: cfg.Chain.TokenDecimals,
	})
	if errGateway != nil {
		log.WithError(errGateway).Fatal("connect payout gateway")
	}
	defer gateway.Close()
	log.WithField("wallet", gateway.WalletAddress()).Info("payout gateway connected")

	st := store.New(conn)
	notifier := notify.NewLogNotifier(cfg.Admin.TelegramID)

	moderationEngine := moderation.NewEngine(st, notifier, cfg.Admin.TelegramID)
	giftEngine := gift.NewEngine(st, notifier)
	withdrawalEngine := withdrawal.NewEngine(st, gateway, notifier)

	withdrawal.NewReconciler(st, withdrawalEngine, notifier).Start(ctx)
	withdrawal.NewMonitor(st, gateway, notifier).Start(ctx)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := rewardshttp.NewRouter(rewardshttp.Deps{
		DB:           conn,
		Store:        st,
		Moderation:   moderationEngine,
		Gift:         giftEngine,
		Withdrawal:   withdrawalEngine,
		Gateway:      gateway,
		ServiceToken: cfg.ServiceToken,
		JWTSecret:    cfg.JWTSecret,
		TokenExpiry:  cfg.TokenExpiry,
		AdminID:      cfg.Admin.TelegramID,
	})

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("listen", cfg.Listen).Info("server started")
		if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			log.WithError(errServe).Fatal("server error")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
		log.WithError(errShutdown).Warn("shutdown incomplete")
	}
}

// setupLogging routes logs to stdout and a rotated file.
func setupLogging(cfg *config.Config) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	if cfg.LogFile != "" {
		log.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}))
	}
}

// bootstrapAdmin creates the console account on first boot. An existing
// row is left untouched so password changes survive restarts.
func bootstrapAdmin(ctx context.Context, conn *gorm.DB, adminCfg config.AdminConfig) error {
	if adminCfg.Username == "" || adminCfg.Password == "" {
		return errors.New("admin username and password are required")
	}

	var existing models.Admin
	errFind := conn.WithContext(ctx).
		First(&existing, "username = ?", adminCfg.Username).Error
	if errFind == nil {
		return nil
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return errFind
	}

	hash, errHash := security.HashPassword(adminCfg.Password)
	if errHash != nil {
		return errHash
	}
	row := models.Admin{
		Username:   adminCfg.Username,
		Password:   hash,
		TelegramID: adminCfg.TelegramID,
	}
	if errCreate := conn.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return errCreate
	}
	log.WithField("username", adminCfg.Username).Info("admin account created")
	return nil
}
