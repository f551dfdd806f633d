package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/cppla/bottlecaps/config"
	"github.com/cppla/bottlecaps/controllers"
	"github.com/cppla/bottlecaps/jobs"
	"github.com/cppla/bottlecaps/routes"
	"github.com/cppla/bottlecaps/services"
	"github.com/cppla/bottlecaps/store"
	"github.com/cppla/bottlecaps/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}
	defer func() { _ = utils.Logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		utils.Sugar.Fatalf("invalid configuration: %v", err)
	}

	var st store.Store
	if cfg.DBDriver == config.DriverMemory {
		utils.Sugar.Warn("using the in-memory store; data is lost on restart")
		st = store.NewMemoryStore()
	} else {
		st = store.NewGormStore(config.InitDatabase(config.Models()...))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	media, err := utils.NewMediaStorage(ctx, cfg)
	if err != nil {
		utils.Sugar.Fatalf("media storage: %v", err)
	}

	claims := services.NewClaimService(st, services.ClaimConfig{
		Cooldown:      cfg.ClaimCooldown,
		BaseAmount:    cfg.BaseAmount(),
		ReferralBonus: cfg.ReferralBonusAmount(),
	}, utils.Logger.Named("claims"))

	r := routes.SetupRouter(routes.Deps{
		Store:        st,
		Claims:       claims,
		Analytics:    services.NewAnalyticsService(st),
		Promotions:   services.NewPromotionService(st),
		Admin:        services.NewAdminService(st, utils.Logger.Named("admin")),
		MediaStorage: media,
	})

	var onShutdown []func()
	if !cfg.JobsDisabled {
		scheduler := jobs.NewScheduler(st, func(ctx context.Context) error {
			_, err := controllers.RefreshLeaderboard(ctx, st)
			return err
		}, utils.Logger.Named("jobs"))
		if err := scheduler.Start(ctx, jobs.Specs{
			LapsedStreaks: cfg.LapsedStreakSpec,
			Leaderboard:   cfg.LeaderboardSpec,
		}); err != nil {
			utils.Sugar.Fatalf("scheduler: %v", err)
		}
		onShutdown = append(onShutdown, func() {
			cancel()
			scheduler.Stop()
		})
	}

	utils.Logger.Info("starting server (graceful)",
		zap.String("port", cfg.AppPort),
		zap.String("db_driver", cfg.DBDriver),
		zap.Duration("claim_cooldown", cfg.ClaimCooldown),
	)
	if err := utils.GraceServer(":"+cfg.AppPort, r, onShutdown...); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
