package main

import (
	"context"
	"flag"
	"log"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"poolmarket/internal/config"
	"poolmarket/internal/database"
	"poolmarket/internal/logger"
	"poolmarket/internal/repository"
)

func main() {
	seed := flag.Bool("seed", false, "insert the demo markets")
	admin := flag.String("admin", "", "wallet address to grant SUPER_ADMIN")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	db, err := database.Connect(cfg.Database.Driver, cfg.GetDSN(), zlog)
	if err != nil {
		zlog.Fatal("connect failed", zap.Error(err))
	}
	if err := database.AutoMigrate(db, zlog); err != nil {
		zlog.Fatal("migration failed", zap.Error(err))
	}
	if err := database.InstallNotifyTrigger(db); err != nil {
		zlog.Fatal("trigger install failed", zap.Error(err))
	}

	ctx := context.Background()
	repo := repository.NewRepository(db)

	if *seed {
		seedCfg := database.SeedConfig{
			ETHUSDPrice:     cfg.Chain.ETHUSDPrice,
			FedContract:     cfg.Contracts.Fed,
			BitcoinContract: cfg.Contracts.Bitcoin,
			TweetContract:   cfg.Contracts.BaseTweet,
			WeatherContract: cfg.Contracts.DubaiWeather,
		}
		if seedCfg.FedContract == "" {
			if cfg.Chain.Mode != config.ChainModeSimulated {
				zlog.Fatal("CONTRACT_ADDRESS_FED is required outside simulated mode")
			}
			seedCfg.FedContract = placeholderAddress("fed-chair")
			zlog.Warn("CONTRACT_ADDRESS_FED not set, using a simulated address",
				zap.String("address", seedCfg.FedContract))
		}

		created, err := database.SeedMarkets(ctx, repo, seedCfg, zlog)
		if err != nil {
			zlog.Fatal("seed failed", zap.Error(err))
		}
		zlog.Info("seed completed", zap.Int("created", created))
	}

	if *admin != "" {
		row, err := database.SeedAdmin(ctx, repo, *admin)
		if err != nil {
			zlog.Fatal("admin grant failed", zap.Error(err))
		}
		zlog.Info("admin granted", zap.String("wallet", *admin), zap.Uint("user_id", row.UserID))
	}
}

// placeholderAddress derives a stable address for a market that only lives
// in the simulated backend.
func placeholderAddress(slug string) string {
	return common.BytesToAddress(crypto.Keccak256([]byte("poolmarket:" + slug))).Hex()
}
