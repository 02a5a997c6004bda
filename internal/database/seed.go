package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"poolmarket/internal/models"
	"poolmarket/internal/repository"
	"poolmarket/internal/utils"
)

// SeedConfig supplies the deployment-specific values of the demo markets.
// Binary markets are denominated in ETH, so only the pari-mutuel market uses
// ETHUSDPrice.
type SeedConfig struct {
	ETHUSDPrice     decimal.Decimal
	FedContract     string
	BitcoinContract string
	TweetContract   string
	WeatherContract string
}

const (
	colorYes = "#00d395"
	colorNo  = "#ff4d4d"
)

var fedCandidates = []struct {
	name, outcome, color string
}{
	{"Kevin Warsh", "Warsh", "#3b82f6"},
	{"Judy Shelton", "Shelton", "#a855f7"},
	{"Arthur Laffer", "Laffer", "#f59e0b"},
	{"Bill Pulte", "Pulte", "#10b981"},
}

// DemoMarkets returns the markets inserted by `migrate -seed`.
func DemoMarkets(cfg SeedConfig) []models.Market {
	fed := models.Market{
		Slug:            "fed-chair",
		Title:           "Who will be the next Fed Chair?",
		Description:     "Pari-mutuel pool on the next Federal Reserve chair nomination.",
		Category:        "economics",
		ContractAddress: cfg.FedContract,
		PricingModel:    models.PricingParimutuel,
		UnitPriceUSD:    cfg.ETHUSDPrice,
		AllowAdminPanel: true,
	}
	for i, c := range fedCandidates {
		fed.Candidates = append(fed.Candidates, models.Candidate{
			Name:            c.name,
			ContractOutcome: c.outcome,
			Initials:        utils.Initials(c.name),
			Color:           c.color,
			Category:        fed.Category,
			Position:        i,
		})
	}

	binary := func(slug, title, description, category, contract string) models.Market {
		return models.Market{
			Slug:            slug,
			Title:           title,
			Description:     description,
			Category:        category,
			ContractAddress: contract,
			PricingModel:    models.PricingAMM,
			UnitPriceUSD:    decimal.NewFromInt(1),
			AllowAdminPanel: true,
			Candidates: []models.Candidate{
				{Name: "Yes", Initials: "Y", Color: colorYes, Category: category, Position: 0},
				{Name: "No", Initials: "N", Color: colorNo, Category: category, Position: 1},
			},
		}
	}

	return []models.Market{
		fed,
		binary("bitcoin-75k", "Will Bitcoin reach $75k in 24 hours?",
			"Predict if BTC will hit the target price.", "bitcoin", cfg.BitcoinContract),
		binary("base-tweet-count", "@base Today's Tweet Count",
			"Will @base post 10 or more tweets today?", "base_tweet", cfg.TweetContract),
		binary("dubai-weather", "Will it rain in Dubai in 3 days?",
			"Predict if it will rain in Dubai in 3 days.", "weather", cfg.WeatherContract),
	}
}

// SeedMarkets inserts the demo markets that are not present yet. Pools start
// at zero; the reconciler fills them from the contracts.
func SeedMarkets(ctx context.Context, repo *repository.Repository, cfg SeedConfig, log *zap.Logger) (int, error) {
	created := 0
	for _, m := range DemoMarkets(cfg) {
		_, err := repo.GetMarketBySlug(ctx, m.Slug)
		if err == nil {
			log.Info("market already seeded", zap.String("slug", m.Slug))
			continue
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return created, err
		}

		market := m
		if err := repo.CreateMarket(ctx, &market); err != nil {
			return created, fmt.Errorf("failed to seed %s: %w", m.Slug, err)
		}
		created++
		log.Info("market seeded",
			zap.String("slug", market.Slug),
			zap.Uint("market_id", market.ID),
			zap.Int("candidates", len(market.Candidates)),
		)
	}
	return created, nil
}

// SeedAdmin grants SUPER_ADMIN to wallet, creating the user if needed.
func SeedAdmin(ctx context.Context, repo *repository.Repository, wallet string) (*models.AdminUser, error) {
	wallet = strings.ToLower(strings.TrimSpace(wallet))
	if wallet == "" {
		return nil, errors.New("admin wallet is empty")
	}

	user, err := repo.GetUserByWallet(ctx, wallet)
	if errors.Is(err, repository.ErrNotFound) {
		user = &models.User{
			WalletAddress: wallet,
			Username:      utils.DisplayName(wallet),
			Chain:         models.ChainEVM,
		}
		err = repo.CreateUser(ctx, user)
	}
	if err != nil {
		return nil, err
	}

	if admin, err := repo.GetAdminByUserID(ctx, user.ID); err == nil {
		return admin, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	admin := &models.AdminUser{UserID: user.ID, Role: models.AdminRoleSuper}
	if err := repo.CreateAdmin(ctx, admin); err != nil {
		return nil, err
	}
	return admin, nil
}
