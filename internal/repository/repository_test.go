package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"poolmarket/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Market{},
		&models.Candidate{},
		&models.Bet{},
		&models.PricePoint{},
		&models.Claim{},
		&models.AdminUser{},
		&models.AdminLog{},
	)
	if err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	return db
}

func seedMarket(t *testing.T, repo *Repository) *models.Market {
	t.Helper()
	market := &models.Market{
		Slug:         "fed-chair",
		Title:        "Who will be the next Fed chair?",
		Category:     "economics",
		PricingModel: models.PricingParimutuel,
		UnitPriceUSD: decimal.NewFromInt(2000),
		Candidates: []models.Candidate{
			{Name: "Alice", Initials: "A", PoolAmount: decimal.NewFromInt(10), Category: "economics", Position: 0},
			{Name: "Bob", Initials: "B", PoolAmount: decimal.NewFromInt(10), Category: "economics", Position: 1},
		},
	}
	if err := repo.CreateMarket(context.Background(), market); err != nil {
		t.Fatalf("CreateMarket failed: %v", err)
	}
	return market
}

func TestFindMarketByIDAndSlug(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()
	market := seedMarket(t, repo)

	byID, err := repo.FindMarket(ctx, fmt.Sprint(market.ID))
	if err != nil {
		t.Fatalf("FindMarket by id failed: %v", err)
	}
	if len(byID.Candidates) != 2 || byID.Candidates[0].Name != "Alice" {
		t.Errorf("expected ordered candidates, got %+v", byID.Candidates)
	}

	bySlug, err := repo.FindMarket(ctx, "fed-chair")
	if err != nil {
		t.Fatalf("FindMarket by slug failed: %v", err)
	}
	if bySlug.ID != market.ID {
		t.Errorf("expected market %d, got %d", market.ID, bySlug.ID)
	}

	if _, err := repo.FindMarket(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordBetIncrementsPool(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()
	market := seedMarket(t, repo)
	alice := market.Candidates[0]

	bet := &models.Bet{
		MarketID:         market.ID,
		CandidateID:      alice.ID,
		UserAddress:      "0xabc",
		Amount:           decimal.NewFromInt(5),
		ContractValueWei: "2500000000000000",
		TxHash:           "0x01",
		Status:           models.BetStatusConfirmed,
	}
	if err := repo.RecordBet(ctx, bet); err != nil {
		t.Fatalf("RecordBet failed: %v", err)
	}

	updated, _ := repo.GetMarket(ctx, market.ID)
	if !updated.Candidates[0].PoolAmount.Equal(decimal.NewFromInt(15)) {
		t.Errorf("expected pool 15, got %s", updated.Candidates[0].PoolAmount)
	}
	if !updated.TotalPool().Equal(decimal.NewFromInt(25)) {
		t.Errorf("expected total 25, got %s", updated.TotalPool())
	}

	// Same tx hash again must fail and leave the pool alone.
	dup := *bet
	dup.ID = uuid.Nil
	if err := repo.RecordBet(ctx, &dup); err == nil {
		t.Fatal("expected duplicate tx hash to fail")
	}
	again, _ := repo.GetMarket(ctx, market.ID)
	if !again.Candidates[0].PoolAmount.Equal(decimal.NewFromInt(15)) {
		t.Errorf("expected pool to stay 15, got %s", again.Candidates[0].PoolAmount)
	}

	stakes, err := repo.UserStakes(ctx, market.ID, 0, "0xabc")
	if err != nil {
		t.Fatalf("UserStakes failed: %v", err)
	}
	if !stakes[alice.ID].Equal(decimal.NewFromInt(5)) {
		t.Errorf("expected stake 5, got %s", stakes[alice.ID])
	}
}

func TestRecordBetConcurrentIncrements(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()
	market := seedMarket(t, repo)
	bob := market.Candidates[1]

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- repo.RecordBet(ctx, &models.Bet{
				MarketID:         market.ID,
				CandidateID:      bob.ID,
				UserAddress:      "0xdef",
				Amount:           decimal.NewFromInt(1),
				ContractValueWei: "1",
				TxHash:           fmt.Sprintf("0x%02d", i),
				Status:           models.BetStatusConfirmed,
			})
		}(i)
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		}
	}

	updated, _ := repo.GetMarket(ctx, market.ID)
	want := decimal.NewFromInt(int64(10 + succeeded))
	if !updated.Candidates[1].PoolAmount.Equal(want) {
		t.Errorf("expected pool %s after %d bets, got %s", want, succeeded, updated.Candidates[1].PoolAmount)
	}
}

func TestResetMarketStartsNewEpoch(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()
	market := seedMarket(t, repo)

	if err := repo.StartMarket(ctx, market.ID, 1_900_000_000); err != nil {
		t.Fatalf("StartMarket failed: %v", err)
	}
	if err := repo.ResolveMarket(ctx, market.ID, "Alice"); err != nil {
		t.Fatalf("ResolveMarket failed: %v", err)
	}

	epoch, err := repo.ResetMarket(ctx, market.ID)
	if err != nil {
		t.Fatalf("ResetMarket failed: %v", err)
	}
	if epoch != 1 {
		t.Errorf("expected epoch 1, got %d", epoch)
	}

	reset, _ := repo.GetMarket(ctx, market.ID)
	if reset.EndTime != 0 || reset.Resolved || reset.WinningOutcome != "" {
		t.Errorf("expected pending market, got end=%d resolved=%v winner=%q", reset.EndTime, reset.Resolved, reset.WinningOutcome)
	}
	if !reset.TotalPool().IsZero() {
		t.Errorf("expected zero pools, got %s", reset.TotalPool())
	}

	if _, err := repo.ResetMarket(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPricePointsAreSequencedPerEpoch(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()
	market := seedMarket(t, repo)

	for _, p := range []float64{0.5, 0.6, 0.55} {
		if _, err := repo.AppendPricePoint(ctx, market.ID, 0, p); err != nil {
			t.Fatalf("AppendPricePoint failed: %v", err)
		}
	}
	first, err := repo.AppendPricePoint(ctx, market.ID, 1, 0.7)
	if err != nil {
		t.Fatalf("AppendPricePoint failed: %v", err)
	}
	if first.Seq != 1 {
		t.Errorf("expected new epoch to start at seq 1, got %d", first.Seq)
	}

	points, err := repo.ListPricePoints(ctx, market.ID, 0)
	if err != nil {
		t.Fatalf("ListPricePoints failed: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("expected 3 points, got %d", len(points))
	}
	for i, p := range points {
		if p.Seq != i+1 {
			t.Errorf("point %d: expected seq %d, got %d", i, i+1, p.Seq)
		}
	}
	if points[1].PriceYes != 0.6 {
		t.Errorf("expected second price 0.6, got %f", points[1].PriceYes)
	}
}

func TestListCandidatesByCategory(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()
	market := seedMarket(t, repo)

	err := repo.InsertCandidates(ctx, []models.Candidate{
		{MarketID: market.ID, Name: "Carol", Category: "weather", Position: 2},
	})
	if err != nil {
		t.Fatalf("InsertCandidates failed: %v", err)
	}

	weather, err := repo.ListCandidates(ctx, "weather")
	if err != nil {
		t.Fatalf("ListCandidates failed: %v", err)
	}
	if len(weather) != 1 || weather[0].Name != "Carol" {
		t.Errorf("expected only Carol, got %+v", weather)
	}

	all, _ := repo.ListCandidates(ctx, "")
	if len(all) != 3 {
		t.Errorf("expected 3 candidates, got %d", len(all))
	}

	if err := repo.UpdatePoolAmount(ctx, weather[0].ID, decimal.NewFromFloat(2.5)); err != nil {
		t.Fatalf("UpdatePoolAmount failed: %v", err)
	}
	updated, _ := repo.ListCandidates(ctx, "weather")
	if !updated[0].PoolAmount.Equal(decimal.NewFromFloat(2.5)) {
		t.Errorf("expected pool 2.5, got %s", updated[0].PoolAmount)
	}
}
