package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"poolmarket/internal/blockchain"
	"poolmarket/internal/repository"
)

// SimulatedRounds loads the current round of a market from the store for a
// simulated contract. Simulated contracts live in memory, so without this a
// restarted process would reconcile every market back to zero.
func SimulatedRounds(repo *repository.Repository, timeout time.Duration) blockchain.SimulatedRoundLoader {
	return func(address string) (*blockchain.SimulatedRound, error) {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		market, err := repo.GetMarketByContract(ctx, address)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		round := &blockchain.SimulatedRound{
			EndTime:  market.EndTime,
			Resolved: market.Resolved,
			Winner:   market.WinningOutcome,
		}

		bets, err := repo.ListEpochBets(ctx, market.ID, market.Epoch)
		if err != nil {
			return nil, err
		}
		for _, b := range bets {
			candidate, ok := market.CandidateByID(b.CandidateID)
			if !ok {
				return nil, fmt.Errorf("bet %s references unknown candidate %d", b.TxHash, b.CandidateID)
			}
			value, ok := new(big.Int).SetString(b.ContractValueWei, 10)
			if !ok {
				return nil, fmt.Errorf("bet %s has invalid wei value %q", b.TxHash, b.ContractValueWei)
			}
			round.Bets = append(round.Bets, blockchain.SimulatedBet{
				TxHash:  b.TxHash,
				From:    b.UserAddress,
				Outcome: candidate.Outcome(),
				Value:   value,
			})
		}

		claims, err := repo.ListEpochClaims(ctx, market.ID, market.Epoch)
		if err != nil {
			return nil, err
		}
		for _, c := range claims {
			round.Claims = append(round.Claims, blockchain.SimulatedClaim{TxHash: c.TxHash, From: c.UserAddress})
		}
		return round, nil
	}
}
