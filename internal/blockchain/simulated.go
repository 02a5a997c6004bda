package blockchain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

type simTxKind int

const (
	simTxBet simTxKind = iota + 1
	simTxClaim
	simTxOperator
)

type simTx struct {
	kind    simTxKind
	from    string
	outcome string
	value   *big.Int
}

// SimulatedContract is an in-memory betting contract with the same rules as
// the deployed one. It backs local development and tests.
type SimulatedContract struct {
	mu sync.Mutex

	address  string
	owner    string
	now      func() time.Time
	instance string

	endTime  int64
	resolved bool
	winner   string
	totals   map[string]*big.Int
	bets     map[string]map[string]*big.Int
	claimed  map[string]bool

	txs   map[string]simTx
	nonce uint64
}

// NewSimulatedContract creates an empty contract owned by owner.
func NewSimulatedContract(address, owner string, now func() time.Time) *SimulatedContract {
	if now == nil {
		now = time.Now
	}
	return &SimulatedContract{
		address:  address,
		owner:    owner,
		now:      now,
		instance: uuid.NewString(),
		totals:   make(map[string]*big.Int),
		bets:     make(map[string]map[string]*big.Int),
		claimed:  make(map[string]bool),
		txs:      make(map[string]simTx),
	}
}

// SimulatedBet is a confirmed stake replayed into a simulated contract.
type SimulatedBet struct {
	TxHash  string
	From    string
	Outcome string
	Value   *big.Int
}

// SimulatedClaim is a confirmed claim replayed into a simulated contract.
type SimulatedClaim struct {
	TxHash string
	From   string
}

// SimulatedRound is the persisted state of one contract round.
type SimulatedRound struct {
	EndTime  int64
	Resolved bool
	Winner   string
	Bets     []SimulatedBet
	Claims   []SimulatedClaim
}

// SimulatedRoundLoader returns the stored round of the market deployed at
// address, or nil when no market uses it.
type SimulatedRoundLoader func(address string) (*SimulatedRound, error)

// SimulatedFactory builds empty simulated contracts for a Registry.
func SimulatedFactory(owner string, now func() time.Time) Factory {
	return RestoringSimulatedFactory(owner, now, nil)
}

// RestoringSimulatedFactory builds simulated contracts seeded with the round
// returned by load, so a process restart does not lose contract state.
func RestoringSimulatedFactory(owner string, now func() time.Time, load SimulatedRoundLoader) Factory {
	return func(address string, _ WinnerGetter) (Contract, error) {
		c := NewSimulatedContract(address, owner, now)
		if load == nil {
			return c, nil
		}
		round, err := load(address)
		if err != nil {
			return nil, fmt.Errorf("failed to restore simulated contract %s: %w", address, err)
		}
		if round != nil {
			c.Restore(round)
		}
		return c, nil
	}
}

// Restore replaces the contract state with round. The round's transactions
// become verifiable again.
func (s *SimulatedContract) Restore(round *SimulatedRound) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.endTime = round.EndTime
	s.resolved = round.Resolved
	s.winner = round.Winner
	s.totals = make(map[string]*big.Int)
	s.bets = make(map[string]map[string]*big.Int)
	s.claimed = make(map[string]bool)

	for _, b := range round.Bets {
		if b.Value == nil || b.Value.Sign() <= 0 {
			continue
		}
		user := userKey(b.From)
		s.totals[b.Outcome] = new(big.Int).Add(amountOf(s.totals, b.Outcome), b.Value)
		if s.bets[user] == nil {
			s.bets[user] = make(map[string]*big.Int)
		}
		s.bets[user][b.Outcome] = new(big.Int).Add(amountOf(s.bets[user], b.Outcome), b.Value)
		if b.TxHash != "" {
			s.txs[common.HexToHash(b.TxHash).Hex()] = simTx{kind: simTxBet, from: b.From, outcome: b.Outcome, value: new(big.Int).Set(b.Value)}
		}
	}
	for _, c := range round.Claims {
		s.claimed[userKey(c.From)] = true
		if c.TxHash != "" {
			s.txs[common.HexToHash(c.TxHash).Hex()] = simTx{kind: simTxClaim, from: c.From}
		}
	}
}

// record stores tx under a hash unique to this contract instance.
func (s *SimulatedContract) record(tx simTx) string {
	s.nonce++
	hash := crypto.Keccak256Hash([]byte(fmt.Sprintf("%s:%s:%d", s.address, s.instance, s.nonce))).Hex()
	s.txs[hash] = tx
	return hash
}

func (s *SimulatedContract) bettingOpen() bool {
	return s.endTime != 0 && !s.resolved && s.now().Unix() < s.endTime
}

func userKey(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

func amountOf(m map[string]*big.Int, key string) *big.Int {
	if v, ok := m[key]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// ---- Reader ----

func (s *SimulatedContract) Owner(ctx context.Context) (string, error) {
	return s.owner, nil
}

func (s *SimulatedContract) EndTime(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endTime, nil
}

func (s *SimulatedContract) MarketResolved(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolved, nil
}

func (s *SimulatedContract) Winner(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.winner, nil
}

func (s *SimulatedContract) TotalPool(ctx context.Context) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := new(big.Int)
	for _, v := range s.totals {
		total.Add(total, v)
	}
	return total, nil
}

func (s *SimulatedContract) OutcomeTotal(ctx context.Context, outcome string) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return amountOf(s.totals, outcome), nil
}

func (s *SimulatedContract) UserBet(ctx context.Context, user, outcome string) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return amountOf(s.bets[userKey(user)], outcome), nil
}

// ---- Operator ----

func (s *SimulatedContract) StartBetting(ctx context.Context, durationMinutes int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if durationMinutes <= 0 {
		return "", revert("Duration must be greater than 0")
	}
	if s.bettingOpen() {
		return "", revert("Betting already active")
	}

	s.endTime = s.now().Add(time.Duration(durationMinutes) * time.Minute).Unix()
	s.resolved = false
	s.winner = ""
	return s.record(simTx{kind: simTxOperator, from: s.owner}), nil
}

func (s *SimulatedContract) ResolveMarket(ctx context.Context, outcome string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.resolved {
		return "", revert("Market already resolved")
	}
	if s.endTime == 0 {
		return "", revert("Betting has not started")
	}
	if s.bettingOpen() {
		return "", revert("Betting is still active")
	}

	s.resolved = true
	s.winner = outcome
	return s.record(simTx{kind: simTxOperator, from: s.owner}), nil
}

// ---- Bettor ----

func (s *SimulatedContract) checkBet(outcome string, value *big.Int) error {
	if value == nil || value.Sign() <= 0 {
		return revert("Bet amount must be greater than 0")
	}
	if strings.TrimSpace(outcome) == "" {
		return revert("Invalid outcome")
	}
	if !s.bettingOpen() {
		return revert("Betting is closed")
	}
	return nil
}

func (s *SimulatedContract) SimulateBet(ctx context.Context, from, outcome string, value *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkBet(outcome, value)
}

func (s *SimulatedContract) PlaceBet(ctx context.Context, from, outcome string, value *big.Int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkBet(outcome, value); err != nil {
		return "", err
	}

	s.totals[outcome] = new(big.Int).Add(amountOf(s.totals, outcome), value)

	user := userKey(from)
	if s.bets[user] == nil {
		s.bets[user] = make(map[string]*big.Int)
	}
	s.bets[user][outcome] = new(big.Int).Add(amountOf(s.bets[user], outcome), value)

	return s.record(simTx{kind: simTxBet, from: from, outcome: outcome, value: new(big.Int).Set(value)}), nil
}

func (s *SimulatedContract) Claim(ctx context.Context, from string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.resolved {
		return "", revert("Market not resolved")
	}
	user := userKey(from)
	if s.claimed[user] {
		return "", revert("Already claimed")
	}
	if amountOf(s.bets[user], s.winner).Sign() == 0 {
		return "", revert("No winning bet")
	}

	s.claimed[user] = true
	return s.record(simTx{kind: simTxClaim, from: from}), nil
}

// ---- Resetter ----

// Reset clears the round. Transactions stay verifiable.
func (s *SimulatedContract) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.endTime = 0
	s.resolved = false
	s.winner = ""
	s.totals = make(map[string]*big.Int)
	s.bets = make(map[string]map[string]*big.Int)
	s.claimed = make(map[string]bool)
	return nil
}

// ---- Verifier ----

func (s *SimulatedContract) lookup(txHash, from string, kind simTxKind) (simTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.txs[common.HexToHash(txHash).Hex()]
	if !ok {
		return simTx{}, fmt.Errorf("%w: unknown transaction %s", ErrTxMismatch, txHash)
	}
	if tx.kind != kind {
		return simTx{}, fmt.Errorf("%w: wrong method", ErrTxMismatch)
	}
	if !strings.EqualFold(tx.from, from) {
		return simTx{}, fmt.Errorf("%w: sent by %s", ErrTxMismatch, tx.from)
	}
	return tx, nil
}

func (s *SimulatedContract) VerifyBet(ctx context.Context, txHash, from string) (*BetTx, error) {
	tx, err := s.lookup(txHash, from, simTxBet)
	if err != nil {
		return nil, err
	}
	return &BetTx{
		Hash:    common.HexToHash(txHash).Hex(),
		From:    tx.from,
		Outcome: tx.outcome,
		Value:   new(big.Int).Set(tx.value),
	}, nil
}

func (s *SimulatedContract) VerifyClaim(ctx context.Context, txHash, from string) error {
	_, err := s.lookup(txHash, from, simTxClaim)
	return err
}
