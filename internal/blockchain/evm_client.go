package blockchain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"
)

// bettingABI is the interface shared by every deployed betting contract.
const bettingABI = `[
	{"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"endTime","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"marketResolved","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"winningOutcome","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"winningCandidate","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"totalPool","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"outcomeTotals","stateMutability":"view","inputs":[{"name":"outcome","type":"string"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"userBets","stateMutability":"view","inputs":[{"name":"user","type":"address"},{"name":"outcome","type":"string"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"startBetting","stateMutability":"nonpayable","inputs":[{"name":"durationMinutes","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"placeBet","stateMutability":"payable","inputs":[{"name":"outcome","type":"string"}],"outputs":[]},
	{"type":"function","name":"resolveMarket","stateMutability":"nonpayable","inputs":[{"name":"outcome","type":"string"}],"outputs":[]},
	{"type":"function","name":"claim","stateMutability":"nonpayable","inputs":[],"outputs":[]}
]`

const receiptPollInterval = 2 * time.Second

// EVMClient holds the RPC connection and the operator key used for
// owner-only transactions.
type EVMClient struct {
	eth      *ethclient.Client
	rpcURL   string
	chainID  *big.Int
	key      *ecdsa.PrivateKey
	operator common.Address
	abi      abi.ABI
	logger   *zap.Logger

	callTimeout time.Duration
	txTimeout   time.Duration
}

// DialEVM connects to rpcURL and checks that it serves chainID.
// operatorKeyHex may be empty, in which case writes fail with
// ErrNoOperatorKey.
func DialEVM(ctx context.Context, rpcURL string, chainID int64, operatorKeyHex string, logger *zap.Logger) (*EVMClient, error) {
	parsed, err := abi.JSON(strings.NewReader(bettingABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract ABI: %w", err)
	}

	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", rpcURL, err)
	}

	remote, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("failed to read chain id: %w", err)
	}
	if remote.Int64() != chainID {
		eth.Close()
		return nil, fmt.Errorf("rpc serves chain %s, expected %d", remote, chainID)
	}

	c := &EVMClient{
		eth:     eth,
		rpcURL:  rpcURL,
		chainID: big.NewInt(chainID),
		abi:     parsed,
		logger:  logger,
	}

	if operatorKeyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(operatorKeyHex, "0x"))
		if err != nil {
			eth.Close()
			return nil, fmt.Errorf("invalid operator key: %w", err)
		}
		c.key = key
		c.operator = crypto.PubkeyToAddress(key.PublicKey)
	}

	logger.Info("connected to chain",
		zap.Int64("chain_id", chainID),
		zap.String("operator", c.operator.Hex()),
	)
	return c, nil
}

// SetTimeouts bounds each read call and each wait for a transaction to be
// mined. Zero leaves the caller's context in charge.
func (c *EVMClient) SetTimeouts(call, tx time.Duration) {
	c.callTimeout = call
	c.txTimeout = tx
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

func (c *EVMClient) Close() {
	c.eth.Close()
}

// Contract binds the client to one deployed market contract.
func (c *EVMClient) Contract(address string, winner WinnerGetter) (Contract, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, address)
	}
	if winner == "" {
		winner = WinnerOutcome
	}
	return &EVMContract{
		client:  c,
		address: common.HexToAddress(address),
		winner:  string(winner),
	}, nil
}

// EVMContract is a betting contract reached over JSON-RPC.
type EVMContract struct {
	client  *EVMClient
	address common.Address
	winner  string
}

// ============================================================================
// READS
// ============================================================================

func (c *EVMContract) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.client.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	ctx, cancel := withTimeout(ctx, c.client.callTimeout)
	defer cancel()

	out, err := c.client.eth.CallContract(ctx, ethereum.CallMsg{To: &c.address, Data: data}, nil)
	if err != nil {
		return nil, wrapRevert(err)
	}

	values, err := c.client.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return values, nil
}

func (c *EVMContract) callBig(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	values, err := c.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected result type %T", method, values[0])
	}
	return v, nil
}

func (c *EVMContract) callString(ctx context.Context, method string) (string, error) {
	values, err := c.call(ctx, method)
	if err != nil {
		return "", err
	}
	s, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("%s: unexpected result type %T", method, values[0])
	}
	return s, nil
}

func (c *EVMContract) Owner(ctx context.Context) (string, error) {
	values, err := c.call(ctx, "owner")
	if err != nil {
		return "", err
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return "", fmt.Errorf("owner: unexpected result type %T", values[0])
	}
	return addr.Hex(), nil
}

func (c *EVMContract) EndTime(ctx context.Context) (int64, error) {
	v, err := c.callBig(ctx, "endTime")
	if err != nil {
		return 0, err
	}
	return v.Int64(), nil
}

func (c *EVMContract) MarketResolved(ctx context.Context) (bool, error) {
	values, err := c.call(ctx, "marketResolved")
	if err != nil {
		return false, err
	}
	b, ok := values[0].(bool)
	if !ok {
		return false, fmt.Errorf("marketResolved: unexpected result type %T", values[0])
	}
	return b, nil
}

func (c *EVMContract) Winner(ctx context.Context) (string, error) {
	return c.callString(ctx, c.winner)
}

func (c *EVMContract) TotalPool(ctx context.Context) (*big.Int, error) {
	return c.callBig(ctx, "totalPool")
}

func (c *EVMContract) OutcomeTotal(ctx context.Context, outcome string) (*big.Int, error) {
	return c.callBig(ctx, "outcomeTotals", outcome)
}

func (c *EVMContract) UserBet(ctx context.Context, user, outcome string) (*big.Int, error) {
	if !common.IsHexAddress(user) {
		return nil, fmt.Errorf("invalid user address: %s", user)
	}
	return c.callBig(ctx, "userBets", common.HexToAddress(user), outcome)
}

// ============================================================================
// OPERATOR WRITES
// ============================================================================

func (c *EVMContract) StartBetting(ctx context.Context, durationMinutes int64) (string, error) {
	return c.transact(ctx, "startBetting", big.NewInt(durationMinutes))
}

func (c *EVMContract) ResolveMarket(ctx context.Context, outcome string) (string, error) {
	return c.transact(ctx, "resolveMarket", outcome)
}

// transact signs and sends a call with the operator key and waits for it to
// be mined. Gas estimation doubles as the simulation step: a call that would
// revert fails there with the revert reason.
func (c *EVMContract) transact(ctx context.Context, method string, args ...interface{}) (string, error) {
	cl := c.client
	if cl.key == nil {
		return "", ErrNoOperatorKey
	}

	data, err := cl.abi.Pack(method, args...)
	if err != nil {
		return "", fmt.Errorf("failed to pack %s: %w", method, err)
	}

	gas, err := cl.eth.EstimateGas(ctx, ethereum.CallMsg{From: cl.operator, To: &c.address, Data: data})
	if err != nil {
		return "", wrapRevert(err)
	}

	nonce, err := cl.eth.PendingNonceAt(ctx, cl.operator)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}
	tip, err := cl.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to suggest tip: %w", err)
	}
	head, err := cl.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to get head: %w", err)
	}

	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   cl.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &c.address,
		Data:      data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(cl.chainID), cl.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s: %w", method, err)
	}

	if err := cl.eth.SendTransaction(ctx, signed); err != nil {
		return "", wrapRevert(err)
	}
	cl.logger.Info("transaction sent",
		zap.String("method", method),
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.String("contract", c.address.Hex()),
	)

	waitCtx, cancel := withTimeout(ctx, cl.txTimeout)
	defer cancel()

	receipt, err := cl.waitMined(waitCtx, signed.Hash())
	if err != nil {
		return signed.Hash().Hex(), err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return signed.Hash().Hex(), revert(method + " reverted")
	}
	return signed.Hash().Hex(), nil
}

func (cl *EVMClient) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := cl.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("failed to get receipt: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// ============================================================================
// VERIFICATION OF WALLET-SENT TRANSACTIONS
// ============================================================================

// VerifyBet checks that txHash is a successful placeBet call to this
// contract sent by from, and returns its outcome and value.
func (c *EVMContract) VerifyBet(ctx context.Context, txHash, from string) (*BetTx, error) {
	tx, sender, args, err := c.verifyCall(ctx, txHash, from, "placeBet")
	if err != nil {
		return nil, err
	}

	outcome, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected placeBet argument", ErrTxMismatch)
	}
	return &BetTx{
		Hash:    tx.Hash().Hex(),
		From:    sender.Hex(),
		Outcome: outcome,
		Value:   tx.Value(),
	}, nil
}

// VerifyClaim checks that txHash is a successful claim call sent by from.
func (c *EVMContract) VerifyClaim(ctx context.Context, txHash, from string) error {
	_, _, _, err := c.verifyCall(ctx, txHash, from, "claim")
	return err
}

func (c *EVMContract) verifyCall(ctx context.Context, txHash, from, method string) (*types.Transaction, common.Address, []interface{}, error) {
	var none common.Address

	hash := common.HexToHash(txHash)
	tx, pending, err := c.client.eth.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, none, nil, fmt.Errorf("failed to get transaction %s: %w", txHash, err)
	}
	if pending {
		return nil, none, nil, ErrTxPending
	}
	if tx.To() == nil || *tx.To() != c.address {
		return nil, none, nil, fmt.Errorf("%w: wrong recipient", ErrTxMismatch)
	}

	input := tx.Data()
	if len(input) < 4 {
		return nil, none, nil, fmt.Errorf("%w: no method selector", ErrTxMismatch)
	}
	m, err := c.client.abi.MethodById(input[:4])
	if err != nil || m.Name != method {
		return nil, none, nil, fmt.Errorf("%w: not a %s call", ErrTxMismatch, method)
	}
	args, err := m.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, none, nil, fmt.Errorf("failed to decode %s input: %w", method, err)
	}

	sender, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return nil, none, nil, fmt.Errorf("failed to recover sender: %w", err)
	}
	if !strings.EqualFold(sender.Hex(), from) {
		return nil, none, nil, fmt.Errorf("%w: sent by %s", ErrTxMismatch, sender.Hex())
	}

	receipt, err := c.client.eth.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, none, nil, ErrTxPending
		}
		return nil, none, nil, fmt.Errorf("failed to get receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, none, nil, revert(method + " reverted")
	}
	return tx, sender, args, nil
}

// wrapRevert turns an RPC execution error into a RevertError carrying the
// decoded Error(string) reason when there is one.
func wrapRevert(err error) error {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if hexData, ok := dataErr.ErrorData().(string); ok {
			if raw, decErr := hexutil.Decode(hexData); decErr == nil {
				if reason, unpackErr := abi.UnpackRevert(raw); unpackErr == nil {
					return &RevertError{ShortMessage: reason, Err: err}
				}
			}
		}
		return &RevertError{ShortMessage: dataErr.Error(), Err: err}
	}
	if strings.Contains(err.Error(), "execution reverted") {
		return &RevertError{ShortMessage: err.Error(), Err: err}
	}
	return err
}
