package blockchain

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DiagnosticResult holds the result of a chain connectivity diagnostic
type DiagnosticResult struct {
	Mode            string `json:"mode"`
	RPCConnected    bool   `json:"rpc_connected"`
	RPCURL          string `json:"rpc_url,omitempty"`
	RPCError        string `json:"rpc_error,omitempty"`
	ChainID         int64  `json:"chain_id"`
	RemoteChainID   int64  `json:"remote_chain_id,omitempty"`
	ChainMatches    bool   `json:"chain_matches"`
	LatestBlock     uint64 `json:"latest_block,omitempty"`
	OperatorKeySet  bool   `json:"operator_key_set"`
	OperatorAddress string `json:"operator_address,omitempty"`
	Timestamp       string `json:"timestamp"`
}

// Diagnoser reports on the health of the contract backend.
type Diagnoser interface {
	RunDiagnostics(ctx context.Context) *DiagnosticResult
}

// RunDiagnostics checks RPC connectivity, chain id and the operator key.
func (c *EVMClient) RunDiagnostics(ctx context.Context) *DiagnosticResult {
	result := &DiagnosticResult{
		Mode:      "evm",
		RPCURL:    c.rpcURL,
		ChainID:   c.chainID.Int64(),
		Timestamp: time.Now().Format(time.RFC3339),
	}

	remote, err := c.eth.ChainID(ctx)
	if err != nil {
		result.RPCError = err.Error()
		c.logger.Warn("diagnostics: rpc unreachable", zap.Error(err))
		return result
	}
	result.RPCConnected = true
	result.RemoteChainID = remote.Int64()
	result.ChainMatches = remote.Cmp(c.chainID) == 0

	if head, err := c.eth.HeaderByNumber(ctx, nil); err != nil {
		result.RPCError = err.Error()
		c.logger.Warn("diagnostics: failed to read head", zap.Error(err))
	} else {
		result.LatestBlock = head.Number.Uint64()
	}

	if c.key != nil {
		result.OperatorKeySet = true
		result.OperatorAddress = c.operator.Hex()
	}

	c.logger.Info("diagnostics complete",
		zap.Bool("chain_matches", result.ChainMatches),
		zap.Uint64("latest_block", result.LatestBlock),
		zap.Bool("operator_key_set", result.OperatorKeySet),
	)
	return result
}

// SimulatedDiagnoser reports a healthy in-process backend.
type SimulatedDiagnoser struct {
	ChainID int64
	Owner   string
}

func (d SimulatedDiagnoser) RunDiagnostics(ctx context.Context) *DiagnosticResult {
	return &DiagnosticResult{
		Mode:            "simulated",
		RPCConnected:    true,
		ChainID:         d.ChainID,
		RemoteChainID:   d.ChainID,
		ChainMatches:    true,
		OperatorKeySet:  true,
		OperatorAddress: d.Owner,
		Timestamp:       time.Now().Format(time.RFC3339),
	}
}
