package blockchain

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

var (
	ErrInvalidWallet    = errors.New("invalid wallet address")
	ErrInvalidSignature = errors.New("invalid signature")
)

// Wallet chains, matching models.ChainEVM and models.ChainSolana.
const (
	ChainEVM    = "evm"
	ChainSolana = "solana"
)

// DetectChain tells an EVM address from a Solana public key.
func DetectChain(address string) (string, error) {
	address = strings.TrimSpace(address)
	if common.IsHexAddress(address) {
		return ChainEVM, nil
	}
	if _, err := solana.PublicKeyFromBase58(address); err == nil {
		return ChainSolana, nil
	}
	return "", fmt.Errorf("%w: %s", ErrInvalidWallet, address)
}

// NormalizeAddress lowercases EVM addresses. Base58 is case-sensitive and
// kept as is.
func NormalizeAddress(chain, address string) string {
	address = strings.TrimSpace(address)
	if chain == ChainEVM {
		return strings.ToLower(address)
	}
	return address
}

// VerifySignature checks a personal-sign style signature for either chain.
func VerifySignature(chain, address, message, signature string) error {
	switch chain {
	case ChainEVM:
		return VerifyEVMSignature(address, message, signature)
	case ChainSolana:
		return VerifySolanaSignature(address, message, signature)
	default:
		return fmt.Errorf("unsupported chain %q", chain)
	}
}

// VerifyEVMSignature checks a 65-byte personal_sign signature over message.
func VerifyEVMSignature(address, message, signature string) error {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if len(sig) != crypto.SignatureLength {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSignature, crypto.SignatureLength, len(sig))
	}
	// Wallets return V as 27/28.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if !strings.EqualFold(crypto.PubkeyToAddress(*pub).Hex(), strings.TrimSpace(address)) {
		return ErrInvalidSignature
	}
	return nil
}

// VerifySolanaSignature checks an ed25519 signature, base58 or hex encoded.
func VerifySolanaSignature(address, message, signature string) error {
	pk, err := solana.PublicKeyFromBase58(strings.TrimSpace(address))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWallet, err)
	}

	sig, err := base58.Decode(signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		sig, err = hex.DecodeString(strings.TrimPrefix(signature, "0x"))
		if err != nil {
			return fmt.Errorf("%w: unrecognized encoding", ErrInvalidSignature)
		}
	}

	if !ed25519.Verify(ed25519.PublicKey(pk[:]), []byte(message), sig) {
		return ErrInvalidSignature
	}
	return nil
}
