package crypto

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Signer signs Ethereum transactions with the custody wallet key. It is used
// by the ERC-20 ledger client to authorise token transfers out of custody.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
	ethSigner  types.Signer
}

// NewSigner creates a Signer from a hex private key (with or without 0x
// prefix) for the given chain.
func NewSigner(privateKeyHex string, chainID int64) (*Signer, error) {
	key, err := ethcrypto.HexToECDSA(trimHexPrefix(privateKeyHex))
	if err != nil {
		return nil, fmt.Errorf("crypto: parse private key: %w", err)
	}

	id := big.NewInt(chainID)
	return &Signer{
		privateKey: key,
		address:    ethcrypto.PubkeyToAddress(key.PublicKey),
		chainID:    id,
		ethSigner:  types.LatestSignerForChainID(id),
	}, nil
}

// Address returns the wallet address derived from the private key. This is
// the on-chain custody account.
func (s *Signer) Address() common.Address {
	return s.address
}

// ChainID returns the chain the signer is bound to.
func (s *Signer) ChainID() *big.Int {
	return new(big.Int).Set(s.chainID)
}

// SignTx signs the given transaction for the signer's chain.
func (s *Signer) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, s.ethSigner, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: sign tx: %w", err)
	}
	return signed, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return s[2:]
	}
	return s
}
