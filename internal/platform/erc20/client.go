// Package erc20 implements domain.TokenLedger against an ERC-20 contract over
// an Ethereum JSON-RPC endpoint. The custody account is the wallet address of
// the configured signer; outbound transfers are signed transactions from that
// wallet.
package erc20

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/jrivoire69/CS-blockchain/internal/crypto"
	"github.com/jrivoire69/CS-blockchain/internal/domain"
)

// erc20ABI is the subset of the ERC-20 interface the ledger needs.
const erc20ABI = `[
	{"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"name":"transferFrom","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

// receiptPollInterval is how often Transfer polls for a mined receipt.
const receiptPollInterval = 2 * time.Second

// Backend is the subset of ethclient.Client the ledger uses.
type Backend interface {
	ethereum.ContractCaller
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Client implements domain.TokenLedger for one ERC-20 token contract.
type Client struct {
	backend Backend
	token   common.Address
	abi     abi.ABI
	signer  *crypto.Signer
}

// NewClient creates a ledger client for the token contract at tokenAddress.
// The signer's wallet address acts as the custody account.
func NewClient(backend Backend, tokenAddress string, signer *crypto.Signer) (*Client, error) {
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("erc20: parse abi: %w", err)
	}
	return &Client{
		backend: backend,
		token:   common.HexToAddress(tokenAddress),
		abi:     parsed,
		signer:  signer,
	}, nil
}

// CustodyAccount returns the custody wallet address in its canonical hex form.
func (c *Client) CustodyAccount() string {
	return c.signer.Address().Hex()
}

// BalanceOf returns the token balance of an account.
func (c *Client) BalanceOf(ctx context.Context, account string) (int64, error) {
	out, err := c.view(ctx, "balanceOf", common.HexToAddress(account))
	if err != nil {
		return 0, fmt.Errorf("erc20: balanceOf %s: %w", account, err)
	}
	return c.unpackAmount("balanceOf", out)
}

// Allowance returns the amount spender may pull from owner.
func (c *Client) Allowance(ctx context.Context, owner, spender string) (int64, error) {
	out, err := c.view(ctx, "allowance", common.HexToAddress(owner), common.HexToAddress(spender))
	if err != nil {
		return 0, fmt.Errorf("erc20: allowance %s->%s: %w", owner, spender, err)
	}
	return c.unpackAmount("allowance", out)
}

// Transfer moves tokens from the custody wallet to another account and waits
// for the transaction to be mined. A reverted transaction is surfaced as
// domain.ErrInsufficientFunds since balance shortfall is the only revert path
// for a plain transfer.
func (c *Client) Transfer(ctx context.Context, to string, amount int64) error {
	data, err := c.abi.Pack("transfer", common.HexToAddress(to), big.NewInt(amount))
	if err != nil {
		return fmt.Errorf("erc20: pack transfer: %w", err)
	}
	return c.execute(ctx, data)
}

// TransferFrom pulls tokens from an arbitrary account into the destination,
// consuming the allowance previously granted to the custody wallet. A revert
// is surfaced as domain.ErrAllowanceExceeded.
func (c *Client) TransferFrom(ctx context.Context, from, to string, amount int64) error {
	data, err := c.abi.Pack("transferFrom", common.HexToAddress(from), common.HexToAddress(to), big.NewInt(amount))
	if err != nil {
		return fmt.Errorf("erc20: pack transferFrom: %w", err)
	}
	if err := c.execute(ctx, data); err != nil {
		if err == domain.ErrInsufficientFunds {
			return domain.ErrAllowanceExceeded
		}
		return err
	}
	return nil
}

func (c *Client) view(ctx context.Context, method string, args ...any) ([]byte, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	return c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.token, Data: data}, nil)
}

func (c *Client) unpackAmount(method string, out []byte) (int64, error) {
	values, err := c.abi.Unpack(method, out)
	if err != nil || len(values) != 1 {
		return 0, fmt.Errorf("erc20: unpack %s: %w", method, err)
	}
	amount, ok := values[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("erc20: unexpected %s result type", method)
	}
	if !amount.IsInt64() {
		return 0, domain.ErrAmountOverflow
	}
	return amount.Int64(), nil
}

// execute signs, sends, and waits for one state-changing call against the
// token contract.
func (c *Client) execute(ctx context.Context, data []byte) error {
	from := c.signer.Address()

	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return fmt.Errorf("erc20: pending nonce: %w", err)
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("erc20: suggest gas price: %w", err)
	}
	gasLimit, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{
		From: from,
		To:   &c.token,
		Data: data,
	})
	if err != nil {
		// Estimation reverts when the transfer itself would revert.
		return domain.ErrInsufficientFunds
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &c.token,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := c.signer.SignTx(tx)
	if err != nil {
		return err
	}

	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("erc20: send transaction: %w", err)
	}

	return c.waitMined(ctx, signed.Hash())
}

// waitMined polls for the transaction receipt until the context is done.
func (c *Client) waitMined(ctx context.Context, hash common.Hash) error {
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return domain.ErrInsufficientFunds
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("erc20: wait for tx %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// Compile-time interface check.
var _ domain.TokenLedger = (*Client)(nil)
