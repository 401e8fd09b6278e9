// Package chainlink reads reference prices from a Chainlink aggregator
// contract (AggregatorV3Interface) over an Ethereum JSON-RPC endpoint.
package chainlink

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/jrivoire69/CS-blockchain/internal/domain"
)

// aggregatorABI is the subset of AggregatorV3Interface the feed needs.
const aggregatorABI = `[
	{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"latestRoundData","outputs":[
		{"internalType":"uint80","name":"roundId","type":"uint80"},
		{"internalType":"int256","name":"answer","type":"int256"},
		{"internalType":"uint256","name":"startedAt","type":"uint256"},
		{"internalType":"uint256","name":"updatedAt","type":"uint256"},
		{"internalType":"uint80","name":"answeredInRound","type":"uint80"}
	],"stateMutability":"view","type":"function"}
]`

var maxInt64 = big.NewInt(0).SetInt64(1<<63 - 1)

// Feed implements domain.PriceFeed against a Chainlink aggregator. One
// instance serves one feed contract (e.g. EUR/USD at 8 decimals).
type Feed struct {
	caller  ethereum.ContractCaller
	address common.Address
	abi     abi.ABI
	maxAge  time.Duration

	mu       sync.Mutex
	decimals int32 // cached after first successful fetch; immutable on-chain
	haveDec  bool
}

// NewFeed creates a Feed reading the aggregator at address via the given
// contract caller (an *ethclient.Client in production). maxAge bounds the
// accepted age of the feed-reported update time; zero disables the check.
func NewFeed(caller ethereum.ContractCaller, address string, maxAge time.Duration) (*Feed, error) {
	parsed, err := abi.JSON(strings.NewReader(aggregatorABI))
	if err != nil {
		return nil, fmt.Errorf("chainlink: parse aggregator abi: %w", err)
	}
	return &Feed{
		caller:  caller,
		address: common.HexToAddress(address),
		abi:     parsed,
		maxAge:  maxAge,
	}, nil
}

// LatestPrice fetches latestRoundData from the aggregator. It reports
// domain.ErrOracleUnavailable when the contract cannot be reached and
// domain.ErrStalePrice when the feed's own round bookkeeping marks the answer
// stale (answeredInRound behind roundId, or the update older than maxAge).
func (f *Feed) LatestPrice(ctx context.Context) (domain.PriceQuote, error) {
	decimals, err := f.fetchDecimals(ctx)
	if err != nil {
		return domain.PriceQuote{}, err
	}

	out, err := f.call(ctx, "latestRoundData")
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("chainlink: latestRoundData: %s: %w", err, domain.ErrOracleUnavailable)
	}

	values, err := f.abi.Unpack("latestRoundData", out)
	if err != nil || len(values) != 5 {
		return domain.PriceQuote{}, fmt.Errorf("chainlink: unpack latestRoundData: %s: %w", err, domain.ErrOracleUnavailable)
	}

	roundID, ok1 := values[0].(*big.Int)
	answer, ok2 := values[1].(*big.Int)
	updatedAt, ok3 := values[3].(*big.Int)
	answeredInRound, ok4 := values[4].(*big.Int)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return domain.PriceQuote{}, fmt.Errorf("chainlink: unexpected latestRoundData types: %w", domain.ErrOracleUnavailable)
	}

	if answer.Sign() <= 0 || answer.Cmp(maxInt64) > 0 {
		return domain.PriceQuote{}, fmt.Errorf("chainlink: answer %s out of range: %w", answer, domain.ErrOracleUnavailable)
	}
	if answeredInRound.Cmp(roundID) < 0 {
		return domain.PriceQuote{}, fmt.Errorf("chainlink: round %s answered in %s: %w", roundID, answeredInRound, domain.ErrStalePrice)
	}

	updated := time.Unix(updatedAt.Int64(), 0)
	if f.maxAge > 0 && time.Since(updated) > f.maxAge {
		return domain.PriceQuote{}, fmt.Errorf("chainlink: price updated at %s: %w", updated.UTC().Format(time.RFC3339), domain.ErrStalePrice)
	}

	return domain.PriceQuote{
		Price:     answer.Int64(),
		Decimals:  decimals,
		Round:     roundID.Uint64(),
		UpdatedAt: updated,
	}, nil
}

// fetchDecimals returns the aggregator's decimal scale, fetching it on first
// use and caching it afterwards.
func (f *Feed) fetchDecimals(ctx context.Context) (int32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.haveDec {
		return f.decimals, nil
	}

	out, err := f.call(ctx, "decimals")
	if err != nil {
		return 0, fmt.Errorf("chainlink: decimals: %s: %w", err, domain.ErrOracleUnavailable)
	}
	values, err := f.abi.Unpack("decimals", out)
	if err != nil || len(values) != 1 {
		return 0, fmt.Errorf("chainlink: unpack decimals: %s: %w", err, domain.ErrOracleUnavailable)
	}
	dec, ok := values[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("chainlink: unexpected decimals type: %w", domain.ErrOracleUnavailable)
	}

	f.decimals = int32(dec)
	f.haveDec = true
	return f.decimals, nil
}

func (f *Feed) call(ctx context.Context, method string) ([]byte, error) {
	data, err := f.abi.Pack(method)
	if err != nil {
		return nil, err
	}
	return f.caller.CallContract(ctx, ethereum.CallMsg{To: &f.address, Data: data}, nil)
}

// Compile-time interface check.
var _ domain.PriceFeed = (*Feed)(nil)
