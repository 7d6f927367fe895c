// Package evm implements the token ledger against an Ethereum JSON-RPC node
// hosting an ERC-20 contract.
package evm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"phx_market/internal/domain"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/shopspring/decimal"
)

const erc20ABI = `[
 {"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
 {"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"type":"function"},
 {"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
 {"anonymous":false,"inputs":[{"indexed":true,"name":"from","type":"address"},{"indexed":true,"name":"to","type":"address"},{"indexed":false,"name":"value","type":"uint256"}],"name":"Transfer","type":"event"}
]`

const receiptPollInterval = 500 * time.Millisecond

var tokenABI = mustParseABI(erc20ABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("invalid ERC-20 ABI: %v", err))
	}
	return parsed
}

// TransferTopic is the keccak hash of Transfer(address,address,uint256).
var TransferTopic = tokenABI.Events["Transfer"].ID

// chainBackend is the subset of ethclient.Client the ledger uses.
type chainBackend interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// rawCaller issues node-level calls (eth_accounts, eth_sendTransaction).
type rawCaller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// Config configures the ledger client.
type Config struct {
	RPCURL         string
	TokenAddress   string
	Decimals       int32
	ReceiptTimeout time.Duration
}

// ErrorObserver is told about every failed ledger call.
type ErrorObserver interface {
	LedgerFailed(op string)
}

// Client is an ERC-20 ledger backed by a JSON-RPC node. Transfers are sent
// from the node's unlocked accounts (Ganache/Hardhat style).
type Client struct {
	backend        chainBackend
	raw            rawCaller
	closer         func()
	token          common.Address
	decimals       int32
	receiptTimeout time.Duration
	observer       ErrorObserver
	logger         *slog.Logger
}

// Dial connects to the node at cfg.RPCURL.
func Dial(ctx context.Context, cfg Config, observer ErrorObserver) (*Client, error) {
	if !common.IsHexAddress(cfg.TokenAddress) {
		return nil, &domain.ConfigError{Field: "ledger.token_address", Err: fmt.Errorf("invalid address %q", cfg.TokenAddress)}
	}

	rpcClient, err := rpc.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, domain.NewLedgerError("dial", err)
	}
	eth := ethclient.NewClient(rpcClient)

	c := newClient(eth, rpcClient, cfg, observer)
	c.closer = eth.Close
	return c, nil
}

func newClient(backend chainBackend, raw rawCaller, cfg Config, observer ErrorObserver) *Client {
	timeout := cfg.ReceiptTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		backend:        backend,
		raw:            raw,
		token:          common.HexToAddress(cfg.TokenAddress),
		decimals:       cfg.Decimals,
		receiptTimeout: timeout,
		observer:       observer,
		logger:         slog.Default().With("module", "evm_ledger"),
	}
}

// Close releases the RPC connection.
func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

func (c *Client) fail(op string, err error) error {
	if c.observer != nil {
		c.observer.LedgerFailed(op)
	}
	c.logger.Warn("Ledger call failed", slog.String("op", op), slog.Any("error", err))
	return domain.NewLedgerError(op, err)
}

// Accounts returns the node's unlocked accounts (eth_accounts).
func (c *Client) Accounts(ctx context.Context) ([]string, error) {
	var accounts []common.Address
	if err := c.raw.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, c.fail("accounts", err)
	}

	out := make([]string, len(accounts))
	for i, a := range accounts {
		out[i] = a.Hex()
	}
	return out, nil
}

// BalanceOf returns the token balance of address in whole tokens.
func (c *Client) BalanceOf(ctx context.Context, address string) (decimal.Decimal, error) {
	if !common.IsHexAddress(address) {
		return decimal.Zero, c.fail("balanceOf", fmt.Errorf("invalid address %q", address))
	}
	v, err := c.callUint256(ctx, "balanceOf", common.HexToAddress(address))
	if err != nil {
		return decimal.Zero, c.fail("balanceOf", err)
	}
	return FromBaseUnits(v, c.decimals), nil
}

// TotalSupply returns the token supply in whole tokens.
func (c *Client) TotalSupply(ctx context.Context) (decimal.Decimal, error) {
	v, err := c.callUint256(ctx, "totalSupply")
	if err != nil {
		return decimal.Zero, c.fail("totalSupply", err)
	}
	return FromBaseUnits(v, c.decimals), nil
}

func (c *Client) callUint256(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	data, err := tokenABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}

	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.token, Data: data}, nil)
	if err != nil {
		return nil, err
	}

	values, err := tokenABI.Unpack(method, out)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%s: unexpected output length %d", method, len(values))
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected output type %T", method, values[0])
	}
	return v, nil
}

// LatestBlock returns the current block height (eth_blockNumber).
func (c *Client) LatestBlock(ctx context.Context) (uint64, error) {
	n, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return 0, c.fail("blockNumber", err)
	}
	return n, nil
}

// TransferEvents returns the token's Transfer logs in [fromBlock, toBlock].
// Malformed logs are skipped.
func (c *Client) TransferEvents(ctx context.Context, fromBlock, toBlock uint64) ([]domain.TransferEvent, error) {
	q := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: []common.Address{c.token},
		Topics:    [][]common.Hash{{TransferTopic}},
	}

	logs, err := c.backend.FilterLogs(ctx, q)
	if err != nil {
		return nil, c.fail("getLogs", err)
	}

	events := make([]domain.TransferEvent, 0, len(logs))
	for _, lg := range logs {
		ev, err := ParseTransferLog(lg, c.decimals)
		if err != nil {
			c.logger.Debug("Skipping malformed transfer log", slog.String("tx", lg.TxHash.Hex()), slog.Any("error", err))
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// Transfer sends amount from an unlocked node account and waits for the receipt.
func (c *Client) Transfer(ctx context.Context, from, to string, amount decimal.Decimal) (*domain.TransferReceipt, error) {
	if !common.IsHexAddress(from) || !common.IsHexAddress(to) {
		return nil, fmt.Errorf("transfer: invalid address %q -> %q", from, to)
	}
	value, err := ToBaseUnits(amount, c.decimals)
	if err != nil {
		return nil, err
	}

	data, err := tokenABI.Pack("transfer", common.HexToAddress(to), value)
	if err != nil {
		return nil, c.fail("transfer", err)
	}

	tx := map[string]interface{}{
		"from": common.HexToAddress(from),
		"to":   c.token,
		"data": hexutil.Bytes(data),
	}
	var hash common.Hash
	if err := c.raw.CallContext(ctx, &hash, "eth_sendTransaction", tx); err != nil {
		return nil, c.fail("transfer", err)
	}

	receipt, err := c.waitReceipt(ctx, hash)
	if err != nil {
		return nil, c.fail("transfer", err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return nil, c.fail("transfer", fmt.Errorf("transaction %s reverted", hash.Hex()))
	}

	c.logger.Info("Transfer mined",
		slog.String("tx", hash.Hex()),
		slog.Uint64("block", receipt.BlockNumber.Uint64()),
	)
	return &domain.TransferReceipt{
		TxHash:      hash.Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
	}, nil
}

func (c *Client) waitReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for receipt %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// ParseTransferLog decodes an ERC-20 Transfer log.
func ParseTransferLog(lg types.Log, decimals int32) (domain.TransferEvent, error) {
	if len(lg.Topics) < 3 || lg.Topics[0] != TransferTopic {
		return domain.TransferEvent{}, fmt.Errorf("not a Transfer log (%d topics)", len(lg.Topics))
	}
	if len(lg.Data) != 32 {
		return domain.TransferEvent{}, fmt.Errorf("unexpected data length %d", len(lg.Data))
	}

	return domain.TransferEvent{
		From:        common.BytesToAddress(lg.Topics[1].Bytes()).Hex(),
		To:          common.BytesToAddress(lg.Topics[2].Bytes()).Hex(),
		Amount:      FromBaseUnits(new(big.Int).SetBytes(lg.Data), decimals),
		BlockNumber: lg.BlockNumber,
		TxHash:      lg.TxHash.Hex(),
	}, nil
}

// FromBaseUnits converts an integer amount of base units to whole tokens.
func FromBaseUnits(v *big.Int, decimals int32) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -decimals)
}

// ToBaseUnits converts whole tokens to base units. Amounts must be positive
// and representable with the token's decimals.
func ToBaseUnits(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidAmount, amount)
	}
	scaled := amount.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("%w: more than %d decimals", domain.ErrInvalidAmount, decimals)
	}
	return scaled.BigInt(), nil
}
