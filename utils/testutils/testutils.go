package testutils

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

// TestPrivateKey is a throwaway key used across tests
const TestPrivateKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

// TestAddress returns the address of TestPrivateKey
func TestAddress() common.Address {
	key, err := crypto.HexToECDSA(TestPrivateKey)
	if err != nil {
		panic(err)
	}
	return crypto.PubkeyToAddress(key.PublicKey)
}

// SignedTx returns a small signed dynamic-fee transaction
func SignedTx(t *testing.T) *types.Transaction {
	t.Helper()
	key, err := crypto.HexToECDSA(TestPrivateKey)
	require.NoError(t, err)

	chainID := big.NewInt(1)
	to := common.HexToAddress("0x1234567890123456789012345678901234567890")
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		GasTipCap: big.NewInt(1_000_000_000),
		GasFeeCap: big.NewInt(20_000_000_000),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(1),
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	require.NoError(t, err)
	return signed
}

// Receipt returns a mined receipt with the given status and some gas used
func Receipt(status uint64, logs ...*types.Log) *types.Receipt {
	return &types.Receipt{
		Status:            status,
		GasUsed:           210_000,
		EffectiveGasPrice: big.NewInt(1_000_000_000),
		BlockNumber:       big.NewInt(1001),
		Logs:              logs,
	}
}

// RPCError mimics a JSON-RPC error response from a node
type RPCError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *RPCError) Error() string          { return e.Message }
func (e *RPCError) ErrorCode() int         { return e.Code }
func (e *RPCError) ErrorData() interface{} { return e.Data }

// Revert builds the error a node returns for a reverted eth_call
func Revert(reason string) error {
	data := append(crypto.Keccak256([]byte("Error(string)"))[:4], Encode([]string{"string"}, reason)...)
	return &RPCError{
		Code:    3,
		Message: "execution reverted: " + reason,
		Data:    "0x" + hex.EncodeToString(data),
	}
}

func mustType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(err)
	}
	return t
}

// Encode ABI-encodes values with the given solidity type names
func Encode(typeNames []string, values ...interface{}) []byte {
	args := make(abi.Arguments, len(typeNames))
	for i, name := range typeNames {
		args[i] = abi.Argument{Type: mustType(name)}
	}
	out, err := args.Pack(values...)
	if err != nil {
		panic(fmt.Sprintf("encode %v: %v", typeNames, err))
	}
	return out
}

// CallHandler answers eth_call for one contract method
type CallHandler func(msg ethereum.CallMsg) ([]byte, error)

type handlerKey struct {
	to       common.Address
	selector [4]byte
}

// FakeClient is a programmable in-memory chain client. Zero values are usable
// after NewFakeClient; tests set fields or register handlers before use.
type FakeClient struct {
	mu sync.Mutex

	ChainIDValue *big.Int
	Block        uint64
	BaseFee      *big.Int
	GasPrice     *big.Int
	TipCap       *big.Int
	Nonce        uint64
	Balances     map[common.Address]*big.Int
	Logs         []types.Log

	// ReceiptFor, when set, produces the receipt for every sent transaction
	ReceiptFor func(tx *types.Transaction) *types.Receipt
	// SendHook, when set, can fail a send
	SendHook func(tx *types.Transaction) error

	receipts map[common.Hash]*types.Receipt
	handlers map[handlerKey]CallHandler
	errs     map[string]error
	calls    map[string]int
	sent     []*types.Transaction
}

func NewFakeClient(chainID int64) *FakeClient {
	return &FakeClient{
		ChainIDValue: big.NewInt(chainID),
		Block:        1000,
		BaseFee:      big.NewInt(1_000_000_000),
		GasPrice:     big.NewInt(1_100_000_000),
		TipCap:       big.NewInt(100_000_000),
		Balances:     make(map[common.Address]*big.Int),
		receipts:     make(map[common.Hash]*types.Receipt),
		handlers:     make(map[handlerKey]CallHandler),
		errs:         make(map[string]error),
		calls:        make(map[string]int),
	}
}

// Handle registers h for calls to `to` whose data starts with selector
func (f *FakeClient) Handle(to common.Address, selector []byte, h CallHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var key handlerKey
	key.to = to
	copy(key.selector[:], selector)
	f.handlers[key] = h
}

// HandleMethod registers h for method of parsed on `to`
func (f *FakeClient) HandleMethod(to common.Address, parsed abi.ABI, method string, h CallHandler) {
	m, ok := parsed.Methods[method]
	if !ok {
		panic("unknown method " + method)
	}
	f.Handle(to, m.ID, h)
}

// Returns is a CallHandler that always answers with data
func Returns(data []byte) CallHandler {
	return func(ethereum.CallMsg) ([]byte, error) { return data, nil }
}

// SetErr makes every call to method fail with err until cleared with nil
func (f *FakeClient) SetErr(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, method)
		return
	}
	f.errs[method] = err
}

// SetReceipt stores a receipt returned by TransactionReceipt
func (f *FakeClient) SetReceipt(hash common.Hash, r *types.Receipt) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receipts[hash] = r
}

// Calls returns how many times method was invoked
func (f *FakeClient) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// TotalCalls returns the number of calls across every method
func (f *FakeClient) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

// Sent returns the transactions accepted by SendTransaction
func (f *FakeClient) Sent() []*types.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*types.Transaction(nil), f.sent...)
}

// begin counts the call and returns the injected error, if any. Must not hold mu.
func (f *FakeClient) begin(ctx context.Context, method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.errs[method]
}

func (f *FakeClient) ChainID(ctx context.Context) (*big.Int, error) {
	if err := f.begin(ctx, "ChainID"); err != nil {
		return nil, err
	}
	return new(big.Int).Set(f.ChainIDValue), nil
}

func (f *FakeClient) BlockNumber(ctx context.Context) (uint64, error) {
	if err := f.begin(ctx, "BlockNumber"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Block, nil
}

func (f *FakeClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	if err := f.begin(ctx, "HeaderByNumber"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	h := &types.Header{Number: new(big.Int).SetUint64(f.Block)}
	if f.BaseFee != nil {
		h.BaseFee = new(big.Int).Set(f.BaseFee)
	}
	return h, nil
}

func (f *FakeClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if err := f.begin(ctx, "SuggestGasPrice"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.GasPrice), nil
}

func (f *FakeClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	if err := f.begin(ctx, "SuggestGasTipCap"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.TipCap), nil
}

func (f *FakeClient) BalanceAt(ctx context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	if err := f.begin(ctx, "BalanceAt"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.Balances[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (f *FakeClient) PendingNonceAt(ctx context.Context, _ common.Address) (uint64, error) {
	if err := f.begin(ctx, "PendingNonceAt"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Nonce, nil
}

func (f *FakeClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if err := f.begin(ctx, "FilterLogs"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []types.Log
	for _, l := range f.Logs {
		if q.FromBlock != nil && l.BlockNumber < q.FromBlock.Uint64() {
			continue
		}
		if q.ToBlock != nil && l.BlockNumber > q.ToBlock.Uint64() {
			continue
		}
		if len(q.Addresses) > 0 && !containsAddress(q.Addresses, l.Address) {
			continue
		}
		if len(q.Topics) > 0 && len(q.Topics[0]) > 0 && (len(l.Topics) == 0 || !containsHash(q.Topics[0], l.Topics[0])) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (f *FakeClient) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if err := f.begin(ctx, "CallContract"); err != nil {
		return nil, err
	}
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, &RPCError{Code: -32000, Message: "invalid call"}
	}

	var key handlerKey
	key.to = *msg.To
	copy(key.selector[:], msg.Data[:4])

	f.mu.Lock()
	h, ok := f.handlers[key]
	f.mu.Unlock()
	if !ok {
		return nil, Revert("no handler")
	}
	return h(msg)
}

func (f *FakeClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := f.begin(ctx, "SendTransaction"); err != nil {
		return err
	}
	if f.SendHook != nil {
		if err := f.SendHook(tx); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	f.Nonce = tx.Nonce() + 1
	if f.ReceiptFor != nil {
		if r := f.ReceiptFor(tx); r != nil {
			r.TxHash = tx.Hash()
			f.receipts[tx.Hash()] = r
		}
	}
	return nil
}

func (f *FakeClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	if err := f.begin(ctx, "TransactionReceipt"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func containsAddress(list []common.Address, a common.Address) bool {
	for _, x := range list {
		if x == a {
			return true
		}
	}
	return false
}

func containsHash(list []common.Hash, h common.Hash) bool {
	for _, x := range list {
		if x == h {
			return true
		}
	}
	return false
}
