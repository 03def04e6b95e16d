package clients

import (
	"context"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// sentExchange exchange call received by the fake node.
type sentExchange struct {
	From   common.Address
	Nonce  uint64
	Source [32]byte
	Amount *big.Int
	Dest   [32]byte
	Hash   common.Hash
}

// fakeNode minimal in-process Ethereum node serving a dHEDGE pool.
type fakeNode struct {
	mu sync.Mutex

	fundABI     abi.ABI
	pool        common.Address
	accounts    []common.Address
	passwords   map[common.Address]string
	composition fundComposition
	nonces      map[common.Address]uint64
	chainID     *big.Int
	gasPrice    *big.Int
	// rejectAt index of the exchange the node rejects, -1 accepts all
	rejectAt int

	exchanges []sentExchange
	unlocked  []common.Address
}

func newFakeNode(t *testing.T) *fakeNode {
	t.Helper()
	parsed, err := parseFundABI()
	require.NoError(t, err)
	return &fakeNode{
		fundABI:   parsed,
		pool:      common.HexToAddress("0x53523de8a90053ddb1d330499d3dc080b909edb9"),
		accounts:  []common.Address{common.HexToAddress("0x1000000000000000000000000000000000000001")},
		passwords: make(map[common.Address]string),
		nonces:    make(map[common.Address]uint64),
		chainID:   big.NewInt(1337),
		gasPrice:  big.NewInt(2_000_000_000),
		rejectAt:  -1,
	}
}

func (n *fakeNode) sent() []sentExchange {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentExchange(nil), n.exchanges...)
}

func (n *fakeNode) accept(from common.Address, nonce uint64, to *common.Address, data []byte, hash common.Hash) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if to == nil || *to != n.pool {
		return errors.New("unexpected recipient")
	}
	expected := n.nonces[from]
	if nonce < expected {
		return errors.Errorf("nonce too low: have %d, want %d", nonce, expected)
	}
	if n.rejectAt == len(n.exchanges) {
		n.rejectAt = -1
		return errors.New("execution reverted")
	}

	method, err := n.fundABI.MethodById(data[:4])
	if err != nil || method.Name != methodExchange {
		return errors.New("unknown method")
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return err
	}

	// a nonce above the expected one is queued until the gap is filled
	if nonce == expected {
		n.nonces[from] = nonce + 1
	}
	n.exchanges = append(n.exchanges, sentExchange{
		From:   from,
		Nonce:  nonce,
		Source: args[0].([32]byte),
		Amount: args[1].(*big.Int),
		Dest:   args[2].([32]byte),
		Hash:   hash,
	})
	return nil
}

type fakeEth struct{ n *fakeNode }

func (s *fakeEth) Accounts() []common.Address {
	return s.n.accounts
}

func (s *fakeEth) ChainId() *hexutil.Big {
	return (*hexutil.Big)(s.n.chainID)
}

func (s *fakeEth) GasPrice() *hexutil.Big {
	return (*hexutil.Big)(s.n.gasPrice)
}

func (s *fakeEth) GetTransactionCount(account common.Address, block string) (hexutil.Uint64, error) {
	if block != "pending" && block != "latest" {
		return 0, errors.Errorf("unexpected block tag %s", block)
	}
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	return hexutil.Uint64(s.n.nonces[account]), nil
}

func (s *fakeEth) Call(args txArgs, block string) (hexutil.Bytes, error) {
	if args.To == nil || *args.To != s.n.pool {
		return nil, errors.New("call to unknown contract")
	}
	method, err := s.n.fundABI.MethodById(args.Data[:4])
	if err != nil || method.Name != methodGetFundComposition {
		return nil, errors.New("execution reverted")
	}
	c := s.n.composition
	return method.Outputs.Pack(c.Symbols, c.Balances, c.Rates)
}

func (s *fakeEth) SendTransaction(args txArgs) (common.Hash, error) {
	if args.From == nil || args.Nonce == nil {
		return common.Hash{}, errors.New("from and nonce are required")
	}
	hash := crypto.Keccak256Hash(args.From.Bytes(), new(big.Int).SetUint64(uint64(*args.Nonce)).Bytes(), args.Data)
	if err := s.n.accept(*args.From, uint64(*args.Nonce), args.To, args.Data, hash); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

func (s *fakeEth) SendRawTransaction(raw hexutil.Bytes) (common.Hash, error) {
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return common.Hash{}, err
	}
	if tx.GasPrice().Cmp(s.n.gasPrice) != 0 {
		return common.Hash{}, errors.New("unexpected gas price")
	}
	from, err := types.Sender(types.LatestSignerForChainID(s.n.chainID), tx)
	if err != nil {
		return common.Hash{}, err
	}
	if err := s.n.accept(from, tx.Nonce(), tx.To(), tx.Data(), tx.Hash()); err != nil {
		return common.Hash{}, err
	}
	return tx.Hash(), nil
}

type fakePersonal struct{ n *fakeNode }

func (s *fakePersonal) UnlockAccount(account common.Address, password string, duration *uint64) (bool, error) {
	s.n.mu.Lock()
	defer s.n.mu.Unlock()
	expected, ok := s.n.passwords[account]
	if !ok {
		return false, errors.New("unknown account")
	}
	if expected != password {
		return false, errors.New("could not decrypt key with given password")
	}
	s.n.unlocked = append(s.n.unlocked, account)
	return true, nil
}

// countingCaller counts round trips to the node.
type countingCaller struct {
	inner   *rpc.Client
	mu      sync.Mutex
	batches [][]string
	singles []string
}

func (c *countingCaller) CallContext(ctx context.Context, result any, method string, args ...any) error {
	c.mu.Lock()
	c.singles = append(c.singles, method)
	c.mu.Unlock()
	return c.inner.CallContext(ctx, result, method, args...)
}

func (c *countingCaller) BatchCallContext(ctx context.Context, b []rpc.BatchElem) error {
	methods := make([]string, len(b))
	for i, elem := range b {
		methods[i] = elem.Method
	}
	c.mu.Lock()
	c.batches = append(c.batches, methods)
	c.mu.Unlock()
	return c.inner.BatchCallContext(ctx, b)
}

func (c *countingCaller) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = nil
	c.singles = nil
}

func serveFakeNode(t *testing.T, n *fakeNode) *countingCaller {
	t.Helper()
	srv := rpc.NewServer()
	require.NoError(t, srv.RegisterName("eth", &fakeEth{n: n}))
	require.NoError(t, srv.RegisterName("personal", &fakePersonal{n: n}))
	client := rpc.DialInProc(srv)
	t.Cleanup(func() {
		client.Close()
		srv.Stop()
	})
	return &countingCaller{inner: client}
}

func newTestFundClient(t *testing.T, n *fakeNode, opts FundOptions) (*FundClient, *countingCaller) {
	t.Helper()
	caller := serveFakeNode(t, n)
	opts.Pool = n.pool
	c, err := newFundClient(context.Background(), zap.NewNop(), caller, nil, opts)
	require.NoError(t, err)
	caller.reset()
	return c, caller
}

func fixed(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok)
	return v
}

func symbol32(s string) [32]byte {
	var raw [32]byte
	copy(raw[:], s)
	return raw
}
