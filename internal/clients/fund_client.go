package clients

import (
	"context"
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/dhedge-rebalancer/internal/codec"
	"github.com/vadiminshakov/dhedge-rebalancer/internal/domain"
)

const (
	stageConnect  = "connect"
	stageManager  = "resolve_manager"
	stageSnapshot = "read_snapshot"
	stageNonce    = "get_nonce"
	stageSubmit   = "submit_swaps"
)

// FundOptions connection parameters of a FundClient.
type FundOptions struct {
	// Endpoint JSON-RPC URL of the node.
	Endpoint string
	// Pool address of the fund contract.
	Pool common.Address
	// Manager account managed by the node. When nil the first account the
	// node reports is used.
	Manager *common.Address
	// Password unlocks the manager account on the node when set.
	Password string
	// PrivateKey signs transactions locally instead of the node.
	PrivateKey *ecdsa.PrivateKey
	// Batching sends queued calls as JSON-RPC batches.
	Batching bool
	// GasLimit of submitted transactions, 0 lets the node estimate it.
	GasLimit uint64
}

// FundClient reads the composition of a dHEDGE fund and submits exchanges
// through its manager account.
type FundClient struct {
	rpc      rpcCaller
	closer   func()
	fundABI  abi.ABI
	pool     common.Address
	batching bool
	signer   signer
	l        *zap.Logger
}

// NewFundClient connects to the node and resolves the manager account once.
func NewFundClient(ctx context.Context, l *zap.Logger, opts FundOptions) (*FundClient, error) {
	client, err := rpc.DialContext(ctx, opts.Endpoint)
	if err != nil {
		return nil, domain.TransportError(stageConnect, errors.Wrapf(err, "dial %s", opts.Endpoint))
	}

	c, err := newFundClient(ctx, l, client, client.Close, opts)
	if err != nil {
		client.Close()
		return nil, err
	}
	return c, nil
}

func newFundClient(ctx context.Context, l *zap.Logger, caller rpcCaller, closer func(), opts FundOptions) (*FundClient, error) {
	parsed, err := parseFundABI()
	if err != nil {
		return nil, err
	}

	c := &FundClient{
		rpc:      caller,
		closer:   closer,
		fundABI:  parsed,
		pool:     opts.Pool,
		batching: opts.Batching,
		l:        l,
	}

	c.signer, err = c.resolveSigner(ctx, opts)
	if err != nil {
		return nil, err
	}

	l.Info("using manager account",
		zap.String("manager", c.signer.Address().Hex()),
		zap.String("pool", c.pool.Hex()),
		zap.Bool("batching", c.batching))

	return c, nil
}

func (c *FundClient) resolveSigner(ctx context.Context, opts FundOptions) (signer, error) {
	if opts.PrivateKey != nil {
		return newKeySigner(opts.PrivateKey, opts.GasLimit), nil
	}

	var account common.Address
	if opts.Manager != nil {
		account = *opts.Manager
	} else {
		var accounts []common.Address
		b := NewBatch(c.rpc, c.batching)
		call := b.Queue("eth_accounts", &accounts)
		if err := b.Flush(ctx); err != nil {
			return nil, domain.TransportError(stageManager, err)
		}
		if err := call.Err(); err != nil {
			return nil, domain.TransportError(stageManager, err)
		}
		if len(accounts) == 0 {
			return nil, domain.PreconditionError(stageManager, "node reports no accounts")
		}
		account = accounts[0]
	}

	if opts.Password != "" {
		if err := c.unlock(ctx, account, opts.Password); err != nil {
			return nil, err
		}
	}

	return &nodeSigner{account: account, gasLimit: opts.GasLimit}, nil
}

func (c *FundClient) unlock(ctx context.Context, account common.Address, password string) error {
	var unlocked bool
	b := NewBatch(c.rpc, c.batching)
	call := b.Queue("personal_unlockAccount", &unlocked, account, password, nil)
	if err := b.Flush(ctx); err != nil {
		return domain.TransportError(stageManager, err)
	}
	if err := call.Err(); err != nil {
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) {
			return domain.PreconditionError(stageManager, "unlock %s: %v", account.Hex(), err)
		}
		return domain.TransportError(stageManager, err)
	}
	if !unlocked {
		return domain.PreconditionError(stageManager, "node refused to unlock %s", account.Hex())
	}
	return nil
}

// Manager returns the account that submits exchanges.
func (c *FundClient) Manager() common.Address {
	return c.signer.Address()
}

// Pool returns the fund contract address.
func (c *FundClient) Pool() common.Address {
	return c.pool
}

// Close closes the underlying RPC connection.
func (c *FundClient) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// ReadSnapshot calls getFundComposition and decodes the result.
func (c *FundClient) ReadSnapshot(ctx context.Context) (domain.Snapshot, error) {
	c.l.Info("reading fund composition", zap.String("pool", c.pool.Hex()))

	data, err := c.fundABI.Pack(methodGetFundComposition)
	if err != nil {
		return nil, domain.EncodeError(stageSnapshot, "pack %s: %v", methodGetFundComposition, err)
	}

	manager := c.signer.Address()
	var out hexutil.Bytes
	b := NewBatch(c.rpc, c.batching)
	call := b.Queue("eth_call", &out, txArgs{From: &manager, To: &c.pool, Data: data}, "latest")
	if err := b.Flush(ctx); err != nil {
		return nil, domain.TransportError(stageSnapshot, err)
	}
	if err := call.Err(); err != nil {
		return nil, domain.TransportError(stageSnapshot, err)
	}

	composition, err := unpackFundComposition(c.fundABI, out)
	if err != nil {
		return nil, domain.DecodeError(stageSnapshot, "%v", err)
	}
	if len(composition.Balances) != len(composition.Symbols) || len(composition.Rates) != len(composition.Symbols) {
		return nil, domain.DecodeError(stageSnapshot, "composition arrays differ in length: %d symbols, %d balances, %d rates",
			len(composition.Symbols), len(composition.Balances), len(composition.Rates))
	}

	snapshot := make(domain.Snapshot, len(composition.Symbols))
	for i, raw := range composition.Symbols {
		symbol, err := codec.DecodeSymbol(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "asset %d", i)
		}
		if _, ok := snapshot[symbol]; ok {
			return nil, domain.DecodeError(stageSnapshot, "duplicate asset %s", symbol)
		}
		balance, err := codec.DecodeFixed(composition.Balances[i])
		if err != nil {
			return nil, errors.Wrapf(err, "balance of %s", symbol)
		}
		rate, err := codec.DecodeFixed(composition.Rates[i])
		if err != nil {
			return nil, errors.Wrapf(err, "rate of %s", symbol)
		}

		snapshot[symbol] = domain.NewAsset(balance, rate)
		c.l.Info("fund asset", zap.String("symbol", symbol), zap.Float64("balance", balance), zap.Float64("rate", rate))
	}

	return snapshot, nil
}

func (c *FundClient) queueNonce(b *Batch, nonce *hexutil.Uint64) *Call {
	return b.Queue("eth_getTransactionCount", nonce, c.signer.Address(), "pending")
}

// GetNonce reads the transaction count of the manager account.
func (c *FundClient) GetNonce(ctx context.Context) (uint64, error) {
	var nonce hexutil.Uint64
	b := NewBatch(c.rpc, c.batching)
	call := c.queueNonce(b, &nonce)
	if err := b.Flush(ctx); err != nil {
		return 0, domain.TransportError(stageNonce, err)
	}
	if err := call.Err(); err != nil {
		return 0, domain.TransportError(stageNonce, err)
	}
	return uint64(nonce), nil
}

// SubmitSwaps sends one exchange transaction per swap. Nonces are read once
// and assigned locally in swap order, so no other sender may use the manager
// account during the call. The returned hashes line up with swaps. On failure
// they are still returned with the first error, a rejected or unsent swap
// has a zero hash while later accepted ones keep theirs.
func (c *FundClient) SubmitSwaps(ctx context.Context, swaps []domain.Swap) ([]common.Hash, error) {
	if len(swaps) == 0 {
		return nil, nil
	}

	payloads := make([][]byte, len(swaps))
	for i, swap := range swaps {
		data, err := c.packExchange(swap)
		if err != nil {
			return nil, errors.Wrapf(err, "swap %d %s->%s", i, swap.From, swap.To)
		}
		payloads[i] = data
	}

	var nonce hexutil.Uint64
	prep := NewBatch(c.rpc, c.batching)
	nonceCall := c.queueNonce(prep, &nonce)
	prepared := c.signer.prepare(prep)
	if err := prep.Flush(ctx); err != nil {
		return nil, domain.TransportError(stageSubmit, err)
	}
	if err := nonceCall.Err(); err != nil {
		return nil, domain.TransportError(stageNonce, err)
	}
	if err := prepared(); err != nil {
		return nil, domain.TransportError(stageSubmit, err)
	}

	hashes := make([]common.Hash, len(swaps))
	calls := make([]*Call, len(swaps))
	b := NewBatch(c.rpc, c.batching)
	for i, data := range payloads {
		call, err := c.signer.send(b, uint64(nonce)+uint64(i), c.pool, data, &hashes[i])
		if err != nil {
			return nil, domain.EncodeError(stageSubmit, "%v", err)
		}
		calls[i] = call
	}

	c.l.Info("submitting exchanges", zap.Int("count", len(swaps)), zap.Uint64("first_nonce", uint64(nonce)))
	if err := b.Flush(ctx); err != nil {
		return nil, domain.TransportError(stageSubmit, err)
	}

	var firstErr error
	for i, call := range calls {
		swap := swaps[i]
		if err := call.Err(); err != nil {
			hashes[i] = common.Hash{}
			if firstErr == nil {
				firstErr = classifySendError(errors.Wrapf(err, "swap %d %s->%s", i, swap.From, swap.To))
			}
			continue
		}
		c.l.Info("exchanged",
			zap.Float64("amount", swap.FromAmount),
			zap.String("from", swap.From),
			zap.String("to", swap.To),
			zap.Uint64("nonce", uint64(nonce)+uint64(i)),
			zap.String("tx", hashes[i].Hex()))
	}

	return hashes, firstErr
}

func (c *FundClient) packExchange(swap domain.Swap) ([]byte, error) {
	from, err := codec.EncodeSymbol(swap.From)
	if err != nil {
		return nil, err
	}
	amount, err := codec.EncodeFixed(swap.FromAmount)
	if err != nil {
		return nil, err
	}
	to, err := codec.EncodeSymbol(swap.To)
	if err != nil {
		return nil, err
	}

	data, err := c.fundABI.Pack(methodExchange, from, amount, to)
	if err != nil {
		return nil, domain.EncodeError(stageSubmit, "pack %s: %v", methodExchange, err)
	}
	return data, nil
}

// classifySendError separates node rejections from transport failures.
func classifySendError(err error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return domain.ChainRejectionError(stageSubmit, err)
	}
	return domain.TransportError(stageSubmit, err)
}
