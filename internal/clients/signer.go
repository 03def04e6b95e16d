package clients

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

const defaultKeySignerGasLimit = 1_500_000

// txArgs transaction fields as accepted by eth_call and eth_sendTransaction.
type txArgs struct {
	From  *common.Address `json:"from,omitempty"`
	To    *common.Address `json:"to,omitempty"`
	Gas   *hexutil.Uint64 `json:"gas,omitempty"`
	Nonce *hexutil.Uint64 `json:"nonce,omitempty"`
	Data  hexutil.Bytes   `json:"data,omitempty"`
}

// signer submits transactions on behalf of the manager account.
type signer interface {
	Address() common.Address
	// prepare queues the reads the signer needs before sending. The returned
	// func must be called after the batch was flushed.
	prepare(b *Batch) func() error
	// send queues a transaction calling to with data and the given nonce.
	send(b *Batch, nonce uint64, to common.Address, data []byte, hash *common.Hash) (*Call, error)
}

// nodeSigner lets the node sign with an account it manages.
type nodeSigner struct {
	account  common.Address
	gasLimit uint64
}

func (s *nodeSigner) Address() common.Address {
	return s.account
}

func (s *nodeSigner) prepare(*Batch) func() error {
	return func() error { return nil }
}

func (s *nodeSigner) send(b *Batch, nonce uint64, to common.Address, data []byte, hash *common.Hash) (*Call, error) {
	n := hexutil.Uint64(nonce)
	args := txArgs{
		From:  &s.account,
		To:    &to,
		Nonce: &n,
		Data:  data,
	}
	if s.gasLimit > 0 {
		gas := hexutil.Uint64(s.gasLimit)
		args.Gas = &gas
	}
	return b.Queue("eth_sendTransaction", hash, args), nil
}

// keySigner signs legacy transactions locally and sends them raw.
type keySigner struct {
	key      *ecdsa.PrivateKey
	account  common.Address
	gasLimit uint64

	chainID  hexutil.Big
	gasPrice hexutil.Big
}

func newKeySigner(key *ecdsa.PrivateKey, gasLimit uint64) *keySigner {
	if gasLimit == 0 {
		gasLimit = defaultKeySignerGasLimit
	}
	return &keySigner{
		key:      key,
		account:  crypto.PubkeyToAddress(key.PublicKey),
		gasLimit: gasLimit,
	}
}

func (s *keySigner) Address() common.Address {
	return s.account
}

func (s *keySigner) prepare(b *Batch) func() error {
	chainIDCall := b.Queue("eth_chainId", &s.chainID)
	gasPriceCall := b.Queue("eth_gasPrice", &s.gasPrice)
	return func() error {
		if err := chainIDCall.Err(); err != nil {
			return err
		}
		return gasPriceCall.Err()
	}
}

func (s *keySigner) send(b *Batch, nonce uint64, to common.Address, data []byte, hash *common.Hash) (*Call, error) {
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: new(big.Int).Set(s.gasPrice.ToInt()),
		Gas:      s.gasLimit,
		To:       &to,
		Value:    new(big.Int),
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID.ToInt()), s.key)
	if err != nil {
		return nil, errors.Wrapf(err, "sign transaction with nonce %d", nonce)
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, errors.Wrap(err, "encode signed transaction")
	}

	return b.Queue("eth_sendRawTransaction", hash, hexutil.Bytes(raw)), nil
}
