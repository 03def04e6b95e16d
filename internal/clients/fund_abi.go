package clients

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/pkg/errors"
)

const (
	methodGetFundComposition = "getFundComposition"
	methodExchange           = "exchange"
)

// fundABI is the part of the dHEDGE pool interface used by the rebalancer.
const fundABI = `[
	{
		"constant": true,
		"inputs": [],
		"name": "getFundComposition",
		"outputs": [
			{"name": "", "type": "bytes32[]"},
			{"name": "", "type": "uint256[]"},
			{"name": "", "type": "uint256[]"}
		],
		"payable": false,
		"stateMutability": "view",
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "sourceKey", "type": "bytes32"},
			{"name": "sourceAmount", "type": "uint256"},
			{"name": "destinationKey", "type": "bytes32"}
		],
		"name": "exchange",
		"outputs": [],
		"payable": false,
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// fundComposition raw getFundComposition output.
type fundComposition struct {
	Symbols  [][32]byte
	Balances []*big.Int
	Rates    []*big.Int
}

func parseFundABI() (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(fundABI))
	if err != nil {
		return abi.ABI{}, errors.Wrap(err, "parse fund ABI")
	}
	return parsed, nil
}

func unpackFundComposition(parsed abi.ABI, data []byte) (fundComposition, error) {
	out, err := parsed.Unpack(methodGetFundComposition, data)
	if err != nil {
		return fundComposition{}, errors.Wrap(err, "unpack getFundComposition")
	}
	if len(out) != 3 {
		return fundComposition{}, errors.Errorf("getFundComposition returned %d values, expected 3", len(out))
	}

	return fundComposition{
		Symbols:  *abi.ConvertType(out[0], new([][32]byte)).(*[][32]byte),
		Balances: *abi.ConvertType(out[1], new([]*big.Int)).(*[]*big.Int),
		Rates:    *abi.ConvertType(out[2], new([]*big.Int)).(*[]*big.Int),
	}, nil
}
