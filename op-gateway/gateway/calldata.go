package gateway

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/mantlenetworkio/evm-gateway/op-gateway/program"
)

const gatewayABIJSON = `[
	{
		"type": "function",
		"name": "getStorageSlots",
		"stateMutability": "view",
		"inputs": [
			{"name": "addr", "type": "address"},
			{"name": "commands", "type": "bytes32[]"},
			{"name": "constants", "type": "bytes[]"}
		],
		"outputs": [
			{"name": "witness", "type": "bytes"}
		]
	}
]`

var (
	ErrUnknownSelector   = errors.New("unknown function selector")
	ErrMalformedCalldata = errors.New("malformed calldata")
)

var gatewayABI = mustParseABI(gatewayABIJSON)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Errorf("invalid gateway ABI: %w", err))
	}
	return parsed
}

// Request is a decoded getStorageSlots call.
type Request struct {
	Address   common.Address
	Commands  []program.Command
	Constants [][]byte
}

// DecodeCalldata decodes getStorageSlots(address,bytes32[],bytes[]) calldata.
func DecodeCalldata(data []byte) (*Request, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedCalldata, len(data))
	}
	method, err := gatewayABI.MethodById(data[:4])
	if err != nil {
		return nil, fmt.Errorf("%w: %x", ErrUnknownSelector, data[:4])
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedCalldata, err)
	}
	address := *abi.ConvertType(args[0], new(common.Address)).(*common.Address)
	words := *abi.ConvertType(args[1], new([][32]byte)).(*[][32]byte)
	constants := *abi.ConvertType(args[2], new([][]byte)).(*[][]byte)

	commands := make([]program.Command, len(words))
	for i, w := range words {
		commands[i] = program.Command(w)
	}
	return &Request{Address: address, Commands: commands, Constants: constants}, nil
}

// EncodeCalldata encodes req as getStorageSlots calldata.
func EncodeCalldata(req *Request) ([]byte, error) {
	words := make([][32]byte, len(req.Commands))
	for i, c := range req.Commands {
		words[i] = [32]byte(c)
	}
	constants := req.Constants
	if constants == nil {
		constants = [][]byte{}
	}
	return gatewayABI.Pack("getStorageSlots", req.Address, words, constants)
}

// EncodeResponse ABI-encodes the witness as the return data of getStorageSlots.
func EncodeResponse(witness []byte) ([]byte, error) {
	return gatewayABI.Methods["getStorageSlots"].Outputs.Pack(witness)
}

// DecodeResponse is the inverse of EncodeResponse.
func DecodeResponse(data []byte) ([]byte, error) {
	out, err := gatewayABI.Unpack("getStorageSlots", data)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new([]byte)).(*[]byte), nil
}
