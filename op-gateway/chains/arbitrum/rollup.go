package arbitrum

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const globalStateJSON = `{"name":"globalState","type":"tuple","components":[
	{"name":"bytes32Vals","type":"bytes32[2]"},
	{"name":"u64Vals","type":"uint64[2]"}]}`

const executionStateJSON = `[` + globalStateJSON + `,{"name":"machineStatus","type":"uint8"}]`

const rollupABIJSON = `[
	{"type":"function","name":"latestNodeCreated","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint64"}]},
	{"type":"event","name":"NodeCreated","anonymous":false,"inputs":[
		{"indexed":true,"name":"nodeNum","type":"uint64"},
		{"indexed":true,"name":"parentNodeHash","type":"bytes32"},
		{"indexed":true,"name":"nodeHash","type":"bytes32"},
		{"indexed":false,"name":"executionHash","type":"bytes32"},
		{"indexed":false,"name":"assertion","type":"tuple","components":[
			{"name":"beforeState","type":"tuple","components":` + executionStateJSON + `},
			{"name":"afterState","type":"tuple","components":` + executionStateJSON + `},
			{"name":"numBlocks","type":"uint64"}]},
		{"indexed":false,"name":"afterInboxBatchAcc","type":"bytes32"},
		{"indexed":false,"name":"wasmModuleRoot","type":"bytes32"},
		{"indexed":false,"name":"inboxMaxCount","type":"uint256"}]}
]`

var rollupABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(rollupABIJSON))
	if err != nil {
		panic(err)
	}
	return parsed
}()

type GlobalState struct {
	Bytes32Vals [2][32]byte
	U64Vals     [2]uint64
}

// BlockHash is the hash of the last L2 block covered by the state.
func (g GlobalState) BlockHash() [32]byte {
	return g.Bytes32Vals[0]
}

// SendRoot is the root of the L2 to L1 message accumulator.
func (g GlobalState) SendRoot() [32]byte {
	return g.Bytes32Vals[1]
}

type ExecutionState struct {
	GlobalState   GlobalState
	MachineStatus uint8
}

type Assertion struct {
	BeforeState ExecutionState
	AfterState  ExecutionState
	NumBlocks   uint64
}
