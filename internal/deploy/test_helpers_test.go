package deploy

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/mock"
)

var (
	testAddrA      = common.HexToAddress("0xA00000000000000000000000000000000000000A")
	testAddrB      = common.HexToAddress("0xB00000000000000000000000000000000000000B")
	testAddrC      = common.HexToAddress("0xC00000000000000000000000000000000000000C")
	testFeeAccount = "0x388C818CA8B9251b393131C08a736A67ccB19297"
)

func testParams() Params {
	p, err := ParseParams("1000000000000000000", testFeeAccount, testFeeAccount, 15)
	if err != nil {
		panic(err)
	}
	return p
}

// fakeChain is an in-memory ChainClient that records every call in order.
type fakeChain struct {
	mu         sync.Mutex
	addresses  map[string]common.Address
	submitErr  map[string]error
	confirmErr map[string]error
	hang       map[string]bool

	deployed map[string][]any
	events   []string
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		addresses: map[string]common.Address{
			UserRegistry:           testAddrA,
			ProviderRegistry:       testAddrB,
			PreConfCommitmentStore: testAddrC,
		},
		submitErr:  map[string]error{},
		confirmErr: map[string]error{},
		hang:       map[string]bool{},
		deployed:   map[string][]any{},
	}
}

func (f *fakeChain) DeployContract(_ context.Context, name string, args ...any) (*Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.events = append(f.events, "submit:"+name)
	f.deployed[name] = args
	if err := f.submitErr[name]; err != nil {
		return nil, err
	}
	tx := types.NewContractCreation(uint64(len(f.events)), big.NewInt(0), 1_000_000, big.NewInt(1), []byte(name))
	return NewHandle(name, tx), nil
}

func (f *fakeChain) AwaitConfirmation(ctx context.Context, h *Handle) (common.Address, error) {
	f.mu.Lock()
	hang := f.hang[h.Contract]
	err := f.confirmErr[h.Contract]
	addr := f.addresses[h.Contract]
	f.mu.Unlock()

	if hang {
		<-ctx.Done()
		return common.Address{}, ctx.Err()
	}
	if err != nil {
		return common.Address{}, err
	}

	f.mu.Lock()
	f.events = append(f.events, "confirm:"+h.Contract)
	f.mu.Unlock()
	return addr, nil
}

func (f *fakeChain) wasDeployed(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.deployed[name]
	return ok
}

func (f *fakeChain) argsOf(name string) []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deployed[name]
}

func (f *fakeChain) indexOf(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.events {
		if e == event {
			return i
		}
	}
	panic(fmt.Sprintf("event %q not recorded in %v", event, f.events))
}

// MockRecorder is a mock implementation of Recorder for testing.
type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) Submitted(ctx context.Context, contract string, txHash common.Hash) {
	m.Called(ctx, contract, txHash)
}

func (m *MockRecorder) Confirmed(ctx context.Context, contract string, addr common.Address, elapsed time.Duration) {
	m.Called(ctx, contract, addr, elapsed)
}

func (m *MockRecorder) Failed(ctx context.Context, contract string, err *DeploymentError) {
	m.Called(ctx, contract, err)
}

var _ Recorder = (*MockRecorder)(nil)
