package ledger

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"stagebridge/pkg/ident"
)

type fakeCaller struct {
	handle func(data []byte) ([]byte, error)
}

func (f fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	return f.handle(msg.Data)
}

func selector(method string) []byte {
	return contractABI.Methods[method].ID
}

func packOutputs(t *testing.T, method string, vals ...any) []byte {
	t.Helper()
	out, err := contractABI.Methods[method].Outputs.Pack(vals...)
	if err != nil {
		t.Fatalf("pack outputs for %s: %v", method, err)
	}
	return out
}

func TestClassifyCallError(t *testing.T) {
	if st := classifyCallError(errors.New("execution reverted")); st != Unsupported {
		t.Fatalf("revert classified as %d", st)
	}
	if st := classifyCallError(errors.New("dial tcp: connection refused")); st != TransientError {
		t.Fatalf("transport failure classified as %d", st)
	}
	if st := classifyCallError(nil); st != Supported {
		t.Fatalf("nil error classified as %d", st)
	}
}

func TestStageOfSupported(t *testing.T) {
	c := &Client{caller: fakeCaller{handle: func(data []byte) ([]byte, error) {
		if !bytes.HasPrefix(data, selector("stageOf")) {
			return nil, errors.New("unexpected method")
		}
		return packOutputs(t, "stageOf", uint8(2)), nil
	}}}
	r := c.StageOf(context.Background(), ident.HashID("floor1"))
	if !r.Supported() || r.Value != 2 {
		t.Fatalf("StageOf = %+v", r)
	}
}

func TestStageOfTransient(t *testing.T) {
	c := &Client{caller: fakeCaller{handle: func([]byte) ([]byte, error) {
		return nil, errors.New("i/o timeout")
	}}}
	if r := c.StageOf(context.Background(), ident.HashID("floor1")); r.State != TransientError {
		t.Fatalf("expected TransientError, got %+v", r)
	}
}

func TestVotersFallsBackToIndexedReads(t *testing.T) {
	addrs := [rosterSize]common.Address{
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		common.HexToAddress("0x2222222222222222222222222222222222222222"),
		common.HexToAddress("0x3333333333333333333333333333333333333333"),
	}
	c := &Client{caller: fakeCaller{handle: func(data []byte) ([]byte, error) {
		switch {
		case bytes.HasPrefix(data, selector("getVoters")):
			return nil, errors.New("execution reverted")
		case bytes.HasPrefix(data, selector("voters")):
			var idx *big.Int
			vals, err := contractABI.Methods["voters"].Inputs.Unpack(data[4:])
			if err != nil {
				return nil, err
			}
			idx = vals[0].(*big.Int)
			return packOutputs(t, "voters", addrs[idx.Int64()]), nil
		}
		return nil, errors.New("unexpected method")
	}}}
	r := c.Voters(context.Background())
	if !r.Supported() || len(r.Value) != rosterSize {
		t.Fatalf("Voters = %+v", r)
	}
	for i, a := range addrs {
		if r.Value[i] != a.Hex() {
			t.Fatalf("voter %d = %s, want %s", i, r.Value[i], a.Hex())
		}
	}
}

func TestVotersAggregateRead(t *testing.T) {
	addrs := [rosterSize]common.Address{
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		common.HexToAddress("0x2222222222222222222222222222222222222222"),
		common.HexToAddress("0x3333333333333333333333333333333333333333"),
	}
	c := &Client{caller: fakeCaller{handle: func(data []byte) ([]byte, error) {
		if bytes.HasPrefix(data, selector("getVoters")) {
			return packOutputs(t, "getVoters", addrs), nil
		}
		return nil, errors.New("unexpected method")
	}}}
	r := c.Voters(context.Background())
	if !r.Supported() || len(r.Value) != rosterSize {
		t.Fatalf("Voters = %+v", r)
	}
}

func TestVotersUnsupportedDeployment(t *testing.T) {
	c := &Client{caller: fakeCaller{handle: func([]byte) ([]byte, error) {
		return nil, errors.New("execution reverted")
	}}}
	if r := c.Voters(context.Background()); r.State != Unsupported {
		t.Fatalf("expected Unsupported, got %+v", r)
	}
}

func TestSubmitWithoutSigner(t *testing.T) {
	c := &Client{caller: fakeCaller{handle: func([]byte) ([]byte, error) { return nil, nil }}}
	if _, err := c.SubmitSetStage(context.Background(), ident.HashID("floor1"), 1); !errors.Is(err, ErrNoSigner) {
		t.Fatalf("expected ErrNoSigner, got %v", err)
	}
}
