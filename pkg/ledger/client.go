package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"stagebridge/pkg/ident"
)

var ErrNoSigner = errors.New("ledger: no signing key configured")

// contractCaller is the read slice of the RPC client; tests substitute it.
type contractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Client is the go-ethereum backed Accessor for one chain deployment.
type Client struct {
	eth      *ethclient.Client
	caller   contractCaller
	contract common.Address
	key      *ecdsa.PrivateKey
	wallet   common.Address
	chainID  *big.Int
}

// Dial connects to one chain. privateKeyHex may be empty for a read-only
// client; writes then fail with ErrNoSigner.
func Dial(ctx context.Context, rpcURL, contractAddr, privateKeyHex string) (*Client, error) {
	if !strings.HasPrefix(contractAddr, "0x") {
		return nil, fmt.Errorf("ledger: contract address %q is not set", contractAddr)
	}
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("ledger: dial %s: %w", rpcURL, err)
	}
	chainID, err := eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: chain id: %w", err)
	}
	c := &Client{
		eth:      eth,
		caller:   eth,
		contract: common.HexToAddress(contractAddr),
		chainID:  chainID,
	}
	if strings.TrimSpace(privateKeyHex) != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
		if err != nil {
			return nil, fmt.Errorf("ledger: private key: %w", err)
		}
		c.key = key
		c.wallet = crypto.PubkeyToAddress(key.PublicKey)
	}
	return c, nil
}

func (c *Client) ChainID(ctx context.Context) (uint64, error) { return c.chainID.Uint64(), nil }
func (c *Client) WalletAddress() string                       { return c.wallet.Hex() }
func (c *Client) ContractAddress() string                     { return c.contract.Hex() }

func (c *Client) call(ctx context.Context, method string, args ...any) ([]any, State) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, Unsupported
	}
	out, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
	if err != nil {
		return nil, classifyCallError(err)
	}
	// A selector the deployment lacks falls through to an empty return.
	if len(out) == 0 {
		return nil, Unsupported
	}
	vals, err := contractABI.Unpack(method, out)
	if err != nil {
		return nil, Unsupported
	}
	return vals, Supported
}

func (c *Client) StageOf(ctx context.Context, key ident.Key) Result[uint8] {
	vals, st := c.call(ctx, "stageOf", [32]byte(key))
	if st != Supported {
		return Result[uint8]{State: st}
	}
	v, okc := vals[0].(uint8)
	if !okc {
		return missing[uint8]()
	}
	return ok(v)
}

func (c *Client) NoteOf(ctx context.Context, key ident.Key) Result[string] {
	vals, st := c.call(ctx, "noteOf", [32]byte(key))
	if st != Supported {
		return Result[string]{State: st}
	}
	v, okc := vals[0].(string)
	if !okc {
		return missing[string]()
	}
	return ok(v)
}

func (c *Client) UpdatedAt(ctx context.Context, key ident.Key) Result[uint64] {
	vals, st := c.call(ctx, "updatedAt", [32]byte(key))
	if st != Supported {
		return Result[uint64]{State: st}
	}
	v, okc := vals[0].(*big.Int)
	if !okc {
		return missing[uint64]()
	}
	return ok(v.Uint64())
}

func (c *Client) Version(ctx context.Context) Result[uint64] {
	vals, st := c.call(ctx, "version")
	if st != Supported {
		return Result[uint64]{State: st}
	}
	v, okc := vals[0].(*big.Int)
	if !okc {
		return missing[uint64]()
	}
	return ok(v.Uint64())
}

// Voters tries the aggregate getVoters() first and falls back to per-index
// voters(i) reads on older deployments.
func (c *Client) Voters(ctx context.Context) Result[[]string] {
	if vals, st := c.call(ctx, "getVoters"); st == Supported {
		if arr, okc := vals[0].([rosterSize]common.Address); okc {
			out := make([]string, 0, rosterSize)
			for _, a := range arr {
				out = append(out, a.Hex())
			}
			return ok(out)
		}
	}
	var out []string
	for i := 0; i < rosterSize; i++ {
		vals, st := c.call(ctx, "voters", big.NewInt(int64(i)))
		if st != Supported {
			if i == 0 {
				return Result[[]string]{State: st}
			}
			break
		}
		a, okc := vals[0].(common.Address)
		if !okc {
			break
		}
		out = append(out, a.Hex())
	}
	return ok(out)
}

func (c *Client) HasVoted(ctx context.Context, key ident.Key, voter string) Result[bool] {
	vals, st := c.call(ctx, "hasVoted", [32]byte(key), common.HexToAddress(voter))
	if st != Supported {
		return Result[bool]{State: st}
	}
	v, okc := vals[0].(bool)
	if !okc {
		return missing[bool]()
	}
	return ok(v)
}

func (c *Client) ApprovalsOf(ctx context.Context, key ident.Key) Result[uint8] {
	vals, st := c.call(ctx, "approvalsOf", [32]byte(key))
	if st != Supported {
		return Result[uint8]{State: st}
	}
	v, okc := vals[0].(uint8)
	if !okc {
		return missing[uint8]()
	}
	return ok(v)
}

func (c *Client) SubmitSetStage(ctx context.Context, key ident.Key, stage uint8) (Tx, error) {
	return c.submit(ctx, "setStage", [32]byte(key), stage)
}

func (c *Client) SubmitSetNote(ctx context.Context, key ident.Key, note string) (Tx, error) {
	return c.submit(ctx, "setNote", [32]byte(key), note)
}

func (c *Client) SubmitVote(ctx context.Context, key ident.Key, approve bool) (Tx, error) {
	return c.submit(ctx, "vote", [32]byte(key), approve)
}

func (c *Client) submit(ctx context.Context, method string, args ...any) (Tx, error) {
	if c.key == nil {
		return Tx{}, ErrNoSigner
	}
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return Tx{}, err
	}
	nonce, err := c.eth.PendingNonceAt(ctx, c.wallet)
	if err != nil {
		return Tx{}, err
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return Tx{}, err
	}
	gas, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{From: c.wallet, To: &c.contract, Data: data})
	if err != nil {
		return Tx{}, err
	}
	tx := types.NewTransaction(nonce, c.contract, big.NewInt(0), gas, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return Tx{}, err
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return Tx{}, err
	}
	return Tx{Hash: signed.Hash().Hex()}, nil
}

// ConfirmTx is a single confirmation probe; callers retry it until the
// receipt lands.
func (c *Client) ConfirmTx(ctx context.Context, tx Tx) (uint64, error) {
	receipt, err := c.eth.TransactionReceipt(ctx, common.HexToHash(tx.Hash))
	if err != nil {
		return 0, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return 0, fmt.Errorf("ledger: transaction %s reverted", tx.Hash)
	}
	return receipt.BlockNumber.Uint64(), nil
}
