package ledger

import (
	"context"

	"stagebridge/pkg/ident"
)

// Tx is a pending write handle. Submission does not make the write durable;
// it is confirmed only once ConfirmTx reports a block number.
type Tx struct {
	Hash string
}

// Accessor is the per-chain contract surface. StageOf through Version form
// the base API every deployment has; Voters, HasVoted, ApprovalsOf and
// SubmitVote are version-dependent extensions and report Unsupported where
// the deployment lacks them.
//
// Submit* and ConfirmTx are single attempts; callers wrap them in their own
// retry policy.
type Accessor interface {
	ChainID(ctx context.Context) (uint64, error)
	WalletAddress() string
	ContractAddress() string

	StageOf(ctx context.Context, key ident.Key) Result[uint8]
	NoteOf(ctx context.Context, key ident.Key) Result[string]
	UpdatedAt(ctx context.Context, key ident.Key) Result[uint64]
	Version(ctx context.Context) Result[uint64]

	Voters(ctx context.Context) Result[[]string]
	HasVoted(ctx context.Context, key ident.Key, voter string) Result[bool]
	ApprovalsOf(ctx context.Context, key ident.Key) Result[uint8]

	SubmitSetStage(ctx context.Context, key ident.Key, stage uint8) (Tx, error)
	SubmitSetNote(ctx context.Context, key ident.Key, note string) (Tx, error)
	SubmitVote(ctx context.Context, key ident.Key, approve bool) (Tx, error)
	ConfirmTx(ctx context.Context, tx Tx) (uint64, error)
}
