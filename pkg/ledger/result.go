package ledger

import "strings"

// State classifies the outcome of a single contract read.
type State int

const (
	// Supported: the deployment answered and Value is usable.
	Supported State = iota
	// Unsupported: the deployed version does not implement the method.
	// Treated as "field absent", never as a failure.
	Unsupported
	// TransientError: transport or node failure; the field may exist.
	TransientError
)

// Result carries one optional contract field. Aggregates are composed by
// fetching each field independently and including only Supported values.
type Result[T any] struct {
	Value T
	State State
}

func ok[T any](v T) Result[T]      { return Result[T]{Value: v} }
func missing[T any]() Result[T]    { return Result[T]{State: Unsupported} }
func unreliable[T any]() Result[T] { return Result[T]{State: TransientError} }

func (r Result[T]) Supported() bool { return r.State == Supported }

// classifyCallError decides whether a failed eth_call means the method is
// absent on this deployment or the node could not be reached. Calling a
// selector the contract lacks reverts (or yields empty return data, handled
// by the caller); anything else is transport trouble.
func classifyCallError(err error) State {
	if err == nil {
		return Supported
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "execution reverted") ||
		strings.Contains(msg, "invalid opcode") ||
		strings.Contains(msg, "abi: ") {
		return Unsupported
	}
	return TransientError
}
