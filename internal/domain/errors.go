package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure of a rebalance run.
type Kind string

const (
	KindTransport      Kind = "transport"
	KindDecode         Kind = "decode"
	KindEncode         Kind = "encode"
	KindPrecondition   Kind = "precondition"
	KindChainRejection Kind = "chain_rejection"
)

// Error is a failure tagged with its kind and the stage that produced it.
type Error struct {
	Kind  Kind
	Stage string
	Err   error
}

// Sentinels for errors.Is matching by kind.
var (
	ErrTransport      = &Error{Kind: KindTransport}
	ErrDecode         = &Error{Kind: KindDecode}
	ErrEncode         = &Error{Kind: KindEncode}
	ErrPrecondition   = &Error{Kind: KindPrecondition}
	ErrChainRejection = &Error{Kind: KindChainRejection}
)

func (e *Error) Error() string {
	msg := string(e.Kind) + " error"
	if e.Stage != "" {
		msg = e.Stage + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a kind sentinel matching e.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Stage != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// StageOf returns the stage of the first Error in err's chain.
func StageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}

func newError(kind Kind, stage string, err error) error {
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// TransportError wraps a network or RPC failure.
func TransportError(stage string, err error) error {
	return newError(KindTransport, stage, err)
}

// DecodeError wraps a failure to interpret an on-chain value.
func DecodeError(stage string, format string, args ...any) error {
	return newError(KindDecode, stage, fmt.Errorf(format, args...))
}

// EncodeError wraps a failure to represent a value on chain.
func EncodeError(stage string, format string, args ...any) error {
	return newError(KindEncode, stage, fmt.Errorf(format, args...))
}

// PreconditionError reports a snapshot that cannot be planned against.
func PreconditionError(stage string, format string, args ...any) error {
	return newError(KindPrecondition, stage, fmt.Errorf(format, args...))
}

// ChainRejectionError wraps a node rejecting a submitted transaction.
func ChainRejectionError(stage string, err error) error {
	return newError(KindChainRejection, stage, err)
}
