package connectors

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/vitwit/walletlink/apperror"
)

// EIP-1193 provider error codes
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupported       = 4200
	CodeDisconnected      = 4900
	CodeChainDisconnect   = 4901
	CodeUnrecognizedChain = 4902
)

// Relay message types
const (
	msgPairRequest    = "pair_request"
	msgSessionApprove = "session_approve"
	msgSessionReject  = "session_reject"
	msgSessionDelete  = "session_delete"
	msgSwitchChain    = "switch_chain"
	msgChainChanged   = "chain_changed"
)

// rpcErrorCode extracts a JSON-RPC error code, if err carries one.
func rpcErrorCode(err error) (int, bool) {
	var rerr rpc.Error
	if errors.As(err, &rerr) {
		return rerr.ErrorCode(), true
	}
	return 0, false
}

// mapProviderError converts a provider failure into the taxonomy.
func mapProviderError(op string, err error) *apperror.Error {
	if err == nil {
		return nil
	}

	var ae *apperror.Error
	if errors.As(err, &ae) {
		return ae
	}

	code, ok := rpcErrorCode(err)
	if !ok {
		return apperror.FromNetwork(op, err)
	}

	switch code {
	case CodeUserRejected:
		return apperror.NewAuth(fmt.Sprintf("%s: user rejected the request", op), err)
	case CodeUnauthorized:
		return apperror.NewAuth(fmt.Sprintf("%s: wallet has not authorized this application", op), err)
	case CodeUnsupported:
		return apperror.NewAuth(fmt.Sprintf("%s: wallet does not support this method", op), err)
	case CodeDisconnected, CodeChainDisconnect:
		return apperror.NewNetwork(fmt.Sprintf("%s: wallet is disconnected", op), err)
	case CodeUnrecognizedChain:
		return apperror.NewNotFound(fmt.Sprintf("%s: wallet does not know this chain", op), err)
	default:
		return apperror.NewAuth(fmt.Sprintf("%s: wallet returned error %d", op, code), err)
	}
}

// asAuth forces a connect-time failure into an AuthError, keeping the
// original message.
func asAuth(err error) *apperror.Error {
	ae := apperror.Classify(err)
	if ae.Kind() == apperror.KindAuth {
		return ae
	}
	return apperror.NewAuth(ae.Message(), err)
}
