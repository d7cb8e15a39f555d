package manager

import (
	"fmt"

	"github.com/vitwit/walletlink/apperror"
	"github.com/vitwit/walletlink/types"
)

// legalTransitions lists, for each status, the statuses it may move to.
var legalTransitions = map[types.ConnectionStatus]map[types.ConnectionStatus]bool{
	types.StatusDisconnected: {
		types.StatusConnecting: true,
	},
	types.StatusConnecting: {
		types.StatusConnected:    true,
		types.StatusDisconnected: true,
		types.StatusError:        true,
		// session lost while a chain switch was in flight
		types.StatusReconnecting: true,
	},
	types.StatusConnected: {
		// chain changed from the wallet side
		types.StatusConnected:    true,
		types.StatusConnecting:   true,
		types.StatusReconnecting: true,
		types.StatusDisconnected: true,
	},
	types.StatusReconnecting: {
		types.StatusConnected:    true,
		types.StatusError:        true,
		types.StatusDisconnected: true,
	},
	types.StatusError: {
		types.StatusDisconnected: true,
	},
}

// validateTransition reports whether the state machine allows from -> to.
func validateTransition(from, to types.ConnectionStatus) error {
	next, ok := legalTransitions[from]
	if !ok {
		return apperror.NewValidation(fmt.Sprintf("unknown connection status %q", from), nil)
	}
	if !next[to] {
		return apperror.NewValidation(fmt.Sprintf("illegal transition %s -> %s", from, to), nil)
	}
	return nil
}
