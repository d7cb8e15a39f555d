package clients

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/walletlink/apperror"
	"github.com/vitwit/walletlink/registry"
	"github.com/vitwit/walletlink/types"
)

type ethService struct {
	chainID uint64
	fail    atomic.Bool
}

func (s *ethService) ChainId() (*hexutil.Big, error) {
	if s.fail.Load() {
		return nil, errors.New("upstream unavailable")
	}
	return (*hexutil.Big)(new(big.Int).SetUint64(s.chainID)), nil
}

func (s *ethService) BlockNumber() (hexutil.Uint64, error) {
	return hexutil.Uint64(19_000_000), nil
}

func inProcDialer(t *testing.T, svc *ethService, dials *atomic.Int32) DialFunc {
	t.Helper()
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", svc))
	t.Cleanup(server.Stop)

	return func(ctx context.Context, chain types.ChainDescriptor) (Client, error) {
		dials.Add(1)
		return NewEVMClientFrom(chain, ethclient.NewClient(rpc.DialInProc(server))), nil
	}
}

func TestProbeMatchingChain(t *testing.T) {
	var dials atomic.Int32
	svc := &ethService{chainID: 137}
	pool := NewPool(registry.Default(nil), WithDialer(inProcDialer(t, svc, &dials)))
	defer pool.Close()

	require.NoError(t, pool.Probe(context.Background(), types.ChainPolygon))
	require.NoError(t, pool.Probe(context.Background(), types.ChainPolygon))
	assert.Equal(t, int32(1), dials.Load(), "client is reused between probes")

	c, err := pool.Get(context.Background(), types.ChainPolygon)
	require.NoError(t, err)
	n, err := c.BlockNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(19_000_000), n)
	assert.Equal(t, "Polygon", c.GetChain().Name)
}

func TestProbeChainMismatch(t *testing.T) {
	var dials atomic.Int32
	svc := &ethService{chainID: 1}
	pool := NewPool(registry.Default(nil), WithDialer(inProcDialer(t, svc, &dials)))
	defer pool.Close()

	err := pool.Probe(context.Background(), types.ChainPolygon)
	require.Error(t, err)
	assert.Equal(t, apperror.KindNetwork, apperror.KindOf(err))
	assert.Contains(t, err.Error(), "serves chain 1")
}

func TestProbeUnreachableEvictsClient(t *testing.T) {
	var dials atomic.Int32
	svc := &ethService{chainID: 137}
	svc.fail.Store(true)
	pool := NewPool(registry.Default(nil), WithDialer(inProcDialer(t, svc, &dials)))
	defer pool.Close()

	err := pool.Probe(context.Background(), types.ChainPolygon)
	require.Error(t, err)
	assert.Equal(t, apperror.KindNetwork, apperror.KindOf(err))

	svc.fail.Store(false)
	require.NoError(t, pool.Probe(context.Background(), types.ChainPolygon))
	assert.Equal(t, int32(2), dials.Load(), "failed client is re-dialed")
}

func TestProbeUnknownChain(t *testing.T) {
	pool := NewPool(registry.Default(nil))
	err := pool.Probe(context.Background(), 999999)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestDialFailureIsNetworkError(t *testing.T) {
	pool := NewPool(registry.Default(nil), WithDialer(func(context.Context, types.ChainDescriptor) (Client, error) {
		return nil, errors.New("no route to host")
	}))
	_, err := pool.Get(context.Background(), types.ChainEthereum)
	assert.ErrorIs(t, err, apperror.ErrNetwork)
}
