package pool_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkadb/arka-go/pool"
	"github.com/arkadb/arka-go/pool/mock"
	"github.com/arkadb/arka-go/routing"
)

// fakeConn is a minimal stateful Conn for pool tests: it only tracks the
// closed flag, which is all the pool cares about.
type fakeConn struct {
	addr   routing.Address
	closed uint32
}

func (c *fakeConn) Addr() routing.Address { return c.addr }

func (c *fakeConn) Send(ctx context.Context, payload []byte) error { return nil }

func (c *fakeConn) Receive(ctx context.Context, buf *bytes.Buffer) (int, error) { return 0, nil }

func (c *fakeConn) Close() error {
	atomic.StoreUint32(&c.closed, 1)
	return nil
}

func (c *fakeConn) IsClosed() bool {
	return atomic.LoadUint32(&c.closed) == 1
}

func TestPool_AcquireUnknownAddress(t *testing.T) {
	ctrl := gomock.NewController(t)
	p := pool.New(pool.Config{Dialer: mock.NewMockDialer(ctrl)})

	_, err := p.Acquire(context.Background(), "host1:9001")
	assert.ErrorIs(t, err, pool.ErrAddressUnknown)
}

func TestPool_AcquireDialsNew(t *testing.T) {
	ctrl := gomock.NewController(t)
	addr := routing.Address("host1:9001")
	conn := &fakeConn{addr: addr}

	dialer := mock.NewMockDialer(ctrl)
	dialer.EXPECT().DialContext(gomock.Any(), addr).Return(conn, nil)

	p := pool.New(pool.Config{Dialer: dialer})
	p.Add(addr)

	got, err := p.Acquire(context.Background(), addr)
	require.NoError(t, err)

	assert.Same(t, pool.Conn(conn), got)
	assert.Equal(t, 1, p.InUse(addr))
}

func TestPool_ReleaseReuses(t *testing.T) {
	ctrl := gomock.NewController(t)
	addr := routing.Address("host1:9001")
	conn := &fakeConn{addr: addr}

	dialer := mock.NewMockDialer(ctrl)
	dialer.EXPECT().DialContext(gomock.Any(), addr).Return(conn, nil).Times(1)

	p := pool.New(pool.Config{Dialer: dialer})
	p.Add(addr)

	first, err := p.Acquire(context.Background(), addr)
	require.NoError(t, err)

	p.Release(first)
	assert.Equal(t, 0, p.InUse(addr))

	second, err := p.Acquire(context.Background(), addr)
	require.NoError(t, err)

	assert.Same(t, first, second)
}

func TestPool_BrokenConnNotReused(t *testing.T) {
	ctrl := gomock.NewController(t)
	addr := routing.Address("host1:9001")
	conns := []*fakeConn{{addr: addr}, {addr: addr}}

	var dialed int32

	dialer := mock.NewMockDialer(ctrl)
	dialer.EXPECT().DialContext(gomock.Any(), addr).DoAndReturn(
		func(context.Context, routing.Address) (pool.Conn, error) {
			return conns[atomic.AddInt32(&dialed, 1)-1], nil
		},
	).Times(2)

	p := pool.New(pool.Config{Dialer: dialer})
	p.Add(addr)

	first, err := p.Acquire(context.Background(), addr)
	require.NoError(t, err)

	// The connection breaks while checked out.
	_ = first.Close()
	p.Release(first)

	second, err := p.Acquire(context.Background(), addr)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
}

func TestPool_DialFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	addr := routing.Address("host1:9001")

	dialer := mock.NewMockDialer(ctrl)
	dialer.EXPECT().DialContext(gomock.Any(), addr).Return(nil, errors.New("connection refused"))

	p := pool.New(pool.Config{Dialer: dialer})
	p.Add(addr)

	_, err := p.Acquire(context.Background(), addr)
	assert.ErrorIs(t, err, pool.ErrUnavailable)

	// The failed dial must not leave a half-registered reservation behind.
	assert.Equal(t, 0, p.InUse(addr))
}

func TestPool_DialCanceled(t *testing.T) {
	ctrl := gomock.NewController(t)
	addr := routing.Address("host1:9001")

	dialer := mock.NewMockDialer(ctrl)
	dialer.EXPECT().DialContext(gomock.Any(), addr).Return(nil, context.Canceled)

	p := pool.New(pool.Config{Dialer: dialer})
	p.Add(addr)

	_, err := p.Acquire(context.Background(), addr)
	assert.ErrorIs(t, err, context.Canceled)

	// A dial abandoned by the caller is not evidence the server is down.
	assert.NotErrorIs(t, err, pool.ErrUnavailable)
	assert.Equal(t, 0, p.InUse(addr))
}

func TestPool_Purge(t *testing.T) {
	ctrl := gomock.NewController(t)
	addr := routing.Address("host1:9001")
	conn := &fakeConn{addr: addr}

	dialer := mock.NewMockDialer(ctrl)
	dialer.EXPECT().DialContext(gomock.Any(), addr).Return(conn, nil)

	p := pool.New(pool.Config{Dialer: dialer})
	p.Add(addr)

	got, err := p.Acquire(context.Background(), addr)
	require.NoError(t, err)
	p.Release(got)

	p.Purge(addr)
	assert.True(t, conn.IsClosed())

	_, err = p.Acquire(context.Background(), addr)
	assert.ErrorIs(t, err, pool.ErrAddressUnknown)

	// Purging again is a no-op.
	p.Purge(addr)
}

func TestPool_PurgeClosesCheckedOutOnRelease(t *testing.T) {
	ctrl := gomock.NewController(t)
	addr := routing.Address("host1:9001")
	conn := &fakeConn{addr: addr}

	dialer := mock.NewMockDialer(ctrl)
	dialer.EXPECT().DialContext(gomock.Any(), addr).Return(conn, nil)

	p := pool.New(pool.Config{Dialer: dialer})
	p.Add(addr)

	got, err := p.Acquire(context.Background(), addr)
	require.NoError(t, err)

	p.Purge(addr)
	assert.False(t, conn.IsClosed())

	p.Release(got)
	assert.True(t, conn.IsClosed())
}

func TestPool_UpdateReconciles(t *testing.T) {
	ctrl := gomock.NewController(t)
	kept := routing.Address("host1:9001")
	dropped := routing.Address("host2:9001")
	conn := &fakeConn{addr: dropped}

	dialer := mock.NewMockDialer(ctrl)
	dialer.EXPECT().DialContext(gomock.Any(), dropped).Return(conn, nil)

	p := pool.New(pool.Config{Dialer: dialer})
	p.Update([]routing.Address{kept, dropped})

	got, err := p.Acquire(context.Background(), dropped)
	require.NoError(t, err)
	p.Release(got)

	p.Update([]routing.Address{kept, "host3:9001"})

	assert.True(t, conn.IsClosed())

	_, err = p.Acquire(context.Background(), dropped)
	assert.ErrorIs(t, err, pool.ErrAddressUnknown)
}

func TestPool_Close(t *testing.T) {
	ctrl := gomock.NewController(t)
	addr := routing.Address("host1:9001")
	conn := &fakeConn{addr: addr}

	dialer := mock.NewMockDialer(ctrl)
	dialer.EXPECT().DialContext(gomock.Any(), addr).Return(conn, nil)

	p := pool.New(pool.Config{Dialer: dialer})
	p.Add(addr)

	got, err := p.Acquire(context.Background(), addr)
	require.NoError(t, err)

	require.NoError(t, p.Close())

	_, err = p.Acquire(context.Background(), addr)
	assert.ErrorIs(t, err, pool.ErrClosed)

	// A connection still checked out at close time is destroyed on release.
	p.Release(got)
	assert.True(t, conn.IsClosed())
}

func TestPool_ConcurrentAcquireNoDuplicates(t *testing.T) {
	ctrl := gomock.NewController(t)
	addr := routing.Address("host1:9001")

	dialer := mock.NewMockDialer(ctrl)
	dialer.EXPECT().DialContext(gomock.Any(), addr).DoAndReturn(
		func(context.Context, routing.Address) (pool.Conn, error) {
			return &fakeConn{addr: addr}, nil
		},
	).AnyTimes()

	p := pool.New(pool.Config{Dialer: dialer})
	p.Add(addr)

	const workers = 16

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		conns []pool.Conn
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			conn, err := p.Acquire(context.Background(), addr)
			if err != nil {
				return
			}

			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}()
	}

	wg.Wait()

	require.Len(t, conns, workers)
	assert.Equal(t, workers, p.InUse(addr))

	// No physical connection was handed out twice.
	seen := make(map[pool.Conn]struct{}, len(conns))
	for _, conn := range conns {
		_, dup := seen[conn]
		assert.False(t, dup)
		seen[conn] = struct{}{}
	}

	for _, conn := range conns {
		p.Release(conn)
	}

	assert.Equal(t, 0, p.InUse(addr))
}
