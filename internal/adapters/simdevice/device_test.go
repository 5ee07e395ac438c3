package simdevice_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/wastemap/internal/adapters/simdevice"
	"github.com/samirrijal/wastemap/internal/core/domain"
	"github.com/samirrijal/wastemap/internal/core/ports"
)

type fixLog struct {
	mu    sync.Mutex
	fixes []domain.GeoPoint
	errs  []error
}

func (l *fixLog) onFix(f domain.PositionFix) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fixes = append(l.fixes, f.Point)
}

func (l *fixLog) onErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, err)
}

func (l *fixLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fixes)
}

var route = []domain.GeoPoint{
	{Lat: 43.2630, Lon: -2.9350},
	{Lat: 43.2635, Lon: -2.9345},
	{Lat: 43.2640, Lon: -2.9340},
}

func TestDevice_WalksRoute(t *testing.T) {
	clk := clock.NewMock()
	dev := simdevice.New(route, true, true, simdevice.WithClock(clk), simdevice.WithStep(time.Second))

	var log fixLog
	sub, err := dev.WatchPosition(context.Background(), ports.WatchOptions{}, log.onFix, log.onErr)
	require.NoError(t, err)
	defer sub.Remove()

	require.Equal(t, 1, log.count(), "current point is emitted immediately")

	clk.Add(time.Second)
	require.Eventually(t, func() bool { return log.count() == 2 }, time.Second, 5*time.Millisecond)
	clk.Add(time.Second)
	require.Eventually(t, func() bool { return log.count() == 3 }, time.Second, 5*time.Millisecond)
	clk.Add(time.Second)
	require.Eventually(t, func() bool { return log.count() == 4 }, time.Second, 5*time.Millisecond)

	log.mu.Lock()
	assert.Equal(t, []domain.GeoPoint{route[0], route[1], route[2], route[0]}, log.fixes)
	log.mu.Unlock()
}

func TestDevice_ServicesOff(t *testing.T) {
	dev := simdevice.New(route, false, true)

	on, err := dev.ServicesEnabled(context.Background())
	require.NoError(t, err)
	assert.False(t, on)

	_, err = dev.WatchPosition(context.Background(), ports.WatchOptions{}, func(domain.PositionFix) {}, func(error) {})
	assert.ErrorIs(t, err, simdevice.ErrServicesOff)
}

func TestDevice_SwitchOffFailsWatch(t *testing.T) {
	dev := simdevice.New(route, true, true, simdevice.WithClock(clock.NewMock()))

	var log fixLog
	sub, err := dev.WatchPosition(context.Background(), ports.WatchOptions{}, log.onFix, log.onErr)
	require.NoError(t, err)
	defer sub.Remove()

	dev.SetServicesEnabled(false)

	log.mu.Lock()
	defer log.mu.Unlock()
	require.Len(t, log.errs, 1)
	assert.ErrorIs(t, log.errs[0], simdevice.ErrServicesOff)
}

func TestDevice_RemoveStopsFixes(t *testing.T) {
	clk := clock.NewMock()
	dev := simdevice.New(route, true, true, simdevice.WithClock(clk))

	var log fixLog
	sub, err := dev.WatchPosition(context.Background(), ports.WatchOptions{}, log.onFix, log.onErr)
	require.NoError(t, err)

	sub.Remove()
	sub.Remove()
	clk.Add(5 * time.Second)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 1, log.count())
}

func TestDevice_PermissionAnswer(t *testing.T) {
	dev := simdevice.New(route, true, false)

	ok, err := dev.RequestPermission(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	dev.SetGrant(true)
	ok, err = dev.RequestPermission(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}
