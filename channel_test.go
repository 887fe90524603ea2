package spdkio

import (
	"errors"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

type bdev struct{ name string }

func TestChannelCachedPerDevice(t *testing.T) {
	r := require.New(t)

	th := attach(t, "cache")
	nvme0, nvme1 := &bdev{"nvme0"}, &bdev{"nvme1"}
	d0, d1 := DeviceIDOf(nvme0), DeviceIDOf(nvme1)
	r.NotEqual(d0, d1)
	r.Equal(d0, DeviceIDOf(nvme0))
	r.False(d0.IsZero())

	var o opener
	a, err := th.Channel(d0, o.open)
	r.NoError(err)
	b, err := th.Channel(d0, o.open)
	r.NoError(err)
	r.Same(a, b)
	r.Equal(1, o.opened[d0])
	r.Equal(d0, a.Device())

	c, err := th.Channel(d1, o.open)
	r.NoError(err)
	r.NotSame(a, c)
	r.Equal(2, th.Channels())

	res, err := a.Get()
	r.NoError(err)
	r.Same(o.chans[0], res)
}

// Structurally equal resources are still distinct devices.
func TestDeviceIdentityIsNotStructural(t *testing.T) {
	r := require.New(t)

	x, y := &bdev{"same"}, &bdev{"same"}
	r.NotEqual(DeviceIDOf(x), DeviceIDOf(y))
}

// An id outlives its resource without ever matching a later one, even
// when the allocator hands out the same address again.
func TestDeviceIDNotReusedAfterFree(t *testing.T) {
	r := require.New(t)

	stale := func() DeviceID { return DeviceIDOf(&bdev{"gone"}) }()
	runtime.GC()

	for range 10_000 {
		fresh := &bdev{"new"}
		r.NotEqual(stale, DeviceIDOf(fresh))
	}
	r.True(DeviceIDOf[bdev](nil).IsZero())
}

func TestChannelOpenErrors(t *testing.T) {
	r := require.New(t)

	th := attach(t, "open-errors")
	dev := DeviceIDOf(&bdev{"missing"})

	_, err := th.Channel(dev, (&opener{err: ErrDeviceNotFound}).open)
	r.ErrorIs(err, ErrDeviceNotFound)

	boom := errors.New("no memory")
	_, err = th.Channel(dev, (&opener{err: boom}).open)
	r.ErrorIs(err, ErrChannelAllocation)
	r.ErrorIs(err, boom)

	_, err = th.Channel(dev, func(DeviceID) (Channel, error) { return nil, nil })
	r.ErrorIs(err, ErrChannelAllocation)
	r.Zero(th.Channels())

	// A failed open is not cached.
	var o opener
	_, err = th.Channel(dev, o.open)
	r.NoError(err)
	r.Equal(1, o.opened[dev])
}

func TestChannelsClosedOnTerminate(t *testing.T) {
	r := require.New(t)

	th, err := Attach(testEnv, "teardown")
	r.NoError(err)

	var o opener
	var chans []*IOChannel
	devs := []*bdev{{"a"}, {"b"}, {"c"}, {"d"}}
	for _, d := range devs {
		ch, err := th.Channel(DeviceIDOf(d), o.open)
		r.NoError(err)
		chans = append(chans, ch)
	}
	boom := errors.New("close failed")
	o.chans[1].err = boom

	err = th.Close()
	r.ErrorIs(err, boom)
	r.Equal(Terminated, th.State())
	r.Zero(th.Channels())
	for _, fc := range o.chans {
		r.Equal(1, fc.closed)
	}
	for _, ch := range chans {
		_, err := ch.Get()
		r.ErrorIs(err, ErrChannelClosed)
	}

	_, err = th.Channel(DeviceIDOf(devs[0]), o.open)
	r.ErrorIs(err, ErrTerminated)
	r.ErrorIs(th.Close(), boom)
}

func TestChannelFromForeignCarrier(t *testing.T) {
	r := require.New(t)

	th := attach(t, "affine")
	var o opener
	ch, err := th.Channel(DeviceIDOf(&bdev{}), o.open)
	r.NoError(err)

	errs := make(chan error, 1)
	go func() {
		_, err := ch.Get()
		errs <- err
	}()
	r.ErrorIs(<-errs, ErrWrongCarrier)

	_, err = ch.Get()
	r.NoError(err)
}
