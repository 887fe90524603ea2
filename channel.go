package spdkio

import (
	"errors"
	"fmt"
	"unsafe"
	"weak"
)

// DeviceID is an opaque identity token for an I/O-capable resource owned
// by a collaborator. Two ids are equal only if they name the same
// resource. A DeviceID does not keep the resource alive, and an id taken
// from a freed resource never equals the id of one allocated later at the
// same address.
type DeviceID struct {
	ref  any // weak.Pointer[T]
	addr uintptr
}

// DeviceIDOf returns the identity of the resource p points to. A nil p
// yields the zero DeviceID.
func DeviceIDOf[T any](p *T) DeviceID {
	if p == nil {
		return DeviceID{}
	}
	return DeviceID{ref: weak.Make(p), addr: uintptr(unsafe.Pointer(p))}
}

func (d DeviceID) IsZero() bool {
	return d.ref == nil
}

func (d DeviceID) String() string {
	return fmt.Sprintf("device(%#x)", d.addr)
}

// Channel is a per-thread resource needed to submit I/O to a device.
type Channel interface {
	Close() error
}

// OpenFunc allocates a channel for a device. It fails with
// ErrDeviceNotFound or ErrChannelAllocation.
type OpenFunc func(DeviceID) (Channel, error)

// IOChannel is a cached channel bound to the thread that opened it.
type IOChannel struct {
	dev    DeviceID
	res    Channel
	owner  *Thread
	closed bool
}

func (c *IOChannel) Device() DeviceID {
	return c.dev
}

// Get returns the underlying channel. It fails with ErrWrongCarrier when
// called from a carrier other than the owner's, and with ErrChannelClosed
// once the owning thread has terminated.
func (c *IOChannel) Get() (Channel, error) {
	if err := c.owner.checkCarrier(); err != nil {
		return nil, err
	}
	if c.closed {
		return nil, ErrChannelClosed
	}
	return c.res, nil
}

// channelCache holds at most one channel per device. It is only touched
// by the owning carrier.
type channelCache struct {
	owner   *Thread
	entries map[DeviceID]*IOChannel
	order   []DeviceID
}

func newChannelCache(owner *Thread) *channelCache {
	return &channelCache{owner: owner, entries: make(map[DeviceID]*IOChannel)}
}

func (cc *channelCache) getOrCreate(dev DeviceID, open OpenFunc) (*IOChannel, error) {
	if ch, ok := cc.entries[dev]; ok {
		return ch, nil
	}

	res, err := open(dev)
	switch {
	case err != nil && (errors.Is(err, ErrDeviceNotFound) || errors.Is(err, ErrChannelAllocation)):
		return nil, fmt.Errorf("spdkio: open channel for %v: %w", dev, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %v: %w", ErrChannelAllocation, dev, err)
	case res == nil:
		return nil, fmt.Errorf("%w: %v: provider returned no channel", ErrChannelAllocation, dev)
	}

	ch := &IOChannel{dev: dev, res: res, owner: cc.owner}
	cc.entries[dev] = ch
	cc.order = append(cc.order, dev)
	return ch, nil
}

func (cc *channelCache) len() int {
	return len(cc.entries)
}

// closeAll closes every cached channel, continuing past failures.
func (cc *channelCache) closeAll() error {
	var errs []error
	for _, dev := range cc.order {
		ch := cc.entries[dev]
		ch.closed = true
		if err := ch.res.Close(); err != nil {
			errs = append(errs, fmt.Errorf("spdkio: close channel for %v: %w", dev, err))
		}
		delete(cc.entries, dev)
	}
	cc.order = nil
	return errors.Join(errs...)
}
