package spdkio

// PollerFunc is run once per Poll and reports whether it did work.
type PollerFunc func() bool

// Poller is a function registered on a thread.
type Poller struct {
	name  string
	fn    PollerFunc
	owner *Thread
	dead  bool
}

func (p *Poller) Name() string {
	return p.name
}

// Unregister removes the poller. It takes effect after the current pass
// if called from inside a Poll. Only the owning carrier may unregister.
func (p *Poller) Unregister() error {
	if err := p.owner.checkCarrier(); err != nil {
		return err
	}
	if !p.dead {
		p.dead = true
		p.owner.pollers.dirty = true
	}
	return nil
}

type pollerSet struct {
	list  []*Poller
	dirty bool
}

// run calls every live poller once and returns how many did work.
// Pollers registered during the pass run on the next one.
func (ps *pollerSet) run() int {
	work := 0
	n := len(ps.list)
	for i := 0; i < n; i++ {
		p := ps.list[i]
		if p.dead {
			continue
		}
		if p.fn() {
			work++
		}
	}
	ps.compact()
	return work
}

func (ps *pollerSet) compact() {
	if !ps.dirty {
		return
	}
	live := ps.list[:0]
	for _, p := range ps.list {
		if !p.dead {
			live = append(live, p)
		}
	}
	clear(ps.list[len(live):])
	ps.list = live
	ps.dirty = false
}

func (ps *pollerSet) len() int {
	n := 0
	for _, p := range ps.list {
		if !p.dead {
			n++
		}
	}
	return n
}

func (ps *pollerSet) reset() {
	for _, p := range ps.list {
		p.dead = true
	}
	ps.list = nil
	ps.dirty = false
}
