package spdkio

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/webriots/spdkio/internal/carrier"
)

const (
	// DefaultMaxMsgsPerPoll bounds the messages a single Poll executes.
	DefaultMaxMsgsPerPoll = 64

	// DefaultMsgPoolSize is the production mailbox capacity of a thread.
	DefaultMsgPoolSize = 262144 - 1

	// SmallMsgPoolSize is a mailbox capacity suited to tests.
	SmallMsgPoolSize = 1023
)

// Bootstrapper performs the privileged process bootstrap (hugepages, PCI
// access, memory locking) behind an Env. Init is called once by NewEnv
// and Fini once by Close.
type Bootstrapper interface {
	Init(cfg EnvConfig) error
	Fini()
}

type nopBootstrapper struct{}

func (nopBootstrapper) Init(EnvConfig) error { return nil }
func (nopBootstrapper) Fini()                {}

// EnvConfig holds the settings of an Env.
type EnvConfig struct {
	Name                   string
	CoreMask               string
	MemSizeMB              int
	ShmID                  int
	MainCore               int
	NoPCI                  bool
	NoHuge                 bool
	HugepageSingleSegments bool
	LogLevel               logrus.Level

	// MsgPoolSize is the mailbox capacity of each thread. Zero means
	// unbounded.
	MsgPoolSize int

	// MaxMsgsPerPoll bounds the messages executed by one Poll.
	MaxMsgsPerPoll int

	Bootstrapper Bootstrapper
}

// EnvOption configures NewEnv.
type EnvOption func(*EnvConfig)

func WithName(name string) EnvOption {
	return func(c *EnvConfig) { c.Name = name }
}

// WithCoreMask sets the CPU core mask, e.g. "0x3" for cores 0 and 1.
func WithCoreMask(mask string) EnvOption {
	return func(c *EnvConfig) { c.CoreMask = mask }
}

func WithMemSizeMB(mb int) EnvOption {
	return func(c *EnvConfig) { c.MemSizeMB = mb }
}

// WithShmID sets the shared memory id. -1 disables shared memory.
func WithShmID(id int) EnvOption {
	return func(c *EnvConfig) { c.ShmID = id }
}

func WithMainCore(core int) EnvOption {
	return func(c *EnvConfig) { c.MainCore = core }
}

func WithNoPCI(v bool) EnvOption {
	return func(c *EnvConfig) { c.NoPCI = v }
}

func WithNoHuge(v bool) EnvOption {
	return func(c *EnvConfig) { c.NoHuge = v }
}

func WithHugepageSingleSegments(v bool) EnvOption {
	return func(c *EnvConfig) { c.HugepageSingleSegments = v }
}

// WithLogLevel sets the level of the package logger when the Env is
// initialized.
func WithLogLevel(level logrus.Level) EnvOption {
	return func(c *EnvConfig) { c.LogLevel = level }
}

func WithMsgPoolSize(n int) EnvOption {
	return func(c *EnvConfig) { c.MsgPoolSize = n }
}

func WithMaxMsgsPerPoll(n int) EnvOption {
	return func(c *EnvConfig) { c.MaxMsgsPerPoll = n }
}

func WithBootstrapper(b Bootstrapper) EnvOption {
	return func(c *EnvConfig) { c.Bootstrapper = b }
}

type envState int32

const (
	envUninitialized envState = iota
	envLive
	envTornDown
)

// process tracks the one Env a process may ever initialize.
var process struct {
	sync.Mutex
	state envState
}

// IsInitialized reports whether an Env is currently live.
func IsInitialized() bool {
	process.Lock()
	defer process.Unlock()
	return process.state == envLive
}

// Env is the process-wide environment guard. At most one Env is ever
// initialized per process; once closed, no other can be created.
type Env struct {
	cfg    EnvConfig
	closed atomic.Bool
	nextID atomic.Uint64

	mu        sync.Mutex
	byCarrier map[carrier.ID]*Thread
	app       Handle
}

// NewEnv initializes the process environment.
func NewEnv(opts ...EnvOption) (*Env, error) {
	cfg := EnvConfig{
		ShmID:          -1,
		MainCore:       -1,
		LogLevel:       logrus.InfoLevel,
		MaxMsgsPerPoll: DefaultMaxMsgsPerPoll,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.Name == "" {
		cfg.Name = "spdkio-" + uuid.NewString()
	}
	if cfg.MaxMsgsPerPoll <= 0 {
		cfg.MaxMsgsPerPoll = DefaultMaxMsgsPerPoll
	}
	if cfg.Bootstrapper == nil {
		cfg.Bootstrapper = nopBootstrapper{}
	}

	process.Lock()
	defer process.Unlock()

	switch process.state {
	case envLive:
		return nil, initErr("environment already initialized")
	case envTornDown:
		return nil, initErr("environment cannot be re-initialized after teardown")
	}

	Logger().SetLevel(cfg.LogLevel)

	if err := cfg.Bootstrapper.Init(cfg); err != nil {
		return nil, initErr("bootstrap %q: %v", cfg.Name, err)
	}

	process.state = envLive

	Logger().WithFields(logrus.Fields{
		"env":       cfg.Name,
		"core_mask": cfg.CoreMask,
		"mem_mb":    cfg.MemSizeMB,
		"no_huge":   cfg.NoHuge,
		"no_pci":    cfg.NoPCI,
	}).Info("spdkio: environment initialized")

	return &Env{cfg: cfg, byCarrier: make(map[carrier.ID]*Thread)}, nil
}

// Config returns the settings the Env was initialized with.
func (e *Env) Config() EnvConfig {
	return e.cfg
}

// Live reports whether the Env has not been closed.
func (e *Env) Live() bool {
	return e != nil && !e.closed.Load()
}

// Close tears the environment down. It fails while threads are still
// attached. The teardown is permanent for the process.
func (e *Env) Close() error {
	e.mu.Lock()
	if n := len(e.byCarrier); n > 0 {
		e.mu.Unlock()
		return initErr("environment has %d live threads", n)
	}
	closed := e.closed.Swap(true)
	e.mu.Unlock()
	if closed {
		return initErr("environment already torn down")
	}

	e.cfg.Bootstrapper.Fini()

	process.Lock()
	process.state = envTornDown
	process.Unlock()

	Logger().WithField("env", e.cfg.Name).Info("spdkio: environment torn down")
	return nil
}

// Count returns the number of threads that have not terminated.
func (e *Env) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.byCarrier)
}

// Current returns the thread attached to the calling carrier.
func (e *Env) Current() (*Thread, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.byCarrier[carrier.Current()]
	return t, ok
}

// AppThread returns a handle to the first thread attached to the Env.
func (e *Env) AppThread() (Handle, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.app, e.app.Valid()
}

func (e *Env) attach(t *Thread) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		return initErr("environment torn down")
	}
	if other, ok := e.byCarrier[t.owner]; ok {
		return initErr("%v already runs thread %q", t.owner, other.mbox.name)
	}

	t.mbox.id = e.nextID.Add(1)
	e.byCarrier[t.owner] = t
	if !e.app.Valid() {
		e.app = t.Handle()
	}
	return nil
}

func (e *Env) detach(t *Thread) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.byCarrier[t.owner] == t {
		delete(e.byCarrier, t.owner)
	}
}
