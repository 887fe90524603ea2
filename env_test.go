package spdkio

import (
	"errors"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type recordingBootstrapper struct {
	cfg   EnvConfig
	err   error
	inits int
	finis int
}

func (b *recordingBootstrapper) Init(cfg EnvConfig) error {
	b.inits++
	b.cfg = cfg
	return b.err
}

func (b *recordingBootstrapper) Fini() {
	b.finis++
}

// keepLogLevel restores the logger level NewEnv changes.
func keepLogLevel(t *testing.T) {
	level := Logger().GetLevel()
	t.Cleanup(func() { Logger().SetLevel(level) })
}

func TestEnvAlreadyInitialized(t *testing.T) {
	r := require.New(t)

	r.True(IsInitialized())
	_, err := NewEnv()
	r.ErrorIs(err, ErrInitialization)
}

func TestEnvLifecycle(t *testing.T) {
	r := require.New(t)
	freshProcess(t)
	keepLogLevel(t)

	boot := &recordingBootstrapper{}
	env, err := NewEnv(
		WithCoreMask("0x3"),
		WithMainCore(1),
		WithHugepageSingleSegments(true),
		WithShmID(7),
		WithLogLevel(logrus.ErrorLevel),
		WithBootstrapper(boot),
	)
	r.NoError(err)
	r.True(IsInitialized())
	r.True(env.Live())
	r.Equal(1, boot.inits)

	cfg := env.Config()
	r.True(strings.HasPrefix(cfg.Name, "spdkio-"))
	r.Equal(cfg, boot.cfg)
	r.Equal("0x3", cfg.CoreMask)
	r.Equal(1, cfg.MainCore)
	r.Equal(7, cfg.ShmID)
	r.True(cfg.HugepageSingleSegments)
	r.Equal(DefaultMaxMsgsPerPoll, cfg.MaxMsgsPerPoll)
	r.Equal(logrus.ErrorLevel, Logger().GetLevel())

	_, err = NewEnv()
	r.ErrorIs(err, ErrInitialization)

	th, err := Attach(env, "app")
	r.NoError(err)
	r.Equal(1, env.Count())

	cur, ok := env.Current()
	r.True(ok)
	r.Same(th, cur)

	app, ok := env.AppThread()
	r.True(ok)
	r.Equal(th.ID(), app.ID())

	err = env.Close()
	r.ErrorIs(err, ErrInitialization)
	r.True(env.Live())

	r.NoError(th.Close())
	r.Equal(0, env.Count())
	_, ok = env.Current()
	r.False(ok)

	r.NoError(env.Close())
	r.False(env.Live())
	r.False(IsInitialized())
	r.Equal(1, boot.finis)
	r.ErrorIs(env.Close(), ErrInitialization)

	_, err = Attach(env, "late")
	r.ErrorIs(err, ErrInitialization)

	_, err = NewEnv()
	r.ErrorIs(err, ErrInitialization)
}

// A thread attached while Close runs either keeps the Env live or is
// rejected; it never ends up on a torn down Env.
func TestEnvCloseRacesAttach(t *testing.T) {
	r := require.New(t)
	freshProcess(t)
	keepLogLevel(t)

	env, err := NewEnv(WithName("racy"))
	r.NoError(err)

	var (
		wg       sync.WaitGroup
		attached atomic.Int64
		orphaned atomic.Int64
	)
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				th, err := Attach(env, "racer-"+strconv.Itoa(i))
				if err != nil {
					return
				}
				attached.Add(1)
				if !env.Live() {
					orphaned.Add(1)
				}
				_ = th.Close()
			}
		}()
	}

	for attached.Load() == 0 {
		runtime.Gosched()
	}
	for env.Close() != nil {
		runtime.Gosched()
	}
	wg.Wait()

	r.Zero(orphaned.Load())
	r.Equal(0, env.Count())
}

func TestEnvBootstrapFailure(t *testing.T) {
	r := require.New(t)
	freshProcess(t)
	keepLogLevel(t)

	boom := errors.New("no hugepages")
	_, err := NewEnv(WithName("broken"), WithBootstrapper(&recordingBootstrapper{err: boom}))
	r.ErrorIs(err, ErrInitialization)
	r.Contains(err.Error(), "no hugepages")
	r.False(IsInitialized())

	env, err := NewEnv(WithName("retry"))
	r.NoError(err)
	r.Equal("retry", env.Config().Name)
	r.NoError(env.Close())
}

func TestEnvThreadIDs(t *testing.T) {
	r := require.New(t)

	a, err := Spawn(testEnv, "a", func(th *Thread) error { return th.Close() })
	r.NoError(err)
	b, err := Spawn(testEnv, "b", func(th *Thread) error { return th.Close() })
	r.NoError(err)
	r.NoError(JoinAll(a, b))

	r.NotZero(a.Handle().ID())
	r.NotEqual(a.Handle().ID(), b.Handle().ID())
}
