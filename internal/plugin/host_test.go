package plugin

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gameoverlay/gameoverlay/internal/metrics"
	"github.com/gameoverlay/gameoverlay/pkg/types"
)

type fakePlugin struct {
	mu       sync.Mutex
	lockFn   func([]Candidate) bool
	fetchFn  func(*FetchResult) (bool, error)
	tryLocks [][]Candidate
	fetches  int
	unlocks  int
	pid      int
}

func (p *fakePlugin) TryLock(c []Candidate) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tryLocks = append(p.tryLocks, c)
	if p.lockFn == nil {
		return false
	}
	return p.lockFn(c)
}

func (p *fakePlugin) Fetch(out *FetchResult) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetches++
	if p.fetchFn == nil {
		return true, nil
	}
	return p.fetchFn(out)
}

func (p *fakePlugin) Unlock() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unlocks++
}

func (p *fakePlugin) LockedPID() int { return p.pid }

func (p *fakePlugin) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tryLocks) + p.fetches + p.unlocks
}

func (p *fakePlugin) counts() (tryLocks, fetches, unlocks int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tryLocks), p.fetches, p.unlocks
}

type fakeLister struct {
	mu    sync.Mutex
	procs []Candidate
	err   error
}

func (l *fakeLister) set(procs ...Candidate) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.procs = procs
}

func (l *fakeLister) Processes(context.Context) ([]Candidate, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Candidate(nil), l.procs...), l.err
}

type recordSink struct {
	mu     sync.Mutex
	events []types.Event
}

func (s *recordSink) Publish(_ context.Context, ev types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordSink) ofType(eventType string) []types.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.Event
	for _, ev := range s.events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func alwaysLock([]Candidate) bool { return true }

func newTestHost(t *testing.T, lister *fakeLister, sink Sink, plugins ...*Descriptor) *Host {
	t.Helper()
	reg := NewRegistry(nil)
	for _, d := range plugins {
		_, err := reg.Load(func() *Descriptor { return d })
		require.NoError(t, err)
	}
	if lister == nil {
		lister = &fakeLister{}
	}
	h, err := NewHost(reg, HostConfig{
		Lister:             lister,
		Sink:               sink,
		Metrics:            metrics.New(),
		FetchInterval:      time.Millisecond,
		TryLockInterval:    time.Millisecond,
		MaxTryLockInterval: 2 * time.Millisecond,
	})
	require.NoError(t, err)
	return h
}

func v2(short string, p Plugin) *Descriptor {
	return &Descriptor{Magic: MagicV2, ABI: ABIv2, Name: short, ShortName: short, Plugin: p}
}

func TestHostIdleWithoutLock(t *testing.T) {
	p := &fakePlugin{}
	h := newTestHost(t, nil, nil, v2("game", p))

	assert.False(t, h.Step(testContext(t)))
	assert.False(t, h.Step(testContext(t)))

	tryLocks, fetches, unlocks := p.counts()
	assert.Equal(t, 2, tryLocks)
	assert.Zero(t, fetches)
	assert.Zero(t, unlocks)
	assert.Equal(t, "", h.Locked())
}

func TestHostLockThenFetchPublishesPose(t *testing.T) {
	p := &fakePlugin{pid: 4242, lockFn: alwaysLock, fetchFn: func(out *FetchResult) (bool, error) {
		out.AvatarPos = Vec3{1, 2, 3}
		out.AvatarFront = Vec3{0, 0, 1}
		out.AvatarTop = Vec3{0, 1, 0}
		out.Context.SetString("server:1")
		out.Identity.SetString("player")
		return true, nil
	}}
	sink := &recordSink{}
	h := newTestHost(t, nil, sink, v2("game", p))

	require.True(t, h.Step(testContext(t)))
	assert.Equal(t, "game", h.Locked())
	require.True(t, h.Step(testContext(t)))

	locks := sink.ofType(types.EventPluginLocked)
	require.Len(t, locks, 1)
	assert.Equal(t, 4242, locks[0].PID)

	poses := sink.ofType(types.EventPose)
	require.Len(t, poses, 1)
	pose := poses[0].Pose
	require.NotNil(t, pose)
	assert.Equal(t, types.Vec3{1, 2, 3}, pose.Avatar.Position)
	assert.True(t, pose.Camera.IsZero())
	assert.Equal(t, "game\x00server:1", pose.Context)
	assert.Equal(t, "player", pose.Identity)
	assert.Equal(t, "game", poses[0].Plugin)
}

func TestHostFetchFalseUnlocksExactlyOnce(t *testing.T) {
	locked := true
	p := &fakePlugin{
		lockFn:  func([]Candidate) bool { return locked },
		fetchFn: func(*FetchResult) (bool, error) { return false, nil },
	}
	sink := &recordSink{}
	h := newTestHost(t, nil, sink, v2("game", p))

	require.True(t, h.Step(testContext(t)))
	assert.False(t, h.Step(testContext(t)), "fetch false releases the lock")

	tryLocks, fetches, unlocks := p.counts()
	assert.Equal(t, 1, tryLocks)
	assert.Equal(t, 1, fetches)
	assert.Equal(t, 1, unlocks)

	// No fetch until the next successful TryLock.
	p.mu.Lock()
	locked = false
	p.mu.Unlock()
	h.Step(testContext(t))
	h.Step(testContext(t))
	tryLocks, fetches, unlocks = p.counts()
	assert.Equal(t, 3, tryLocks)
	assert.Equal(t, 1, fetches)
	assert.Equal(t, 1, unlocks)
	assert.False(t, h.Unlock(), "already idle")

	unlocked := sink.ofType(types.EventPluginUnlocked)
	require.Len(t, unlocked, 1)
	assert.Equal(t, UnlockLost, unlocked[0].Fields["reason"])
}

func TestHostFetchErrorSkipsUpdate(t *testing.T) {
	p := &fakePlugin{lockFn: alwaysLock, fetchFn: func(out *FetchResult) (bool, error) {
		out.AvatarPos = Vec3{9, 9, 9}
		return true, errors.New("short read")
	}}
	sink := &recordSink{}
	h := newTestHost(t, nil, sink, v2("game", p))

	h.Step(testContext(t))
	assert.True(t, h.Step(testContext(t)))
	assert.Empty(t, sink.ofType(types.EventPose))
	_, _, unlocks := p.counts()
	assert.Zero(t, unlocks)
}

func TestHostResetsResultBeforeFetch(t *testing.T) {
	first := true
	var seen []Vec3
	p := &fakePlugin{lockFn: alwaysLock, fetchFn: func(out *FetchResult) (bool, error) {
		seen = append(seen, out.CameraPos)
		if first {
			out.CameraPos = Vec3{5, 5, 5}
			out.Context.SetString("ctx")
			first = false
		}
		return true, nil
	}}
	sink := &recordSink{}
	h := newTestHost(t, nil, sink, v2("game", p))

	h.Step(testContext(t))
	h.Step(testContext(t))
	h.Step(testContext(t))

	assert.Equal(t, []Vec3{{}, {}}, seen)
	poses := sink.ofType(types.EventPose)
	require.Len(t, poses, 2)
	assert.Equal(t, "", poses[1].Pose.Context)
	assert.True(t, poses[1].Pose.Camera.IsZero())
}

func TestHostFetchPanicUnlocks(t *testing.T) {
	p := &fakePlugin{lockFn: alwaysLock, fetchFn: func(*FetchResult) (bool, error) {
		panic("bad pointer")
	}}
	sink := &recordSink{}
	h := newTestHost(t, nil, sink, v2("game", p))

	h.Step(testContext(t))
	assert.False(t, h.Step(testContext(t)))
	_, _, unlocks := p.counts()
	assert.Equal(t, 1, unlocks)

	unlocked := sink.ofType(types.EventPluginUnlocked)
	require.Len(t, unlocked, 1)
	assert.Equal(t, UnlockPanic, unlocked[0].Fields["reason"])
}

func TestHostTryLockPanicContinues(t *testing.T) {
	bad := &fakePlugin{lockFn: func([]Candidate) bool { panic("boom") }}
	good := &fakePlugin{lockFn: alwaysLock}
	h := newTestHost(t, nil, nil, v2("bad", bad), v2("good", good))

	assert.True(t, h.Step(testContext(t)))
	assert.Equal(t, "good", h.Locked())
}

func TestHostExternalUnlock(t *testing.T) {
	p := &fakePlugin{lockFn: alwaysLock}
	h := newTestHost(t, nil, nil, v2("game", p))

	h.Step(testContext(t))
	assert.True(t, h.Unlock())
	assert.False(t, h.Unlock())
	_, _, unlocks := p.counts()
	assert.Equal(t, 1, unlocks)
	assert.Equal(t, "", h.Locked())
}

func TestHostOnePluginLocked(t *testing.T) {
	first := &fakePlugin{lockFn: alwaysLock}
	second := &fakePlugin{lockFn: alwaysLock}
	h := newTestHost(t, nil, nil, v2("first", first), v2("second", second))

	h.Step(testContext(t))
	h.Step(testContext(t))
	h.Step(testContext(t))

	assert.Equal(t, "first", h.Locked())
	tryLocks, _, _ := second.counts()
	assert.Zero(t, tryLocks, "not polled while another plugin is locked")
}

func TestHostCandidatesAreNewlySeen(t *testing.T) {
	lister := &fakeLister{}
	lister.set(Candidate{PID: 1, Name: "init"}, Candidate{PID: 10, Name: "Game.exe"})
	p := &fakePlugin{}
	legacy := &fakePlugin{}
	h := newTestHost(t, lister, nil,
		v2("game", p),
		&Descriptor{Magic: MagicV1, ABI: ABIv1, Name: "legacy", ShortName: "legacy", Plugin: legacy},
	)

	h.Step(testContext(t))
	lister.set(Candidate{PID: 1, Name: "init"}, Candidate{PID: 10, Name: "Game.exe"}, Candidate{PID: 11, Name: "Other.exe"})
	h.Step(testContext(t))
	h.Step(testContext(t))

	p.mu.Lock()
	calls := p.tryLocks
	p.mu.Unlock()
	require.Len(t, calls, 3)
	assert.Len(t, calls[0], 2)
	assert.Equal(t, []Candidate{{PID: 11, Name: "Other.exe"}}, calls[1])
	assert.Empty(t, calls[2])

	legacy.mu.Lock()
	for _, c := range legacy.tryLocks {
		assert.Nil(t, c, "v1 plugins scan on their own")
	}
	legacy.mu.Unlock()
}

func TestHostUnlockResetsSeenSet(t *testing.T) {
	lister := &fakeLister{}
	lister.set(Candidate{PID: 10, Name: "Game.exe"})
	p := &fakePlugin{lockFn: func(c []Candidate) bool { return len(c) > 0 }}
	h := newTestHost(t, lister, nil, v2("game", p))

	require.True(t, h.Step(testContext(t)))
	require.True(t, h.Unlock())
	assert.True(t, h.Step(testContext(t)), "same process offered again after unlock")
}

func TestHostListerErrorStillPolls(t *testing.T) {
	lister := &fakeLister{err: errors.New("denied")}
	p := &fakePlugin{lockFn: alwaysLock}
	h := newTestHost(t, lister, nil, v2("game", p))

	assert.True(t, h.Step(testContext(t)))
	p.mu.Lock()
	assert.Nil(t, p.tryLocks[0])
	p.mu.Unlock()
}

func TestHostRunUnlocksOnCancel(t *testing.T) {
	p := &fakePlugin{lockFn: alwaysLock}
	h := newTestHost(t, nil, nil, v2("game", p))

	ctx, cancel := context.WithCancel(testContext(t))
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, fetches, _ := p.counts()
		return fetches >= 3
	}, 2*time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	_, _, unlocks := p.counts()
	assert.Equal(t, 1, unlocks)
	assert.Equal(t, "", h.Locked())
}

func TestLatestSink(t *testing.T) {
	s := NewLatestSink()
	ctx := testContext(t)

	ev := types.NewEvent(types.EventPose)
	ev.Plugin = "game"
	ev.Pose = &types.PoseInfo{Context: "a"}
	require.NoError(t, s.Publish(ctx, ev))

	got, ok := s.Latest("game")
	require.True(t, ok)
	assert.Equal(t, "a", got.Pose.Context)

	un := types.NewEvent(types.EventPluginUnlocked)
	un.Plugin = "game"
	require.NoError(t, s.Publish(ctx, un))
	_, ok = s.Latest("game")
	assert.False(t, ok)
}

func TestMultiSinkJoinsErrors(t *testing.T) {
	rec := &recordSink{}
	failing := SinkFunc(func(context.Context, types.Event) error { return errors.New("disk full") })
	m := MultiSink{rec, nil, failing}

	err := m.Publish(testContext(t), types.NewEvent(types.EventPose))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Len(t, rec.ofType(types.EventPose), 1)
}
