package sink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/nvandessel/crowdsim/internal/epidemic"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// blockingSink holds every write until release is closed.
type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	users   int
}

func (b *blockingSink) CreateUser(int, epidemic.HealthState) error {
	<-b.release
	b.mu.Lock()
	b.users++
	b.mu.Unlock()
	return nil
}

func (b *blockingSink) InsertContact(epidemic.ContactEvent) error {
	<-b.release
	return nil
}

type failingSink struct{}

func (failingSink) CreateUser(int, epidemic.HealthState) error {
	return errors.New("disk full")
}

func (failingSink) InsertContact(epidemic.ContactEvent) error {
	return errors.New("disk full")
}

func TestAsync_DeliversInOrder(t *testing.T) {
	rec := epidemic.NewRecordingSink()
	a := NewAsync(rec, 16, nil)

	require.NoError(t, a.CreateUser(1, epidemic.Infected))
	require.NoError(t, a.CreateUser(2, epidemic.Susceptible))
	require.NoError(t, a.InsertContact(epidemic.ContactEvent{Source: 1, Target: 2, Tick: 1}))
	require.NoError(t, a.InsertContact(epidemic.ContactEvent{Source: 1, Target: 3, Tick: 2}))
	require.NoError(t, a.Close(context.Background()))

	assert.Equal(t, epidemic.Infected, rec.Users[1])
	assert.Equal(t, epidemic.Susceptible, rec.Users[2])
	require.Len(t, rec.Contacts, 2)
	assert.Equal(t, 2, rec.Contacts[0].Target)
	assert.Equal(t, 3, rec.Contacts[1].Target)
	assert.Equal(t, Stats{Delivered: 4}, a.Stats())
}

func TestAsync_FullQueueDoesNotBlock(t *testing.T) {
	down := &blockingSink{release: make(chan struct{})}
	a := NewAsync(down, 1, nil)

	// The worker may already hold the first event, so fill until a drop.
	var dropped error
	for i := 0; i < 10 && dropped == nil; i++ {
		dropped = a.CreateUser(i, epidemic.Susceptible)
	}
	assert.ErrorIs(t, dropped, ErrQueueFull)
	assert.Positive(t, a.Stats().Dropped)

	close(down.release)
	require.NoError(t, a.Close(context.Background()))
}

func TestAsync_DownstreamErrorsAreReported(t *testing.T) {
	a := NewAsync(failingSink{}, 4, nil)

	require.NoError(t, a.InsertContact(epidemic.ContactEvent{Source: 1, Target: 2}))
	select {
	case err := <-a.Errors():
		assert.ErrorContains(t, err, "disk full")
	case <-time.After(2 * time.Second):
		t.Fatal("expected a downstream error")
	}

	require.NoError(t, a.Close(context.Background()))
	assert.Equal(t, 1, a.Stats().Failed)
}

func TestAsync_ClosedRejectsEvents(t *testing.T) {
	a := NewAsync(epidemic.NopSink{}, 4, nil)
	require.NoError(t, a.Close(context.Background()))
	require.NoError(t, a.Close(context.Background()), "second Close should be a no-op")

	assert.ErrorIs(t, a.CreateUser(1, epidemic.Susceptible), ErrClosed)
	assert.ErrorIs(t, a.InsertContact(epidemic.ContactEvent{}), ErrClosed)
}

func TestAsync_CloseHonorsContext(t *testing.T) {
	down := &blockingSink{release: make(chan struct{})}
	a := NewAsync(down, 4, nil)
	require.NoError(t, a.CreateUser(1, epidemic.Susceptible))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, a.Close(ctx), context.DeadlineExceeded)

	close(down.release)
	require.NoError(t, a.Close(context.Background()))
}

func TestAsync_WithEngine(t *testing.T) {
	rec := epidemic.NewRecordingSink()
	a := NewAsync(rec, 1024, nil)

	params := epidemic.DefaultParams()
	policy := &epidemic.FixedPolicy{
		Positions: []orb.Point{{340, 350}, {360, 350}},
		States:    []epidemic.HealthState{epidemic.Infected, epidemic.Susceptible},
	}
	e := epidemic.New(params, epidemic.WithSink(a))
	require.NoError(t, e.Initialize(2, orb.Point{350, 350}, policy))
	for !e.IsConverged() {
		_, err := e.Tick()
		require.NoError(t, err)
	}
	require.NoError(t, a.Close(context.Background()))

	assert.Len(t, rec.Users, 2)
	assert.Equal(t, e.Contacts(), rec.Contacts)
}
