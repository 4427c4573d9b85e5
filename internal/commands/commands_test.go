package commands

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/vehicles/internal/catalog"
	"github.com/OCAP2/vehicles/internal/ownership"
	"github.com/OCAP2/vehicles/internal/session"
	"github.com/OCAP2/vehicles/internal/world"
)

type fixture struct {
	d        *Dispatcher
	world    *world.Registry
	sessions *session.Manager
	granted  map[string]bool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cat, err := catalog.New(
		catalog.Preset{
			Name:   "Basic Car",
			Type:   "land",
			Design: "basic_car",
			BBox:   []float32{-1, 0, -2, 1, 1.5, 2},
			Seats: catalog.SeatsSpec{
				Driver:     []float32{0, 0.5, 0},
				Passengers: [][]float32{{0.5, 0.5, -1}},
			},
		},
		catalog.Preset{
			Name:   "Raft",
			Type:   "water",
			Design: "raft",
			BBox:   []float32{-1, 0, -1, 1, 0.5, 1},
			Seats:  catalog.SeatsSpec{Driver: []float32{0, 0.2, 0}},
		},
	)
	require.NoError(t, err)

	f := &fixture{
		world:    world.NewRegistry(),
		sessions: session.NewManager(),
		granted:  map[string]bool{},
	}
	f.d = New(cat, f.world, f.sessions, func(_ Sender, key string) bool {
		return f.granted[key]
	})
	return f
}

func (f *fixture) grant(verbs ...string) {
	for _, v := range verbs {
		f.granted[PermissionPrefix+v] = true
	}
}

// spawnOwned places a Basic Car owned by owner (if non-nil) into the world.
func (f *fixture) spawnOwned(t *testing.T, owner *uuid.UUID, locked bool) world.Entity {
	t.Helper()
	p, _ := f.d.catalog.Lookup("basic car")
	r := p.NewRecord()
	if owner != nil {
		r.SetOwner(*owner)
		r.Locked = locked
	}
	e, err := f.world.Spawn(r, world.Position{Level: "world"})
	require.NoError(t, err)
	return e
}

func (f *fixture) record(t *testing.T, id world.EntityID) (owner uuid.NullUUID, locked bool) {
	t.Helper()
	e, ok := f.world.Get(id)
	require.True(t, ok)
	r := e.Record()
	return r.Owner, r.Locked
}

func player() Sender {
	return Sender{ID: uuid.New(), Name: "Steve", Position: world.Position{X: 5, Y: 64, Z: 5, Level: "world"}}
}

func TestExecute_Console(t *testing.T) {
	f := newFixture(t)
	r := f.d.Execute(Sender{Console: true}, []string{"help"})
	assert.ErrorIs(t, r.Err, ErrNotInWorld)
}

func TestExecute_NoArguments(t *testing.T) {
	f := newFixture(t)
	r := f.d.Execute(player(), nil)
	assert.ErrorIs(t, r.Err, ErrNoArguments)
	assert.Equal(t, []string{"Usage: /vehicles help"}, r.Lines)
}

func TestExecute_Unknown(t *testing.T) {
	f := newFixture(t)
	r := f.d.Execute(player(), []string{"fly"})
	assert.ErrorIs(t, r.Err, ErrUnknownCommand)
	assert.Contains(t, r.Lines[0], "/vehicles help")
}

func TestExecute_Informational(t *testing.T) {
	f := newFixture(t)
	for _, sub := range []string{"help", "HELP", "credits", "creds"} {
		r := f.d.Execute(player(), []string{sub})
		assert.True(t, r.OK(), sub)
		assert.NotEmpty(t, r.Lines, sub)
	}

	for _, sub := range []string{"list", "types", "type"} {
		r := f.d.Execute(player(), []string{sub})
		require.True(t, r.OK(), sub)
		assert.Equal(t, "Vehicles's Available:\n- Basic Car\n- Raft", r.Lines[1])
	}
	assert.Equal(t, 0, f.world.Len())
}

func TestExecute_Spawn(t *testing.T) {
	f := newFixture(t)
	s := player()

	r := f.d.Execute(s, []string{"spawn", "raft"})
	assert.ErrorIs(t, r.Err, ErrPermissionDenied)

	f.grant("spawn")

	r = f.d.Execute(s, []string{"create"})
	assert.ErrorIs(t, r.Err, ErrNoArguments)
	assert.Contains(t, r.Lines[1], "Raft")

	r = f.d.Execute(s, []string{"new", "Tank"})
	assert.ErrorIs(t, r.Err, ErrUnknownPreset)
	assert.Equal(t, []string{`"Tank" does not exist.`}, r.Lines)

	r = f.d.Execute(s, []string{"spawn", "raft"})
	require.NoError(t, r.Err)
	assert.Equal(t, []string{`"raft" Created.`}, r.Lines)
	require.True(t, r.Target.Valid)

	e, ok := f.world.Find(r.Target.UUID)
	require.True(t, ok)
	assert.Equal(t, s.Position, e.Position())
	rec := e.Record()
	assert.Equal(t, "Raft", rec.Name)
	assert.False(t, rec.HasOwner())
	assert.False(t, rec.Locked)
}

// A player without the lock permission is refused and nothing is queued.
func TestLock_PermissionDenied(t *testing.T) {
	f := newFixture(t)
	s := player()

	r := f.d.Execute(s, []string{"lock"})
	assert.ErrorIs(t, r.Err, ErrPermissionDenied)
	assert.False(t, r.Pending)
	assert.Equal(t, 0, f.sessions.PendingCount())
}

// On foot, lock queues; the next tap on an owned vehicle locks it.
func TestLock_DeferredUntilTap(t *testing.T) {
	f := newFixture(t)
	f.grant("lock")
	s := player()
	e := f.spawnOwned(t, &s.ID, false)

	r := f.d.Execute(s, []string{"lock"})
	require.NoError(t, r.Err)
	assert.True(t, r.Pending)
	assert.Equal(t, 1, f.sessions.PendingCount())
	_, locked := f.record(t, e.ID())
	assert.False(t, locked)

	r, handled := f.d.Tap(s.ID, e.ID())
	require.True(t, handled)
	require.NoError(t, r.Err)
	assert.Equal(t, []string{"This vehicle has been locked."}, r.Lines)
	assert.Equal(t, e.Record().UUID, r.Target.UUID)

	_, locked = f.record(t, e.ID())
	assert.True(t, locked)
	assert.Equal(t, 0, f.sessions.PendingCount())

	// Consumed: a second tap is not ours.
	_, handled = f.d.Tap(s.ID, e.ID())
	assert.False(t, handled)
}

// While riding, lock resolves at once against the ridden vehicle.
func TestLock_WhileRiding(t *testing.T) {
	f := newFixture(t)
	f.grant("lock")
	s := player()
	e := f.spawnOwned(t, &s.ID, false)
	f.sessions.Board(s.ID, session.Ride{Entity: int64(e.ID()), Seat: session.DriverSeat})

	r := f.d.Execute(s, []string{"lock"})
	require.NoError(t, r.Err)
	assert.False(t, r.Pending)
	assert.Equal(t, 0, f.sessions.PendingCount())

	_, locked := f.record(t, e.ID())
	assert.True(t, locked)

	r = f.d.Execute(s, []string{"lock"})
	assert.ErrorIs(t, r.Err, ownership.ErrAlreadyLocked)
	assert.Equal(t, []string{"This vehicle is already locked."}, r.Lines)
}

// A non-owner cannot give a vehicle away.
func TestGiveaway_NotOwner(t *testing.T) {
	f := newFixture(t)
	f.grant("giveaway")
	owner := uuid.New()
	q := player()
	e := f.spawnOwned(t, &owner, true)

	require.True(t, f.d.Execute(q, []string{"giveaway"}).Pending)
	r, handled := f.d.Tap(q.ID, e.ID())
	require.True(t, handled)
	assert.ErrorIs(t, r.Err, ownership.ErrNotOwner)
	assert.Equal(t, []string{"You are not the owner of this vehicle, so you cannot give it away."}, r.Lines)

	got, locked := f.record(t, e.ID())
	assert.Equal(t, owner, got.UUID)
	assert.True(t, locked)
}

func TestGiveaway_ByOwner(t *testing.T) {
	f := newFixture(t)
	f.grant("giveaway")
	s := player()
	e := f.spawnOwned(t, &s.ID, true)
	f.sessions.Board(s.ID, session.Ride{Entity: int64(e.ID())})

	r := f.d.Execute(s, []string{"giveaway"})
	require.NoError(t, r.Err)

	owner, locked := f.record(t, e.ID())
	assert.False(t, owner.Valid)
	assert.False(t, locked)

	// The next driver claims it.
	claimed, err := f.world.SeatDriver(e.ID(), uuid.New())
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestUnlock_Messages(t *testing.T) {
	f := newFixture(t)
	f.grant("unlock")
	s := player()

	unowned := f.spawnOwned(t, nil, false)
	f.sessions.Board(s.ID, session.Ride{Entity: int64(unowned.ID())})
	r := f.d.Execute(s, []string{"unlock"})
	assert.ErrorIs(t, r.Err, ownership.ErrNoOwner)
	assert.Equal(t, []string{"This vehicle has no owner, to claim it jump in the driver seat."}, r.Lines)

	mine := f.spawnOwned(t, &s.ID, false)
	f.sessions.Board(s.ID, session.Ride{Entity: int64(mine.ID())})
	r = f.d.Execute(s, []string{"unlock"})
	assert.ErrorIs(t, r.Err, ownership.ErrAlreadyUnlocked)

	other := uuid.New()
	theirs := f.spawnOwned(t, &other, true)
	f.sessions.Board(s.ID, session.Ride{Entity: int64(theirs.ID())})
	r = f.d.Execute(s, []string{"unlock"})
	assert.ErrorIs(t, r.Err, ownership.ErrNotOwner)
	assert.Equal(t, []string{"You are not the owner of this vehicle."}, r.Lines)
}

func TestRemove(t *testing.T) {
	f := newFixture(t)
	f.grant("remove")
	s := player()
	e := f.spawnOwned(t, nil, false)

	for _, alias := range []string{"rem", "del", "delete", "remove"} {
		r := f.d.Execute(s, []string{alias})
		require.True(t, r.Pending, alias)
	}
	assert.Equal(t, 1, f.sessions.PendingCount(), "last command wins")

	r, handled := f.d.Tap(s.ID, e.ID())
	require.True(t, handled)
	require.NoError(t, r.Err)
	assert.Equal(t, 0, f.world.Len())
}

func TestRemove_WhileRidingUnseatsEveryone(t *testing.T) {
	f := newFixture(t)
	f.grant("remove")
	s := player()
	passenger := uuid.New()
	e := f.spawnOwned(t, nil, false)
	f.sessions.Board(s.ID, session.Ride{Entity: int64(e.ID())})
	f.sessions.Board(passenger, session.Ride{Entity: int64(e.ID()), Seat: 1})

	r := f.d.Execute(s, []string{"remove"})
	require.NoError(t, r.Err)
	assert.Equal(t, 0, f.world.Len())
	assert.Equal(t, 0, f.sessions.Riders())
}

func TestTap_NotAVehicle(t *testing.T) {
	f := newFixture(t)
	f.grant("lock")
	s := player()

	f.d.Execute(s, []string{"lock"})
	r, handled := f.d.Tap(s.ID, 404)
	require.True(t, handled)
	assert.ErrorIs(t, r.Err, ErrNotAVehicle)
	assert.Equal(t, 0, f.sessions.PendingCount())
}

func TestTap_NothingPending(t *testing.T) {
	f := newFixture(t)
	e := f.spawnOwned(t, nil, false)
	_, handled := f.d.Tap(uuid.New(), e.ID())
	assert.False(t, handled)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	f.grant("giveaway")
	s := player()

	r := f.d.Execute(s, []string{"cancel"})
	require.NoError(t, r.Err)
	assert.Equal(t, []string{"You have nothing to cancel."}, r.Lines)

	f.d.Execute(s, []string{"giveaway"})
	r = f.d.Execute(s, []string{"cancel"})
	assert.Equal(t, []string{"Pending vehicle action cancelled."}, r.Lines)
	assert.Equal(t, 0, f.sessions.PendingCount())
}

func TestReply_Text(t *testing.T) {
	r := Reply{Lines: []string{"a", "b"}}
	assert.Equal(t, "[V] a\n[V] b", r.Text("[V] "))
	assert.Empty(t, Reply{}.Text("[V] "))
	assert.False(t, strings.Contains(say("x").Text(""), "\n"))
}

func TestNew_NilPermissionsAllowsAll(t *testing.T) {
	f := newFixture(t)
	d := New(f.d.catalog, f.world, f.sessions, nil)
	r := d.Execute(player(), []string{"spawn", "raft"})
	assert.NoError(t, r.Err)
}
