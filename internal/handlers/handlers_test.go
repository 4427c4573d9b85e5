package handlers

import (
	"errors"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/vehicles/internal/catalog"
	"github.com/OCAP2/vehicles/internal/commands"
	"github.com/OCAP2/vehicles/internal/config"
	"github.com/OCAP2/vehicles/internal/dispatcher"
	"github.com/OCAP2/vehicles/internal/logging"
	"github.com/OCAP2/vehicles/internal/parser"
	"github.com/OCAP2/vehicles/internal/pending"
	"github.com/OCAP2/vehicles/internal/session"
	"github.com/OCAP2/vehicles/internal/storage"
	"github.com/OCAP2/vehicles/internal/storage/memory"
	"github.com/OCAP2/vehicles/internal/world"
	"github.com/OCAP2/vehicles/pkg/core"
)

// mockAuditor records every command event it receives
type mockAuditor struct {
	events []core.CommandEvent
	err    error
}

func (a *mockAuditor) RecordCommand(e *core.CommandEvent) error {
	a.events = append(a.events, *e)
	return a.err
}

var _ storage.Auditor = (*mockAuditor)(nil)

type testEnv struct {
	svc      *Service
	world    *world.Registry
	sessions *session.Manager
	backend  *memory.Backend
	auditor  *mockAuditor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cat, err := catalog.New(catalog.Preset{
		Name:   "Basic Car",
		Type:   "land",
		Design: "basic_car",
		BBox:   []float32{-1, 0, -2, 1, 1.5, 2},
		Seats: catalog.SeatsSpec{
			Driver:     []float32{0, 0.5, 0},
			Passengers: [][]float32{{0.5, 0.5, -1}},
		},
	})
	require.NoError(t, err)

	logManager := logging.NewSlogManager()
	logManager.Setup(nil, "error", nil)

	env := &testEnv{
		world:    world.NewRegistry(),
		sessions: session.NewManager(),
		backend:  memory.New(config.MemoryConfig{}),
		auditor:  &mockAuditor{},
	}
	env.svc = NewService(Dependencies{
		Parser:     parser.NewParser(slog.Default()),
		Commands:   commands.New(cat, env.world, env.sessions, nil),
		World:      env.world,
		Sessions:   env.sessions,
		Backend:    env.backend,
		Auditors:   []storage.Auditor{env.auditor},
		LogManager: logManager,
		Prefix:     "[V] ",
	})
	return env
}

func event(cmd string, args ...string) dispatcher.Event {
	return dispatcher.Event{Command: cmd, Args: args, Timestamp: time.Now()}
}

func commandArgs(player uuid.UUID, args ...string) []string {
	return append([]string{player.String(), "Steve", "1", "2", "3", "world"}, args...)
}

func (env *testEnv) spawn(t *testing.T, player uuid.UUID) world.EntityID {
	t.Helper()
	res, err := env.svc.handleVehicles(event(CmdVehicles, commandArgs(player, "spawn", "Basic Car")...))
	require.NoError(t, err)
	require.Equal(t, `[V] "Basic Car" Created.`, res)

	all := env.world.All()
	require.NotEmpty(t, all)
	return all[len(all)-1].ID()
}

func entityArg(id world.EntityID) string {
	return strconv.FormatInt(int64(id), 10)
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t)
	d, err := dispatcher.New(logging.NewDispatcherLogger(zerolog.Nop()))
	require.NoError(t, err)
	env.svc.Register(d)
	defer d.Close()

	for _, cmd := range []string{CmdVehicles, CmdTap, CmdEnter, CmdLeave, CmdQuit, CmdMove, CmdSave, CmdLoad} {
		assert.True(t, d.HasHandler(cmd), cmd)
	}

	res, err := d.Dispatch(event(CmdSave))
	require.NoError(t, err)
	assert.Equal(t, "queued", res)
}

func TestVehicles_SpawnAndAudit(t *testing.T) {
	env := newTestEnv(t)
	player := uuid.New()
	id := env.spawn(t, player)

	e, ok := env.world.Get(id)
	require.True(t, ok)
	assert.Equal(t, world.Position{X: 1, Y: 2, Z: 3, Level: "world"}, e.Position())

	require.Len(t, env.auditor.events, 1)
	ev := env.auditor.events[0]
	assert.Equal(t, "spawn", ev.Command)
	assert.Equal(t, player, ev.Player)
	assert.Equal(t, "Steve", ev.PlayerName)
	assert.Equal(t, core.OutcomeOK, ev.Outcome)
	assert.True(t, ev.Target.Valid)
	assert.Equal(t, e.Record().UUID, ev.Target.UUID)
}

func TestVehicles_FailureIsReplyNotError(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.svc.handleVehicles(event(CmdVehicles, commandArgs(uuid.New(), "fly")...))
	require.NoError(t, err)
	assert.Contains(t, res, "[V] ")

	require.Len(t, env.auditor.events, 1)
	assert.Equal(t, "fly", env.auditor.events[0].Command)
	assert.False(t, env.auditor.events[0].Succeeded())
}

func TestVehicles_Console(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.svc.handleVehicles(event(CmdVehicles, "console", "CONSOLE", "help"))
	require.NoError(t, err)
	assert.Equal(t, "[V] Commands for Vehicles cannot be run from console.", res)
}

func TestVehicles_ParseError(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.handleVehicles(event(CmdVehicles, "not-a-uuid", "Steve", "0", "0", "0", "world", "help"))
	assert.Error(t, err)
	assert.Empty(t, env.auditor.events)
}

func TestVehicles_AuditorFailureIgnored(t *testing.T) {
	env := newTestEnv(t)
	env.auditor.err = errors.New("influx down")

	_, err := env.svc.handleVehicles(event(CmdVehicles, commandArgs(uuid.New(), "list")...))
	assert.NoError(t, err)
}

func TestTap_LockFlow(t *testing.T) {
	env := newTestEnv(t)
	owner := uuid.New()
	id := env.spawn(t, owner)

	res, err := env.svc.handleEnter(event(CmdEnter, owner.String(), entityArg(id), "driver"))
	require.NoError(t, err)
	assert.Equal(t, "[V] You are now the owner of this vehicle.", res)

	_, err = env.svc.handleLeave(event(CmdLeave, owner.String(), entityArg(id)))
	require.NoError(t, err)

	res, err = env.svc.handleVehicles(event(CmdVehicles, commandArgs(owner, "lock")...))
	require.NoError(t, err)
	assert.Equal(t, "[V] Tap the vehicle you wish to lock. (You must be the owner to lock)", res)
	assert.Equal(t, core.OutcomePending, env.auditor.events[len(env.auditor.events)-1].Outcome)

	res, err = env.svc.handleTap(event(CmdTap, owner.String(), entityArg(id)))
	require.NoError(t, err)
	assert.Equal(t, "[V] This vehicle has been locked.", res)

	last := env.auditor.events[len(env.auditor.events)-1]
	assert.Equal(t, TapCommand, last.Command)
	assert.Equal(t, core.OutcomeOK, last.Outcome)

	// a stranger can no longer get in
	_, err = env.svc.handleEnter(event(CmdEnter, uuid.NewString(), entityArg(id), "passenger"))
	assert.ErrorIs(t, err, world.ErrLocked)
}

func TestTap_NothingPending(t *testing.T) {
	env := newTestEnv(t)
	id := env.spawn(t, uuid.New())

	res, err := env.svc.handleTap(event(CmdTap, uuid.NewString(), entityArg(id)))
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestEnter_Passenger(t *testing.T) {
	env := newTestEnv(t)
	id := env.spawn(t, uuid.New())
	rider := uuid.New()

	res, err := env.svc.handleEnter(event(CmdEnter, rider.String(), entityArg(id), "passenger"))
	require.NoError(t, err)
	assert.Equal(t, 1, res)

	ride, ok := env.sessions.Riding(rider)
	require.True(t, ok)
	assert.Equal(t, 1, ride.Seat)

	_, err = env.svc.handleEnter(event(CmdEnter, uuid.NewString(), entityArg(id), "passenger"))
	assert.ErrorIs(t, err, world.ErrNoFreeSeat)
}

func TestEnter_UnknownEntityIgnored(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.svc.handleEnter(event(CmdEnter, uuid.NewString(), "999"))
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestEnter_SwitchingVehiclesVacatesOldSeat(t *testing.T) {
	env := newTestEnv(t)
	player := uuid.New()
	first := env.spawn(t, player)
	second := env.spawn(t, player)

	_, err := env.svc.handleEnter(event(CmdEnter, player.String(), entityArg(first)))
	require.NoError(t, err)
	_, err = env.svc.handleEnter(event(CmdEnter, player.String(), entityArg(second)))
	require.NoError(t, err)

	e, _ := env.world.Get(first)
	_, seated := e.Driver()
	assert.False(t, seated)

	ride, ok := env.sessions.Riding(player)
	require.True(t, ok)
	assert.Equal(t, int64(second), ride.Entity)
}

func TestEnter_RefusedKeepsCurrentRide(t *testing.T) {
	tests := []struct {
		name    string
		seat    string
		prepare func(t *testing.T, env *testEnv, target world.EntityID)
		wantErr error
	}{
		{"locked by another player", "driver", func(t *testing.T, env *testEnv, target world.EntityID) {
			other := uuid.New()
			_, err := env.svc.handleEnter(event(CmdEnter, other.String(), entityArg(target), "driver"))
			require.NoError(t, err)
			_, err = env.svc.handleLeave(event(CmdLeave, other.String(), entityArg(target)))
			require.NoError(t, err)
			_, err = env.svc.handleVehicles(event(CmdVehicles, commandArgs(other, "lock")...))
			require.NoError(t, err)
			res, err := env.svc.handleTap(event(CmdTap, other.String(), entityArg(target)))
			require.NoError(t, err)
			require.Equal(t, "[V] This vehicle has been locked.", res)
		}, world.ErrLocked},
		{"no free passenger seat", "passenger", func(t *testing.T, env *testEnv, target world.EntityID) {
			_, err := env.svc.handleEnter(event(CmdEnter, uuid.NewString(), entityArg(target), "passenger"))
			require.NoError(t, err)
		}, world.ErrNoFreeSeat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			player := uuid.New()
			current := env.spawn(t, player)
			target := env.spawn(t, player)
			tt.prepare(t, env, target)

			_, err := env.svc.handleEnter(event(CmdEnter, player.String(), entityArg(current), "driver"))
			require.NoError(t, err)

			_, err = env.svc.handleEnter(event(CmdEnter, player.String(), entityArg(target), tt.seat))
			require.ErrorIs(t, err, tt.wantErr)

			ride, ok := env.sessions.Riding(player)
			require.True(t, ok)
			assert.Equal(t, int64(current), ride.Entity)
			assert.Equal(t, session.DriverSeat, ride.Seat)

			e, _ := env.world.Get(current)
			driver, seated := e.Driver()
			require.True(t, seated)
			assert.Equal(t, player, driver)
		})
	}
}

func TestLeave_NotRiding(t *testing.T) {
	env := newTestEnv(t)
	id := env.spawn(t, uuid.New())

	_, err := env.svc.handleLeave(event(CmdLeave, uuid.NewString(), entityArg(id)))
	assert.ErrorIs(t, err, ErrNotSeated)
}

func TestQuit_ClearsSessionAndSeat(t *testing.T) {
	env := newTestEnv(t)
	player := uuid.New()
	id := env.spawn(t, player)

	_, err := env.svc.handleEnter(event(CmdEnter, player.String(), entityArg(id)))
	require.NoError(t, err)
	env.sessions.Queue(player, pending.KindLock, nil)

	_, err = env.svc.handleQuit(event(CmdQuit, player.String()))
	require.NoError(t, err)

	_, riding := env.sessions.Riding(player)
	assert.False(t, riding)
	_, pending := env.sessions.Take(player)
	assert.False(t, pending)

	e, _ := env.world.Get(id)
	_, seated := e.Driver()
	assert.False(t, seated)
}

func TestMove(t *testing.T) {
	env := newTestEnv(t)
	id := env.spawn(t, uuid.New())

	_, err := env.svc.handleMove(event(CmdMove, entityArg(id), "5", "6", "7", "nether"))
	require.NoError(t, err)

	e, _ := env.world.Get(id)
	assert.Equal(t, world.Position{X: 5, Y: 6, Z: 7, Level: "nether"}, e.Position())

	_, err = env.svc.handleMove(event(CmdMove, "999", "5", "6", "7", "nether"))
	assert.ErrorIs(t, err, world.ErrNoSuchEntity)
}

func TestSaveAndLoad(t *testing.T) {
	env := newTestEnv(t)
	env.spawn(t, uuid.New())
	env.spawn(t, uuid.New())

	n, err := env.svc.handleSave(event(CmdSave, "all"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = env.svc.handleSave(event(CmdSave))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	stored, err := env.backend.LoadVehicles()
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	fresh := newTestEnv(t)
	fresh.svc.deps.Backend = env.backend
	loaded, err := fresh.svc.handleLoad(event(CmdLoad))
	require.NoError(t, err)
	assert.Equal(t, 2, loaded)
	assert.Equal(t, 2, fresh.world.Len())
}

func TestLoad_SkipsCorruptVehicles(t *testing.T) {
	env := newTestEnv(t)
	env.spawn(t, uuid.New())
	_, err := env.svc.Save(true)
	require.NoError(t, err)

	require.NoError(t, env.backend.SaveVehicle(&core.StoredVehicle{UUID: uuid.New(), Data: []byte{0xff}}))

	fresh := newTestEnv(t)
	fresh.svc.deps.Backend = env.backend
	loaded, err := fresh.svc.handleLoad(event(CmdLoad))
	require.NoError(t, err)
	assert.Equal(t, 1, loaded)
}

func TestSplitLoadErrors(t *testing.T) {
	le := &world.LoadError{UUID: uuid.New(), Err: errors.New("bad tag")}
	boom := errors.New("backend down")

	skipped, fatal := splitLoadErrors(errors.Join(le, boom))
	require.Len(t, skipped, 1)
	assert.Equal(t, le, skipped[0])
	assert.ErrorIs(t, fatal, boom)

	skipped, fatal = splitLoadErrors(nil)
	assert.Empty(t, skipped)
	assert.NoError(t, fatal)

	skipped, fatal = splitLoadErrors(boom)
	assert.Empty(t, skipped)
	assert.ErrorIs(t, fatal, boom)
}
