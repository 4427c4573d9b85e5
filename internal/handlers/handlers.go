// Package handlers binds the host's commands to the vehicle world. Every
// handler takes the raw host arguments, parses them, acts on the world and
// returns the text the host shows to the player.
package handlers

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/OCAP2/vehicles/internal/commands"
	"github.com/OCAP2/vehicles/internal/dispatcher"
	"github.com/OCAP2/vehicles/internal/logging"
	"github.com/OCAP2/vehicles/internal/parser"
	"github.com/OCAP2/vehicles/internal/session"
	"github.com/OCAP2/vehicles/internal/storage"
	"github.com/OCAP2/vehicles/internal/world"
	"github.com/OCAP2/vehicles/pkg/core"
)

// Host commands.
const (
	CmdVehicles = ":VEHICLES:"
	CmdTap      = ":TAP:"
	CmdEnter    = ":ENTER:"
	CmdLeave    = ":LEAVE:"
	CmdQuit     = ":QUIT:"
	CmdMove     = ":MOVE:"
	CmdSave     = ":SAVE:"
	CmdLoad     = ":LOAD:"
)

// TapCommand is the audit name of a resolved tap.
const TapCommand = "tap"

const saveBuffer = 16

// ErrNotSeated is returned by :LEAVE: for a player the world has no seat for.
var ErrNotSeated = errors.New("player is not riding")

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Parser     *parser.Parser
	Commands   *commands.Dispatcher
	World      *world.Registry
	Sessions   *session.Manager
	Backend    storage.Backend
	Auditors   []storage.Auditor
	LogManager *logging.SlogManager
	// Prefix starts every line shown to a player.
	Prefix string
}

// Service provides handler methods for host events
type Service struct {
	deps         Dependencies
	writeLogFunc func(functionName, data, level string)

	// saveMu keeps a buffered save from racing a load or a shutdown save.
	saveMu sync.Mutex
}

// NewService creates a new handler service
func NewService(deps Dependencies) *Service {
	s := &Service{deps: deps}
	s.writeLogFunc = func(functionName, data, level string) {
		if deps.LogManager != nil {
			deps.LogManager.WriteLog(functionName, data, level)
		}
	}
	return s
}

func (s *Service) writeLog(functionName, data, level string) {
	s.writeLogFunc(functionName, data, level)
}

// Register adds every host command to d.
func (s *Service) Register(d *dispatcher.Dispatcher) {
	d.Register(CmdVehicles, s.handleVehicles, dispatcher.Logged())
	d.Register(CmdTap, s.handleTap, dispatcher.Logged())
	d.Register(CmdEnter, s.handleEnter, dispatcher.Logged())
	d.Register(CmdLeave, s.handleLeave)
	d.Register(CmdQuit, s.handleQuit, dispatcher.Logged())
	d.Register(CmdMove, s.handleMove)
	d.Register(CmdSave, s.handleSave, dispatcher.Buffered(saveBuffer), dispatcher.Logged())
	d.Register(CmdLoad, s.handleLoad, dispatcher.Logged())
}

func (s *Service) handleVehicles(e dispatcher.Event) (any, error) {
	ev, err := s.deps.Parser.ParseCommand(e.Args)
	if err != nil {
		s.writeLog(CmdVehicles, fmt.Sprintf("Error parsing command: %v", err), "ERROR")
		return nil, err
	}

	reply := s.deps.Commands.Execute(ev.Sender, ev.Args)

	name := ""
	if len(ev.Args) > 0 {
		name = strings.ToLower(ev.Args[0])
	}
	s.audit(ev.Sender, name, ev.Args, reply, e.Timestamp)
	return reply.Text(s.deps.Prefix), nil
}

// handleTap returns nil when the player had nothing pending, leaving the tap
// to the host.
func (s *Service) handleTap(e dispatcher.Event) (any, error) {
	ev, err := s.deps.Parser.ParseTap(e.Args)
	if err != nil {
		s.writeLog(CmdTap, fmt.Sprintf("Error parsing tap: %v", err), "ERROR")
		return nil, err
	}

	reply, handled := s.deps.Commands.Tap(ev.Player, ev.Entity)
	if !handled {
		return nil, nil
	}
	s.audit(commands.Sender{ID: ev.Player}, TapCommand, nil, reply, e.Timestamp)
	return reply.Text(s.deps.Prefix), nil
}

// handleEnter seats a player. A refusal comes back as an error so the host
// cancels the entry, and leaves any seat the player already holds untouched.
func (s *Service) handleEnter(e dispatcher.Event) (any, error) {
	ev, err := s.deps.Parser.ParseSeat(e.Args)
	if err != nil {
		s.writeLog(CmdEnter, fmt.Sprintf("Error parsing seat: %v", err), "ERROR")
		return nil, err
	}
	if _, ok := s.deps.World.Get(ev.Entity); !ok {
		// not one of ours
		return nil, nil
	}

	var (
		ride   = session.Ride{Entity: int64(ev.Entity), Seat: session.DriverSeat}
		result any
	)
	if ev.Driver {
		claimed, err := s.deps.World.SeatDriver(ev.Entity, ev.Player)
		if err != nil {
			return nil, err
		}
		if claimed {
			result = s.deps.Prefix + "You are now the owner of this vehicle."
		}
	} else {
		seat, err := s.deps.World.SeatPassenger(ev.Entity, ev.Player)
		if err != nil {
			return nil, err
		}
		ride.Seat = seat
		result = seat
	}

	if prev, riding := s.deps.Sessions.Riding(ev.Player); riding && world.EntityID(prev.Entity) != ev.Entity {
		s.vacatePrevious(ev.Player, world.EntityID(prev.Entity))
	}
	s.deps.Sessions.Board(ev.Player, ride)
	return result, nil
}

func (s *Service) handleLeave(e dispatcher.Event) (any, error) {
	ev, err := s.deps.Parser.ParseSeat(e.Args)
	if err != nil {
		s.writeLog(CmdLeave, fmt.Sprintf("Error parsing seat: %v", err), "ERROR")
		return nil, err
	}
	if _, ok := s.deps.Sessions.Leave(ev.Player); !ok {
		return nil, ErrNotSeated
	}
	if err := s.deps.World.Leave(ev.Entity, ev.Player); err != nil && !errors.Is(err, world.ErrNoSuchEntity) {
		return nil, err
	}
	return nil, nil
}

func (s *Service) handleQuit(e dispatcher.Event) (any, error) {
	ev, err := s.deps.Parser.ParsePlayer(e.Args)
	if err != nil {
		s.writeLog(CmdQuit, fmt.Sprintf("Error parsing player: %v", err), "ERROR")
		return nil, err
	}
	if ride, ok := s.deps.Sessions.Disconnect(ev.Player); ok {
		if err := s.deps.World.Leave(world.EntityID(ride.Entity), ev.Player); err != nil && !errors.Is(err, world.ErrNoSuchEntity) {
			s.writeLog(CmdQuit, fmt.Sprintf("Error vacating seat: %v", err), "WARN")
		}
	}
	return nil, nil
}

func (s *Service) handleMove(e dispatcher.Event) (any, error) {
	ev, err := s.deps.Parser.ParseMove(e.Args)
	if err != nil {
		return nil, err
	}
	return nil, s.deps.World.Move(ev.Entity, ev.Position)
}

// handleSave writes changed vehicles, or every vehicle when the first
// argument is "all".
func (s *Service) handleSave(e dispatcher.Event) (any, error) {
	all := len(e.Args) > 0 && strings.EqualFold(strings.Trim(e.Args[0], `"`), "all")
	n, err := s.Save(all)
	if err != nil {
		s.writeLog(CmdSave, fmt.Sprintf("Error saving vehicles: %v", err), "ERROR")
		return n, err
	}
	s.writeLog(CmdSave, fmt.Sprintf("Saved %d vehicles", n), "DEBUG")
	return n, nil
}

// Save writes the world to the backend.
func (s *Service) Save(all bool) (int, error) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if all {
		return s.deps.World.SaveAll(s.deps.Backend)
	}
	return s.deps.World.SaveChanges(s.deps.Backend)
}

// handleLoad restores stored vehicles. Vehicles that fail to decode are
// logged and skipped; only a backend failure is returned.
func (s *Service) handleLoad(e dispatcher.Event) (any, error) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	n, err := s.deps.World.LoadAll(s.deps.Backend)
	skipped, fatal := splitLoadErrors(err)
	for _, le := range skipped {
		s.writeLog(CmdLoad, fmt.Sprintf("Skipped vehicle %s: %v", le.UUID, le.Err), "WARN")
	}
	if fatal != nil {
		s.writeLog(CmdLoad, fmt.Sprintf("Error loading vehicles: %v", fatal), "ERROR")
		return n, fatal
	}
	s.writeLog(CmdLoad, fmt.Sprintf("Loaded %d vehicles, skipped %d", n, len(skipped)), "INFO")
	return n, nil
}

func splitLoadErrors(err error) (skipped []*world.LoadError, fatal error) {
	if err == nil {
		return nil, nil
	}
	errs := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	}

	var rest []error
	for _, e := range errs {
		var le *world.LoadError
		if errors.As(e, &le) {
			skipped = append(skipped, le)
			continue
		}
		rest = append(rest, e)
	}
	return skipped, errors.Join(rest...)
}

func (s *Service) vacatePrevious(player uuid.UUID, entity world.EntityID) {
	if err := s.deps.World.Leave(entity, player); err != nil && !errors.Is(err, world.ErrNoSuchEntity) {
		s.writeLog(CmdEnter, fmt.Sprintf("Error vacating previous seat: %v", err), "WARN")
	}
}

func (s *Service) audit(sender commands.Sender, command string, args []string, reply commands.Reply, at time.Time) {
	if len(s.deps.Auditors) == 0 {
		return
	}

	outcome := core.OutcomeOK
	switch {
	case reply.Err != nil:
		outcome = reply.Err.Error()
	case reply.Pending:
		outcome = core.OutcomePending
	}

	ev := &core.CommandEvent{
		Time:       at,
		Player:     sender.ID,
		PlayerName: sender.Name,
		Command:    command,
		Args:       args,
		Target:     reply.Target,
		Outcome:    outcome,
	}
	for _, a := range s.deps.Auditors {
		if err := a.RecordCommand(ev); err != nil {
			s.writeLog("audit", fmt.Sprintf("Error recording command: %v", err), "WARN")
		}
	}
}
