// Package parser converts the string arguments sent by the game host into
// typed events. It does no lookups of its own; resolving ids against the
// world is left to the handlers.
package parser

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/OCAP2/vehicles/internal/util"
	"github.com/OCAP2/vehicles/internal/world"
)

// ConsolePlayer is the player id the host sends for the server console.
const ConsolePlayer = "console"

// ErrArgCount is returned when the host sent too few arguments.
var ErrArgCount = errors.New("wrong number of arguments")

// parseIntFromFloat parses a string that may be an integer ("32") or float ("32.00") into int64.
// Script engines without an integer type serialize whole numbers as floats.
func parseIntFromFloat(s string) (int64, error) {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != float64(int64(f)) {
		return 0, fmt.Errorf("parseIntFromFloat: %q is not a valid int64", s)
	}
	return int64(f), nil
}

func needArgs(data []string, n int) error {
	if len(data) < n {
		return fmt.Errorf("%w: got %d, want at least %d", ErrArgCount, len(data), n)
	}
	return nil
}

func parseEntity(s string) (world.EntityID, error) {
	id, err := parseIntFromFloat(s)
	if err != nil {
		return 0, fmt.Errorf("error converting entity id: %w", err)
	}
	return world.EntityID(id), nil
}

func parsePlayer(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("error parsing player uuid %q: %w", s, err)
	}
	return id, nil
}

// parsePosition reads x, y, z and level from data[0:4].
func parsePosition(data []string) (world.Position, error) {
	var pos world.Position
	coords := []*float64{&pos.X, &pos.Y, &pos.Z}
	for i, c := range coords {
		v, err := strconv.ParseFloat(data[i], 64)
		if err != nil {
			return pos, fmt.Errorf("error converting coordinate %d to float: %w", i, err)
		}
		*c = v
	}
	pos.Level = data[3]
	return pos, nil
}

// Parser provides pure []string -> event conversion.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a new parser with only a logger dependency
func NewParser(logger *slog.Logger) *Parser {
	return &Parser{logger: logger}
}

// ParseCommand parses [player, name, x, y, z, level, args...]. A player of
// "console" or "" marks a console sender, whose position is ignored.
func (p *Parser) ParseCommand(data []string) (CommandEvent, error) {
	var ev CommandEvent
	if err := needArgs(data, 2); err != nil {
		return ev, err
	}
	util.CleanArgs(data)

	ev.Sender.Name = data[1]
	if data[0] == "" || strings.EqualFold(data[0], ConsolePlayer) {
		ev.Sender.Console = true
		if len(data) > 6 {
			ev.Args = data[6:]
		} else if len(data) > 2 {
			ev.Args = data[2:]
		}
		return ev, nil
	}

	if err := needArgs(data, 6); err != nil {
		return ev, err
	}
	id, err := parsePlayer(data[0])
	if err != nil {
		return ev, err
	}
	ev.Sender.ID = id

	pos, err := parsePosition(data[2:6])
	if err != nil {
		return ev, err
	}
	ev.Sender.Position = pos
	ev.Args = data[6:]

	p.logger.Debug("Parsed command", "player", ev.Sender.Name, "args", ev.Args)
	return ev, nil
}

// ParseTap parses [player, entity].
func (p *Parser) ParseTap(data []string) (TapEvent, error) {
	var ev TapEvent
	if err := needArgs(data, 2); err != nil {
		return ev, err
	}
	util.CleanArgs(data)

	var err error
	if ev.Player, err = parsePlayer(data[0]); err != nil {
		return ev, err
	}
	if ev.Entity, err = parseEntity(data[1]); err != nil {
		return ev, err
	}
	return ev, nil
}

// ParseSeat parses [player, entity, seat] where seat is "driver" or
// "passenger". A missing seat means the driver seat.
func (p *Parser) ParseSeat(data []string) (SeatEvent, error) {
	var ev SeatEvent
	if err := needArgs(data, 2); err != nil {
		return ev, err
	}
	util.CleanArgs(data)

	var err error
	if ev.Player, err = parsePlayer(data[0]); err != nil {
		return ev, err
	}
	if ev.Entity, err = parseEntity(data[1]); err != nil {
		return ev, err
	}

	ev.Driver = true
	if len(data) > 2 {
		switch strings.ToLower(data[2]) {
		case "driver", "":
		case "passenger":
			ev.Driver = false
		default:
			return ev, fmt.Errorf("unknown seat %q", data[2])
		}
	}
	return ev, nil
}

// ParsePlayer parses [player].
func (p *Parser) ParsePlayer(data []string) (PlayerEvent, error) {
	var ev PlayerEvent
	if err := needArgs(data, 1); err != nil {
		return ev, err
	}
	util.CleanArgs(data)

	id, err := parsePlayer(data[0])
	if err != nil {
		return ev, err
	}
	ev.Player = id
	return ev, nil
}

// ParseMove parses [entity, x, y, z, level].
func (p *Parser) ParseMove(data []string) (MoveEvent, error) {
	var ev MoveEvent
	if err := needArgs(data, 5); err != nil {
		return ev, err
	}
	util.CleanArgs(data)

	var err error
	if ev.Entity, err = parseEntity(data[0]); err != nil {
		return ev, err
	}
	if ev.Position, err = parsePosition(data[1:5]); err != nil {
		return ev, err
	}
	return ev, nil
}
