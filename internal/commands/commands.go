// Package commands implements the /vehicles command surface and the
// tap-to-target interactions it queues.
package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/OCAP2/vehicles/internal/catalog"
	"github.com/OCAP2/vehicles/internal/ownership"
	"github.com/OCAP2/vehicles/internal/pending"
	"github.com/OCAP2/vehicles/internal/session"
	"github.com/OCAP2/vehicles/internal/vehicle"
	"github.com/OCAP2/vehicles/internal/world"
)

var (
	ErrNotInWorld       = errors.New("command needs an in-world player")
	ErrNoArguments      = errors.New("missing arguments")
	ErrUnknownCommand   = errors.New("unknown sub-command")
	ErrUnknownPreset    = errors.New("unknown vehicle preset")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotAVehicle      = errors.New("target is not a vehicle")
)

// PermissionPrefix is prepended to a verb to form its permission key.
const PermissionPrefix = "vehicles.command."

// Sender is whoever issued a command.
type Sender struct {
	ID      uuid.UUID
	Name    string
	Console bool
	// Position is where a spawned vehicle appears.
	Position world.Position
}

// PermissionFunc reports whether sender holds the permission key.
type PermissionFunc func(s Sender, key string) bool

// AllowAll grants every permission.
func AllowAll(Sender, string) bool { return true }

// Reply is the outcome of a command or tap. Err is nil on success; failures
// are never returned any other way.
type Reply struct {
	Lines []string
	Err   error

	// Pending is set when the command waits for a tap.
	Pending bool
	// Target is the vehicle acted on, if any.
	Target uuid.NullUUID
}

// OK reports whether the reply is a success.
func (r Reply) OK() bool {
	return r.Err == nil
}

// Text joins the reply lines, each with prefix.
func (r Reply) Text(prefix string) string {
	var sb strings.Builder
	for i, l := range r.Lines {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(prefix)
		sb.WriteString(l)
	}
	return sb.String()
}

func say(lines ...string) Reply {
	return Reply{Lines: lines}
}

func fail(err error, lines ...string) Reply {
	return Reply{Lines: lines, Err: err}
}

// Dispatcher runs sub-commands against the world.
type Dispatcher struct {
	catalog  *catalog.Catalog
	world    *world.Registry
	sessions *session.Manager
	allowed  PermissionFunc
}

// New creates a Dispatcher. A nil allowed grants everything.
func New(cat *catalog.Catalog, w *world.Registry, s *session.Manager, allowed PermissionFunc) *Dispatcher {
	if allowed == nil {
		allowed = AllowAll
	}
	return &Dispatcher{catalog: cat, world: w, sessions: s, allowed: allowed}
}

var interactKinds = map[string]pending.Kind{
	"remove":   pending.KindRemove,
	"rem":      pending.KindRemove,
	"del":      pending.KindRemove,
	"delete":   pending.KindRemove,
	"lock":     pending.KindLock,
	"unlock":   pending.KindUnlock,
	"giveaway": pending.KindGiveaway,
}

// Execute runs one /vehicles invocation. args excludes the command name.
func (d *Dispatcher) Execute(s Sender, args []string) Reply {
	if s.Console {
		return fail(ErrNotInWorld, "Commands for Vehicles cannot be run from console.")
	}
	if len(args) == 0 {
		return fail(ErrNoArguments, "Usage: /vehicles help")
	}

	sub := strings.ToLower(args[0])
	rest := args[1:]

	switch sub {
	case "help":
		return say(helpLines...)
	case "credits", "creds":
		return say(
			"--- Credits ---",
			"Developer: JaxkDev",
			"Testers: Kevin (@kevinishawesome), 'Simule City' beta players.",
		)
	case "list", "types", "type":
		return say("To spawn: /vehicles spawn <type>", d.available())
	case "spawn", "create", "new":
		return d.spawn(s, rest)
	case "cancel":
		if d.sessions.Cancel(s.ID) {
			return say("Pending vehicle action cancelled.")
		}
		return say("You have nothing to cancel.")
	}

	if kind, ok := interactKinds[sub]; ok {
		return d.interact(s, kind, rest)
	}
	return fail(ErrUnknownCommand, "Unknown command, please check /vehicles help For all available commands.")
}

var helpLines = []string{
	"-- HELP --",
	"/vehicles help",
	"/vehicles credits",
	"/vehicles spawn [type]",
	"/vehicles types/list",
	"/vehicles remove",
	"/vehicles lock/unlock",
	"/vehicles giveaway",
	"/vehicles cancel",
}

func (d *Dispatcher) available() string {
	return "Vehicles's Available:\n- " + strings.Join(d.catalog.Names(), "\n- ")
}

func (d *Dispatcher) permitted(s Sender, verb string) bool {
	return d.allowed(s, PermissionPrefix+verb)
}

func denied() Reply {
	return fail(ErrPermissionDenied, "You do not have permission to use that command.")
}

func (d *Dispatcher) spawn(s Sender, args []string) Reply {
	if !d.permitted(s, "spawn") {
		return denied()
	}
	if len(args) == 0 {
		return fail(ErrNoArguments, "Usage: /vehicles spawn (Type)", d.available())
	}

	name := args[0]
	preset, ok := d.catalog.Lookup(name)
	if !ok {
		return fail(ErrUnknownPreset, fmt.Sprintf("%q does not exist.", name))
	}
	e, err := d.world.Spawn(preset.NewRecord(), s.Position)
	if err != nil {
		return fail(err, fmt.Sprintf("%q could not be spawned.", name))
	}

	r := say(fmt.Sprintf("%q Created.", name))
	r.Target = uuid.NullUUID{UUID: e.Record().UUID, Valid: true}
	return r
}

var prompts = map[pending.Kind]string{
	pending.KindRemove:   "Tap the vehicle you wish to remove.",
	pending.KindLock:     "Tap the vehicle you wish to lock. (You must be the owner to lock)",
	pending.KindUnlock:   "Tap the vehicle you wish to un-lock. (You must be the owner to un-lock)",
	pending.KindGiveaway: "Tap the vehicle you wish to giveaway. (You must be the owner)",
}

// interact resolves kind now against the ridden vehicle, or queues it for the
// next tap when the sender is on foot.
func (d *Dispatcher) interact(s Sender, kind pending.Kind, args []string) Reply {
	if !d.permitted(s, kind.String()) {
		return denied()
	}

	ride, riding := d.sessions.Riding(s.ID)
	if !riding {
		d.sessions.Queue(s.ID, kind, args)
		r := say(prompts[kind])
		r.Pending = true
		return r
	}
	return d.resolve(s.ID, kind, world.EntityID(ride.Entity))
}

// Tap resolves the player's pending interaction against target. handled is
// false when the player had nothing pending, in which case the tap belongs to
// the host.
func (d *Dispatcher) Tap(player uuid.UUID, target world.EntityID) (reply Reply, handled bool) {
	in, ok := d.sessions.Take(player)
	if !ok {
		return Reply{}, false
	}
	return d.resolve(player, in.Kind, target), true
}

func (d *Dispatcher) resolve(player uuid.UUID, kind pending.Kind, target world.EntityID) Reply {
	e, ok := d.world.Get(target)
	if !ok {
		return fail(ErrNotAVehicle, "That is not a vehicle.")
	}
	rec := e.Record()

	var r Reply
	if kind == pending.KindRemove {
		if err := ownership.Remove(rec); err != nil {
			return fail(err, "That is not a vehicle.")
		}
		r = d.remove(target)
	} else {
		action := actionFor(kind)
		err := d.world.Update(target, func(rec *vehicle.Record) error {
			return ownership.Apply(action, rec, player)
		})
		r = ownershipReply(kind, err)
	}
	r.Target = uuid.NullUUID{UUID: rec.UUID, Valid: true}
	return r
}

func (d *Dispatcher) remove(target world.EntityID) Reply {
	if _, err := d.world.Remove(target); err != nil {
		return fail(err, "That vehicle could not be removed.")
	}
	d.sessions.LeaveAll(int64(target))
	return say("Vehicle removed.")
}

func actionFor(kind pending.Kind) ownership.Action {
	switch kind {
	case pending.KindLock:
		return ownership.ActionLock
	case pending.KindUnlock:
		return ownership.ActionUnlock
	case pending.KindGiveaway:
		return ownership.ActionGiveaway
	default:
		return ownership.ActionRemove
	}
}

var successLines = map[pending.Kind]string{
	pending.KindLock:     "This vehicle has been locked.",
	pending.KindUnlock:   "This vehicle has been un-locked.",
	pending.KindGiveaway: "This vehicle has been given away, next person to drive it will become owner.",
}

func ownershipReply(kind pending.Kind, err error) Reply {
	switch {
	case err == nil:
		return say(successLines[kind])
	case errors.Is(err, ownership.ErrNoOwner):
		if kind == pending.KindGiveaway {
			return fail(err, "This vehicle has no owner.")
		}
		return fail(err, "This vehicle has no owner, to claim it jump in the driver seat.")
	case errors.Is(err, ownership.ErrNotOwner):
		if kind == pending.KindGiveaway {
			return fail(err, "You are not the owner of this vehicle, so you cannot give it away.")
		}
		return fail(err, "You are not the owner of this vehicle.")
	case errors.Is(err, ownership.ErrAlreadyLocked):
		return fail(err, "This vehicle is already locked.")
	case errors.Is(err, ownership.ErrAlreadyUnlocked):
		return fail(err, "This vehicle is already un-locked.")
	default:
		return fail(err, "Something went wrong, please try again.")
	}
}
