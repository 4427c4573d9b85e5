package convert

import (
	"encoding/json"
	"fmt"

	"github.com/OCAP2/vehicles/internal/model"
	"github.com/OCAP2/vehicles/pkg/core"
	"github.com/google/uuid"
	geom "github.com/peterstace/simplefeatures/geom"
)

// pointToPosition3D converts a geom.Point to a core.Position3D
func pointToPosition3D(p geom.Point) core.Position3D {
	coord, ok := p.Coordinates()
	if !ok {
		return core.Position3D{}
	}
	return core.Position3D{X: coord.XY.X, Y: coord.XY.Y, Z: coord.Z}
}

func stringToNullUUID(s *string) (uuid.NullUUID, error) {
	if s == nil || *s == "" {
		return uuid.NullUUID{}, nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return uuid.NullUUID{}, err
	}
	return uuid.NullUUID{UUID: id, Valid: true}, nil
}

// VehicleToCore converts a GORM Vehicle to a core.StoredVehicle.
func VehicleToCore(v model.Vehicle) (core.StoredVehicle, error) {
	id, err := uuid.Parse(v.UUID)
	if err != nil {
		return core.StoredVehicle{}, fmt.Errorf("vehicle row uuid %q: %w", v.UUID, err)
	}
	owner, err := stringToNullUUID(v.Owner)
	if err != nil {
		return core.StoredVehicle{}, fmt.Errorf("vehicle %s owner: %w", v.UUID, err)
	}

	return core.StoredVehicle{
		UUID:     id,
		Preset:   v.Preset,
		Design:   v.Design,
		Type:     v.Type,
		Owner:    owner,
		Locked:   v.Locked,
		Level:    v.Level,
		Position: pointToPosition3D(v.Position),
		Data:     v.Data,
		SavedAt:  v.SavedAt,
	}, nil
}

// CommandLogToCore converts a GORM CommandLog to a core.CommandEvent.
func CommandLogToCore(c model.CommandLog) core.CommandEvent {
	var args []string
	if len(c.Args) > 0 {
		_ = json.Unmarshal(c.Args, &args)
	}
	player, _ := uuid.Parse(c.PlayerUUID)
	target, _ := stringToNullUUID(c.Target)

	return core.CommandEvent{
		Time:       c.Time,
		Player:     player,
		PlayerName: c.PlayerName,
		Command:    c.Command,
		Args:       args,
		Target:     target,
		Outcome:    c.Outcome,
	}
}
