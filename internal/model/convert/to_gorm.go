// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"
	"fmt"

	"github.com/OCAP2/vehicles/internal/model"
	"github.com/OCAP2/vehicles/internal/vehicle"
	"github.com/OCAP2/vehicles/pkg/core"
	"github.com/google/uuid"
	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

// position3DToPoint converts a core.Position3D to an XYZ geom.Point. NaN and
// infinite coordinates are rejected.
func position3DToPoint(p core.Position3D) (geom.Point, error) {
	coords := geom.Coordinates{XY: geom.XY{X: p.X, Y: p.Y}, Z: p.Z, Type: geom.DimXYZ}
	return geom.NewPoint(coords)
}

func nullUUIDToString(id uuid.NullUUID) *string {
	if !id.Valid {
		return nil
	}
	s := id.UUID.String()
	return &s
}

// Attributes is the queryable summary of a vehicle's encoded record.
type Attributes struct {
	Scale          float32       `json:"scale"`
	Gravity        float64       `json:"gravity"`
	Speed          vehicle.Speed `json:"speed"`
	PassengerSeats int           `json:"passengerSeats"`
}

// attributesJSON summarises the encoded record. Undecodable data yields an
// empty object; the blob itself is still stored.
func attributesJSON(data []byte) datatypes.JSON {
	r, err := vehicle.Unmarshal(data)
	if err != nil {
		return datatypes.JSON("{}")
	}
	out, err := json.Marshal(Attributes{
		Scale:          r.Scale,
		Gravity:        r.Gravity,
		Speed:          r.Speed,
		PassengerSeats: len(r.PassengerSeats),
	})
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(out)
}

// argsToJSON converts command args to datatypes.JSON for DB storage.
func argsToJSON(args []string) datatypes.JSON {
	if len(args) == 0 {
		return datatypes.JSON("[]")
	}
	data, _ := json.Marshal(args)
	return datatypes.JSON(data)
}

// CoreToVehicle converts a core.StoredVehicle to a GORM model.Vehicle.
func CoreToVehicle(v core.StoredVehicle) (model.Vehicle, error) {
	pos, err := position3DToPoint(v.Position)
	if err != nil {
		return model.Vehicle{}, fmt.Errorf("vehicle %s position: %w", v.UUID, err)
	}
	data := make([]byte, len(v.Data))
	copy(data, v.Data)

	return model.Vehicle{
		UUID:       v.UUID.String(),
		SavedAt:    v.SavedAt,
		Preset:     v.Preset,
		Design:     v.Design,
		Type:       v.Type,
		Owner:      nullUUIDToString(v.Owner),
		Locked:     v.Locked,
		Level:      v.Level,
		Position:   pos,
		Data:       data,
		Attributes: attributesJSON(v.Data),
	}, nil
}

// CoreToCommandLog converts a core.CommandEvent to a GORM model.CommandLog.
func CoreToCommandLog(e core.CommandEvent) model.CommandLog {
	return model.CommandLog{
		Time:       e.Time,
		PlayerUUID: e.Player.String(),
		PlayerName: e.PlayerName,
		Command:    e.Command,
		Args:       argsToJSON(e.Args),
		Target:     nullUUIDToString(e.Target),
		Outcome:    e.Outcome,
	}
}
