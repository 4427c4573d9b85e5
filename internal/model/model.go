package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&SchemaInfo{},
	&Vehicle{},
	&CommandLog{},
}

////////////////////////
// SYSTEM MODELS
////////////////////////

// SchemaInfo records which vehicle format the stored blobs use.
type SchemaInfo struct {
	ID            uint      `json:"id" gorm:"primarykey;autoIncrement;"`
	FormatVersion int32     `json:"formatVersion"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (*SchemaInfo) TableName() string {
	return "schema_infos"
}

////////////////////////
// VEHICLES
////////////////////////

// Vehicle is one saved vehicle entity. Data holds the encoded record and is
// the source of truth on load; the other columns are denormalised copies for
// querying.
type Vehicle struct {
	UUID      string    `json:"uuid" gorm:"primaryKey;size:36"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	SavedAt   time.Time `json:"savedAt"`

	Preset string `json:"preset" gorm:"size:64;index:idx_vehicle_preset"`
	Design string `json:"design" gorm:"size:64"`
	Type   string `json:"type" gorm:"size:16"`

	Owner  *string `json:"owner" gorm:"size:36;index:idx_vehicle_owner"` // Player UUID, NULL when unclaimed
	Locked bool    `json:"locked" gorm:"default:false"`

	Level      string         `json:"level" gorm:"size:64;index:idx_vehicle_level"`
	Position   geom.Point     `json:"position"`   // Position as XYZ point
	Data       []byte         `json:"-"`          // Encoded vehicle record
	Attributes datatypes.JSON `json:"attributes"` // Scale, gravity, speeds and seat count
}

func (*Vehicle) TableName() string {
	return "vehicles"
}

////////////////////////
// COMMANDS
////////////////////////

// CommandLog is one /vehicles invocation or resolved tap.
type CommandLog struct {
	ID         uint           `json:"id" gorm:"primarykey;autoIncrement;"`
	Time       time.Time      `json:"time" gorm:"index:idx_commandlog_time"`
	PlayerUUID string         `json:"playerUuid" gorm:"size:36;index:idx_commandlog_player"`
	PlayerName string         `json:"playerName" gorm:"size:64"`
	Command    string         `json:"command" gorm:"size:32"`
	Args       datatypes.JSON `json:"args"`
	Target     *string        `json:"target" gorm:"size:36"` // Vehicle UUID, NULL when none
	Outcome    string         `json:"outcome" gorm:"size:255"`
}

func (*CommandLog) TableName() string {
	return "command_logs"
}
