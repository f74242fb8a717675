package model

import "time"

// Record is one persisted observation or command held by the local store.
// Only Synced changes after creation.
type Record struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Type      string    `gorm:"size:32;not null" json:"type"`
	Name      string    `gorm:"size:64;not null" json:"name"`
	Value     float64   `gorm:"not null" json:"value"`
	Unit      string    `gorm:"size:16;not null" json:"unit"`
	Comment   string    `gorm:"type:text" json:"comment"`
	Timestamp time.Time `gorm:"not null;index:idx_records_pending,priority:2" json:"timestamp"`
	Synced    bool      `gorm:"not null;default:false;index:idx_records_pending,priority:1" json:"synced"`
}

// Column widths shared by the local and remote schemas, in characters.
const (
	MaxTypeLen = 32
	MaxNameLen = 64
	MaxUnitLen = 16
)

// TableName pins the table name shared by the local and remote schemas.
func (Record) TableName() string {
	return "records"
}

// Submission carries the caller-supplied fields of a new record. The id,
// timestamp and sync state are assigned by the store.
type Submission struct {
	Type    string  `json:"type"`
	Name    string  `json:"name"`
	Value   float64 `json:"value"`
	Unit    string  `json:"unit"`
	Comment string  `json:"comment"`
}

// Well-known record types.
const (
	TypeTemperature = "temperature"
	TypeLight       = "light"
	TypeButton      = "button"
	TypeJoystick    = "joystick"
	TypeCommand     = "command"
)

// PresenceValue marks records whose payload is not numeric, such as commands
// and button presses.
const PresenceValue = 1.0

// RemoteAck is returned by the remote store after a successful insert.
type RemoteAck struct {
	RemoteID int64
}
