package state

import (
	"time"

	"logguard/internal/types"

	"gorm.io/datatypes"
)

type Role struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"uniqueIndex;not null" json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"not null" json:"-"`
	RoleID       *uint     `gorm:"index" json:"role_id"`
	Role         *Role     `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"role,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type AttackType struct {
	ID              uint              `gorm:"primaryKey" json:"id"`
	Name            string            `gorm:"uniqueIndex;not null" json:"name"`
	Description     string            `json:"description"`
	Category        types.CIACategory `gorm:"column:cia_category;not null" json:"cia_category"`
	DefaultSeverity types.Severity    `gorm:"not null" json:"default_severity"`
}

// LogEntry is one security-relevant log row. Rows are append-only apart from
// status, resolution and false-positive fields.
type LogEntry struct {
	ID               uint                                `gorm:"primaryKey" json:"id"`
	Timestamp        time.Time                           `gorm:"not null;index;index:idx_log_pending,priority:3" json:"timestamp"`
	Source           string                              `gorm:"not null" json:"source"`
	SourceIP         string                              `gorm:"column:source_ip;not null;index" json:"source_ip"`
	DestinationIP    *string                             `gorm:"column:destination_ip" json:"destination_ip,omitempty"`
	EventType        string                              `gorm:"not null;index" json:"event_type"`
	AttackTypeID     *uint                               `gorm:"index:idx_log_pending,priority:1" json:"attack_type_id"`
	AttackType       *AttackType                         `gorm:"constraint:OnDelete:RESTRICT" json:"attack_type,omitempty"`
	Category         types.CIACategory                   `gorm:"column:cia_category;not null;index" json:"cia_category"`
	Severity         types.Severity                      `gorm:"not null" json:"severity"`
	Status           types.LogStatus                     `gorm:"not null;index:idx_log_pending,priority:2" json:"status"`
	RawLog           string                              `gorm:"type:text" json:"raw_log"`
	ParsedData       datatypes.JSONType[types.ParsedData] `gorm:"column:parsed_data;not null" json:"parsed_data"`
	Username         string                              `json:"username,omitempty"`
	ResourceAffected string                              `json:"resource_affected,omitempty"`
	CreatedBy        *uint                               `json:"created_by"`
	Creator          *User                               `gorm:"foreignKey:CreatedBy;constraint:OnDelete:SET NULL" json:"-"`
	IsResolved       bool                                `gorm:"not null" json:"is_resolved"`
	IsFalsePositive  bool                                `gorm:"not null" json:"is_false_positive"`
	ResolvedBy       *uint                               `json:"resolved_by,omitempty"`
	Resolver         *User                               `gorm:"foreignKey:ResolvedBy;constraint:OnDelete:SET NULL" json:"-"`
	ResolvedAt       *time.Time                          `json:"resolved_at,omitempty"`
	ResolutionNotes  string                              `json:"resolution_notes,omitempty"`
}

// AttackPattern is the aggregate of classified hits for one (source IP, attack type).
// An active pattern is an open incident.
type AttackPattern struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	AttackTypeID uint              `gorm:"not null;uniqueIndex:idx_pattern_key,priority:2" json:"attack_type_id"`
	AttackType   *AttackType       `gorm:"constraint:OnDelete:RESTRICT" json:"attack_type,omitempty"`
	SourceIP     string            `gorm:"column:source_ip;not null;uniqueIndex:idx_pattern_key,priority:1" json:"source_ip"`
	Category     types.CIACategory `gorm:"column:cia_category;not null" json:"cia_category"`
	Severity     types.Severity    `gorm:"not null" json:"severity"`
	EventCount   int64             `gorm:"not null" json:"event_count"`
	FirstSeen    time.Time         `gorm:"not null" json:"first_seen"`
	LastSeen     time.Time         `gorm:"not null" json:"last_seen"`
	IsActive     bool              `gorm:"not null" json:"is_active"`
	Notes        string            `json:"notes,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

type Alert struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	PatternID      *uint             `gorm:"index" json:"pattern_id"`
	Pattern        *AttackPattern    `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	AlertType      string            `gorm:"not null" json:"alert_type"`
	Severity       types.Severity    `gorm:"not null" json:"severity"`
	SourceIP       string            `gorm:"column:source_ip" json:"source_ip"`
	Category       types.CIACategory `gorm:"column:cia_category" json:"cia_category"`
	Title          string            `json:"title"`
	Description    string            `gorm:"type:text" json:"description"`
	IsAcknowledged bool              `gorm:"not null;index:idx_alert_open,priority:1" json:"is_acknowledged"`
	AcknowledgedBy *uint             `json:"acknowledged_by,omitempty"`
	Acknowledger   *User             `gorm:"foreignKey:AcknowledgedBy;constraint:OnDelete:SET NULL" json:"-"`
	AcknowledgedAt *time.Time        `json:"acknowledged_at,omitempty"`
	CreatedAt      time.Time         `gorm:"index:idx_alert_open,priority:2" json:"created_at"`
}

// AuditEntry records one mutation with the acting user and before/after snapshots
type AuditEntry struct {
	ID        uint                                `gorm:"primaryKey" json:"id"`
	Timestamp time.Time                           `gorm:"not null;index" json:"timestamp"`
	ActorID   *uint                               `json:"actor_id"`
	Actor     *User                               `gorm:"foreignKey:ActorID;constraint:OnDelete:SET NULL" json:"-"`
	Action    string                              `gorm:"not null" json:"action"`
	Entity    string                              `gorm:"not null;index:idx_audit_entity,priority:1" json:"entity"`
	EntityID  uint                                `gorm:"index:idx_audit_entity,priority:2" json:"entity_id"`
	RunID     string                              `json:"run_id,omitempty"`
	OldValue  datatypes.JSONType[*types.Snapshot] `gorm:"not null" json:"old_value"`
	NewValue  datatypes.JSONType[*types.Snapshot] `gorm:"not null" json:"new_value"`
}

func (AuditEntry) TableName() string { return "audit_log" }

var allModels = []any{
	&Role{},
	&User{},
	&AttackType{},
	&LogEntry{},
	&AttackPattern{},
	&Alert{},
	&AuditEntry{},
}
