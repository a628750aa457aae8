// Package audit persists a connection history trail to Postgres via GORM,
// adapted from database.Session: one row per join/leave/failure event,
// append-only, never read back to reconstruct live room or peer state (the
// in-memory room.Registry and media.Registry remain the only source of
// truth for that; this is a dashboard backing store). Disabled cleanly when
// no DATABASE_URL is configured, since room metadata is never meant to
// persist across restarts.
package audit

import (
	"time"

	"github.com/pion/logging"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// EventType distinguishes the lifecycle events recorded for a peer.
type EventType string

const (
	EventJoin   EventType = "join"
	EventLeave  EventType = "leave"
	EventFailed EventType = "failed"
)

// ConnectionEvent is a single append-only audit row.
type ConnectionEvent struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	RoomID    string    `gorm:"index;type:varchar(255);not null"`
	PeerID    string    `gorm:"index;type:varchar(255);not null"`
	Event     EventType `gorm:"type:varchar(20);not null"`
	Detail    string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`
}

// Trail records connection events to Postgres. A nil *Trail is valid and
// every method on it is a no-op, so callers can wire it unconditionally
// and let Open's nil return disable the feature.
type Trail struct {
	db  *gorm.DB
	log logging.LeveledLogger
}

// Open connects to dsn and migrates the audit schema. An empty dsn is not
// an error: Open logs a warning that audit is disabled and returns
// (nil, nil), and callers proceed without one — the signaling/media path
// must never depend on the database being reachable.
func Open(dsn string, log logging.LeveledLogger) (*Trail, error) {
	if dsn == "" {
		log.Warn("audit: DATABASE_URL not set, connection audit trail disabled")
		return nil, nil
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&ConnectionEvent{}); err != nil {
		return nil, err
	}

	log.Info("audit: connection audit trail enabled")
	return &Trail{db: db, log: log}, nil
}

// Record appends an event. Failures are logged, not returned: the audit
// trail is best-effort and must never block or fail the signaling path.
func (t *Trail) Record(roomID, peerID string, event EventType, detail string) {
	if t == nil {
		return
	}
	row := ConnectionEvent{RoomID: roomID, PeerID: peerID, Event: event, Detail: detail}
	if err := t.db.Create(&row).Error; err != nil {
		t.log.Errorf("audit: failed to record %s event for peer %s: %v", event, peerID, err)
	}
}

// Recent returns the most recent events, newest first, for the admin API.
func (t *Trail) Recent(limit int) ([]ConnectionEvent, error) {
	if t == nil {
		return nil, nil
	}
	var rows []ConnectionEvent
	err := t.db.Order("created_at desc").Limit(limit).Find(&rows).Error
	return rows, err
}

// Close releases the underlying database connection pool.
func (t *Trail) Close() error {
	if t == nil {
		return nil
	}
	sqlDB, err := t.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
