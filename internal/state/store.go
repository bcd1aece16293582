package state

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"logguard/internal/classify"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Store owns the single storage connection of one invocation
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

var seedRoles = []Role{
	{Name: "admin", Description: "Full access, including deletes and cleanup"},
	{Name: "analyst", Description: "Runs detection and resolves logs"},
	{Name: "viewer", Description: "Read-only access"},
}

var seedAttackTypes = []struct {
	Name        string
	Description string
}{
	{"Brute Force", "Repeated authentication attempts against one service"},
	{"DDoS", "Distributed flood of requests aimed at exhausting a service"},
	{"DoS", "Single-source flood aimed at exhausting a service"},
	{"Port Scan", "Probing many ports to enumerate services"},
	{"Intrusion", "Signature match for an intrusion attempt"},
	{"SQL Injection", "Injected SQL in request parameters"},
	{"Web Scan", "Enumeration of web paths, typically many 404 responses"},
	{"Privilege Escalation", "Failed or abused sudo/su attempts"},
	{"Unauthorized Access", "Requests rejected with 401 or 403"},
	{"Malware", "Malware activity reported by a sensor"},
}

// Open opens the SQLite database at path with foreign keys enforced, migrates the
// schema and seeds the reference tables.
func Open(ctx context.Context, path string, busyTimeout time.Duration) (*Store, error) {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_busy_timeout=%d", path, busyTimeout.Milliseconds())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Error),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w: %w", path, ErrConnectivity, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w: %w", ErrConnectivity, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to reach database %s: %w: %w", path, ErrConnectivity, err)
	}

	s := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	slog.Debug("database ready", "path", path)
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(allModels...); err != nil {
		return wrap("failed to migrate schema", err)
	}

	roles := make([]Role, len(seedRoles))
	copy(roles, seedRoles)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&roles).Error; err != nil {
		return wrap("failed to seed roles", err)
	}

	attackTypes := make([]AttackType, 0, len(seedAttackTypes))
	for _, at := range seedAttackTypes {
		cat := classify.Category(classify.EventTypeFor(at.Name))
		attackTypes = append(attackTypes, AttackType{
			Name:            at.Name,
			Description:     at.Description,
			Category:        cat,
			DefaultSeverity: classify.DefaultSeverity(cat),
		})
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&attackTypes).Error; err != nil {
		return wrap("failed to seed attack types", err)
	}
	return nil
}

// Close releases the connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SetClock replaces the clock used for resolution and acknowledgement times
func (s *Store) SetClock(now func() time.Time) {
	s.now = func() time.Time { return now().UTC() }
}

// Transaction runs fn in a single transaction. fn receives a store bound to it.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, now: s.now})
	})
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}
