package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationClampDanglingReadCursors = "2026-07-21_clamp_dangling_read_cursors"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationClampDanglingReadCursors, apply: clampDanglingReadCursors},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// clampDanglingReadCursors resets cursors that point past the highest message
// id in their channel. Such rows appear when the message table is restored
// from an older backup than the cursor table; left alone they hide new
// messages from unread counts until the channel catches back up.
func clampDanglingReadCursors(db *gorm.DB) error {
	const clamp = `
UPDATE user_channel_reads
SET last_read_message_id = (
    SELECT COALESCE(MAX(m.id), 0) FROM messages m
    WHERE m.channel_id = user_channel_reads.channel_id)
WHERE last_read_message_id > (
    SELECT COALESCE(MAX(m.id), 0) FROM messages m
    WHERE m.channel_id = user_channel_reads.channel_id)`
	return db.Exec(clamp).Error
}
