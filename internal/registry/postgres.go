package registry

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Token lifecycle states in the device_tokens table.
const (
	tokenStatusActive   = "ACTIVE"
	tokenStatusReplaced = "REPLACED"
	tokenStatusRemoved  = "REMOVED"
)

// TokenModel is the persistence model for the device_tokens table.
type TokenModel struct {
	Token         string  `gorm:"type:varchar(512);primaryKey"`
	Status        string  `gorm:"type:varchar(20);not null"`
	ReplacedBy    *string `gorm:"type:varchar(512)"`
	LastMessageID *string `gorm:"type:varchar(255)"`
	DeliveredAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (TokenModel) TableName() string {
	return "device_tokens"
}

var _ Store = (*GormStore)(nil)

// GormStore keeps the token registry in Postgres. Retired tokens stay
// in the table with a non-active status so rotations can be audited.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Warn),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate registry schema: %w", err)
	}

	return NewGormStoreWithDB(db)
}

func NewGormStoreWithDB(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db is required")
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Replace(ctx context.Context, oldID, newID string) error {
	if oldID == "" || newID == "" {
		return fmt.Errorf("token ids are required")
	}

	newToken := TokenModel{Token: newID, Status: tokenStatusActive}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token"}},
			DoUpdates: clause.Assignments(map[string]any{"status": tokenStatusActive}),
		}).
		Create(&newToken).Error
	if err != nil {
		return fmt.Errorf("failed to upsert canonical token: %w", err)
	}

	err = s.db.WithContext(ctx).
		Model(&TokenModel{}).
		Where("token = ?", oldID).
		Updates(map[string]any{"status": tokenStatusReplaced, "replaced_by": newID}).Error
	if err != nil {
		return fmt.Errorf("failed to retire replaced token: %w", err)
	}

	return nil
}

func (s *GormStore) Remove(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("token id is required")
	}

	err := s.db.WithContext(ctx).
		Model(&TokenModel{}).
		Where("token = ?", id).
		Update("status", tokenStatusRemoved).Error
	if err != nil {
		return fmt.Errorf("failed to retire token: %w", err)
	}

	return nil
}

func (s *GormStore) MarkDelivered(ctx context.Context, id, messageID string) error {
	if id == "" {
		return fmt.Errorf("token id is required")
	}

	now := time.Now().UTC()
	token := TokenModel{
		Token:         id,
		Status:        tokenStatusActive,
		LastMessageID: &messageID,
		DeliveredAt:   &now,
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "token"}},
			DoUpdates: clause.Assignments(map[string]any{
				"status":          tokenStatusActive,
				"last_message_id": messageID,
				"delivered_at":    now,
			}),
		}).
		Create(&token).Error
	if err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}

	return nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store is not initialized")
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}
