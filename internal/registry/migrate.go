package registry

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// Migrate brings the registry schema up to date.
func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_device_tokens",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&TokenModel{}); err != nil {
					return err
				}
				indexes := []string{
					`CREATE INDEX IF NOT EXISTS idx_device_tokens_status ON device_tokens (status)`,
					`CREATE INDEX IF NOT EXISTS idx_device_tokens_replaced_by ON device_tokens (replaced_by) WHERE replaced_by IS NOT NULL`,
				}
				for _, sql := range indexes {
					if err := tx.Exec(sql).Error; err != nil {
						return err
					}
				}
				return nil
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&TokenModel{})
			},
		},
	})

	return m.Migrate()
}
