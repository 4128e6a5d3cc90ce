package db

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/KAsare1/social-api/cmd/models"
)

// Tables lists every model in dependency order: a table only references
// tables that appear before it.
func Tables() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Post{},
		&models.Comment{},
		&models.Follow{},
	}
}

// TableByName resolves the names accepted by clear-db.
func TableByName(name string) (interface{}, bool) {
	switch name {
	case "User":
		return &models.User{}, true
	case "Post":
		return &models.Post{}, true
	case "Comment":
		return &models.Comment{}, true
	case "Follow":
		return &models.Follow{}, true
	}
	return nil, false
}

func Migrate(DB *gorm.DB, log *zap.Logger) error {
	log.Info("Starting database migrations...")
	for _, model := range Tables() {
		name := fmt.Sprintf("%T", model)
		if err := DB.AutoMigrate(model); err != nil {
			return fmt.Errorf("error migrating %s table: %w", name, err)
		}
		log.Debug("table migrated", zap.String("model", name))
	}
	return nil
}

// DropTables drops the given tables, or all of them in reverse dependency
// order when tables is empty.
func DropTables(DB *gorm.DB, log *zap.Logger, tables []interface{}) error {
	if len(tables) == 0 {
		all := Tables()
		for i := len(all) - 1; i >= 0; i-- {
			tables = append(tables, all[i])
		}
	}

	for _, table := range tables {
		if err := DB.Migrator().DropTable(table); err != nil {
			return fmt.Errorf("error dropping table %T: %w", table, err)
		}
		log.Info("table dropped", zap.String("model", fmt.Sprintf("%T", table)))
	}
	return nil
}
