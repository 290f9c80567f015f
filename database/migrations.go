package database

import (
	"log/slog"

	"gorm.io/gorm"

	"inkwell/models"
	"inkwell/slug"
)

// All lists every table the API owns, in creation order.
var All = []any{
	&models.User{},
	&models.Category{},
	&models.Post{},
	&models.Comment{},
	&models.Tag{},
	&models.PostTag{},
}

func RunMigrations(db *gorm.DB) error {
	slog.Info("Running database migrations")

	if err := db.AutoMigrate(All...); err != nil {
		slog.Error("Error running migrations", "error", err)
		return err
	}

	if err := backfillSearchColumns(db); err != nil {
		slog.Error("Error backfilling search columns", "error", err)
		return err
	}

	slog.Info("Migrations completed successfully")
	return nil
}

// backfillSearchColumns fills the folded search columns of posts written
// before those columns existed.
func backfillSearchColumns(db *gorm.DB) error {
	var posts []models.Post
	fresh := db.Session(&gorm.Session{NewDB: true})
	return db.Select("id", "title", "content").
		Where("title_fold = '' OR title_fold IS NULL").
		FindInBatches(&posts, 200, func(tx *gorm.DB, batch int) error {
			for _, p := range posts {
				err := fresh.Model(&models.Post{}).Where("id = ?", p.ID).UpdateColumns(map[string]any{
					"title_fold":   slug.Fold(p.Title),
					"content_fold": slug.Fold(p.Content),
				}).Error
				if err != nil {
					return err
				}
			}
			return nil
		}).Error
}
