package blog

import (
	"strings"

	"gorm.io/gorm"

	"inkwell/models"
)

// normalizeTags trims each tag and drops empties and repeats, keeping the
// first occurrence's position.
func normalizeTags(tags []string) []string {
	if tags == nil {
		return nil
	}
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

// replacePostTags swaps the post's tag links for tags, creating missing tags.
// It must run on the transaction that writes the post.
func replacePostTags(tx *gorm.DB, postID string, tags []string) error {
	if err := tx.Where("post_id = ?", postID).Delete(&models.PostTag{}).Error; err != nil {
		return err
	}

	for i, title := range tags {
		var tag models.Tag
		if err := tx.Where(models.Tag{Title: title}).FirstOrCreate(&tag).Error; err != nil {
			return err
		}
		link := models.PostTag{PostID: postID, TagID: tag.ID, Position: i}
		if err := tx.Create(&link).Error; err != nil {
			return err
		}
	}
	return nil
}

// attachTags fills Tags on every post with one query.
func attachTags(db *gorm.DB, posts []models.Post) error {
	if len(posts) == 0 {
		return nil
	}
	ids := make([]string, len(posts))
	for i := range posts {
		ids[i] = posts[i].ID
	}

	var rows []struct {
		PostID string
		Title  string
	}
	err := db.Table("post_tags").
		Select("post_tags.post_id, tags.title").
		Joins("JOIN tags ON tags.id = post_tags.tag_id").
		Where("post_tags.post_id IN ?", ids).
		Order("post_tags.position").
		Scan(&rows).Error
	if err != nil {
		return err
	}

	byPost := make(map[string][]string, len(posts))
	for _, r := range rows {
		byPost[r.PostID] = append(byPost[r.PostID], r.Title)
	}
	for i := range posts {
		posts[i].Tags = byPost[posts[i].ID]
		if posts[i].Tags == nil {
			posts[i].Tags = []string{}
		}
	}
	return nil
}
