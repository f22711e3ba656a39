package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"personnage-gallery/internal/model"
)

type ImageRepository struct {
	db *gorm.DB
}

func NewImageRepository(db *gorm.DB) *ImageRepository {
	return &ImageRepository{db: db}
}

// Transaction runs fn with a repository bound to a single transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
func (r *ImageRepository) Transaction(ctx context.Context, fn func(tx *ImageRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&ImageRepository{db: tx})
	})
}

func (r *ImageRepository) Create(ctx context.Context, image *model.Image) error {
	if err := r.db.WithContext(ctx).Create(image).Error; err != nil {
		return fmt.Errorf("create image failed: %w", err)
	}
	return nil
}

func (r *ImageRepository) GetByID(ctx context.Context, id uint) (*model.Image, error) {
	var image model.Image
	if err := r.db.WithContext(ctx).First(&image, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query image by id failed: %w", err)
	}
	return &image, nil
}

// List returns every image, newest first.
func (r *ImageRepository) List(ctx context.Context) ([]model.Image, error) {
	var images []model.Image
	if err := r.db.WithContext(ctx).Order("id DESC").Find(&images).Error; err != nil {
		return nil, fmt.Errorf("list images failed: %w", err)
	}
	return images, nil
}

func (r *ImageRepository) ListByFilename(ctx context.Context, filename string) ([]model.Image, error) {
	var images []model.Image
	if err := r.db.WithContext(ctx).Where("filename = ?", filename).Order("id ASC").Find(&images).Error; err != nil {
		return nil, fmt.Errorf("list images by filename failed: %w", err)
	}
	return images, nil
}

// DeleteByID reports whether a row was removed.
func (r *ImageRepository) DeleteByID(ctx context.Context, id uint) (bool, error) {
	result := r.db.WithContext(ctx).Delete(&model.Image{}, id)
	if result.Error != nil {
		return false, fmt.Errorf("delete image failed: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}
