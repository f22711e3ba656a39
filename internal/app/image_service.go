package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"personnage-gallery/internal/ai"
	"personnage-gallery/internal/metrics"
	"personnage-gallery/internal/model"
	"personnage-gallery/internal/repository"
	"personnage-gallery/internal/upload"
)

var (
	ErrImageNotFound = errors.New("image not found")
	ErrStorage       = errors.New("file storage failed")
	ErrInference     = errors.New("inference service call failed")
	ErrPersistence   = errors.New("saving image failed")
)

// UploadStage names the steps of an upload, in order.
type UploadStage string

const (
	StageReceived  UploadStage = "received"
	StageValidated UploadStage = "validated"
	StageStored    UploadStage = "stored"
	StageInferred  UploadStage = "inferred"
	StagePersisted UploadStage = "persisted"
)

// UploadError reports the stage an upload could not reach. Raw carries the
// model output when the failure happened while reading it.
type UploadError struct {
	Failed UploadStage
	Err    error
	Raw    string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed before %s: %v", e.Failed, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

type Inferrer interface {
	DescribeImage(ctx context.Context, image []byte) (string, error)
}

type FileStore interface {
	Save(name string, r io.Reader) (string, error)
	Read(name string) ([]byte, error)
	Remove(name string) error
}

type GalleryCache interface {
	GetImages(ctx context.Context) ([]model.Image, bool, error)
	SetImages(ctx context.Context, images []model.Image) error
	Invalidate(ctx context.Context) error
}

type ImageService struct {
	imageRepo    *repository.ImageRepository
	validator    *upload.Validator
	store        FileStore
	inferrer     Inferrer
	galleryCache GalleryCache
	metrics      *metrics.Metrics
}

func NewImageService(
	imageRepo *repository.ImageRepository,
	validator *upload.Validator,
	store FileStore,
	inferrer Inferrer,
	galleryCache GalleryCache,
	m *metrics.Metrics,
) *ImageService {
	return &ImageService{
		imageRepo:    imageRepo,
		validator:    validator,
		store:        store,
		inferrer:     inferrer,
		galleryCache: galleryCache,
		metrics:      m,
	}
}

// Upload validates and stores the file, asks the model for a character and
// saves the record. Nothing is written to the database unless the model's
// reply was parsed. A file stored before a later failure stays on disk.
// fallbackName is used when the model returns no name.
func (s *ImageService) Upload(ctx context.Context, header *multipart.FileHeader, fallbackName string) (*model.Image, error) {
	filename, err := s.validator.Validate(header)
	if err != nil {
		return nil, s.fail(StageValidated, err, "")
	}

	src, err := header.Open()
	if err != nil {
		return nil, s.fail(StageStored, fmt.Errorf("%w: open upload: %w", ErrStorage, err), "")
	}
	path, err := s.store.Save(filename, src)
	_ = src.Close()
	if err != nil {
		return nil, s.fail(StageStored, fmt.Errorf("%w: %w", ErrStorage, err), "")
	}
	log.WithFields(log.Fields{"filename": filename, "path": path}).Info("upload stored")

	data, err := s.store.Read(filename)
	if err != nil {
		return nil, s.fail(StageStored, fmt.Errorf("%w: %w", ErrStorage, err), "")
	}

	started := time.Now()
	raw, err := s.inferrer.DescribeImage(ctx, data)
	s.metrics.InferenceObserved(started, err)
	if err != nil {
		return nil, s.fail(StageInferred, fmt.Errorf("%w: %w", ErrInference, err), "")
	}

	character, content, err := ai.ExtractCharacter(raw)
	if err != nil {
		debug := content
		if debug == "" {
			debug = raw
		}
		return nil, s.fail(StageInferred, err, debug)
	}

	name := strings.TrimSpace(character.Name)
	if name == "" {
		name = strings.TrimSpace(fallbackName)
	}

	image := &model.Image{
		Filename: filename,
		Name:     name,
		Bio:      character.Bio,
	}
	if err := s.imageRepo.Create(ctx, image); err != nil {
		return nil, s.fail(StagePersisted, fmt.Errorf("%w: %w", ErrPersistence, err), "")
	}

	s.invalidateGallery(ctx)
	s.metrics.UploadFinished(string(StagePersisted))
	log.WithFields(log.Fields{"id": image.ID, "filename": filename, "name": image.Name}).Info("character saved")
	return image, nil
}

// ListImages reads through the gallery cache. A listing read just before a
// concurrent write can be cached after that write's invalidation; the cache
// TTL bounds how long it stays stale.
func (s *ImageService) ListImages(ctx context.Context) ([]model.Image, error) {
	if s.galleryCache != nil {
		cached, hit, err := s.galleryCache.GetImages(ctx)
		if err != nil {
			log.WithError(err).Warn("gallery cache read failed")
		} else if hit {
			return cached, nil
		}
	}

	images, err := s.imageRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	if s.galleryCache != nil {
		if err := s.galleryCache.SetImages(ctx, images); err != nil {
			log.WithError(err).Warn("gallery cache write failed")
		}
	}
	return images, nil
}

func (s *ImageService) GetImage(ctx context.Context, id uint) (*model.Image, error) {
	if id == 0 {
		return nil, ErrImageNotFound
	}
	image, err := s.imageRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if image == nil {
		return nil, ErrImageNotFound
	}
	return image, nil
}

// DeleteImage removes the row and then its file inside one transaction, so a
// failed file removal keeps the row. The file is kept while other rows still
// reference the same filename; a file that is already gone is not an error.
func (s *ImageService) DeleteImage(ctx context.Context, id uint) (*model.Image, error) {
	if id == 0 {
		s.metrics.DeleteFinished("not_found")
		return nil, ErrImageNotFound
	}

	var deleted *model.Image
	err := s.imageRepo.Transaction(ctx, func(tx *repository.ImageRepository) error {
		image, err := tx.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if image == nil {
			return ErrImageNotFound
		}
		if _, err := tx.DeleteByID(ctx, id); err != nil {
			return err
		}

		others, err := tx.ListByFilename(ctx, image.Filename)
		if err != nil {
			return err
		}
		if len(others) > 0 {
			log.WithFields(log.Fields{"id": id, "filename": image.Filename, "references": len(others)}).
				Info("file still referenced, keeping it on disk")
		} else if err := s.store.Remove(image.Filename); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("%w: %w", ErrStorage, err)
			}
			log.WithFields(log.Fields{"id": id, "filename": image.Filename}).Warn("file already missing on delete")
		}

		deleted = image
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrImageNotFound) {
			s.metrics.DeleteFinished("not_found")
		} else {
			s.metrics.DeleteFinished("error")
		}
		return nil, err
	}

	s.invalidateGallery(ctx)
	s.metrics.DeleteFinished("deleted")
	log.WithFields(log.Fields{"id": id, "filename": deleted.Filename}).Info("character deleted")
	return deleted, nil
}

func (s *ImageService) fail(stage UploadStage, err error, raw string) error {
	s.metrics.UploadFinished(string(stage))
	entry := log.WithError(err).WithField("stage", stage)
	if errors.Is(err, upload.ErrNoFile) || errors.Is(err, upload.ErrEmptyFilename) ||
		errors.Is(err, upload.ErrFileTypeNotAllowed) || errors.Is(err, upload.ErrFileTooLarge) {
		entry.Info("upload rejected")
	} else {
		entry.Error("upload failed")
	}
	return &UploadError{Failed: stage, Err: err, Raw: raw}
}

func (s *ImageService) invalidateGallery(ctx context.Context) {
	if s.galleryCache == nil {
		return
	}
	if err := s.galleryCache.Invalidate(ctx); err != nil {
		log.WithError(err).Warn("gallery cache invalidation failed")
	}
}
