package service

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"shoe-store/internal/docstore"
	"shoe-store/internal/models"
	"shoe-store/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Upload limits
const (
	DefaultMaxUploadBytes = 5 << 20
	MaxFilesPerRequest    = 15
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// UploadFile is one received file
type UploadFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// UploadResult describes a stored image
type UploadResult struct {
	ImageID  string `json:"imageId"`
	ImageURL string `json:"imageUrl"`
	FileName string `json:"fileName"`
}

// UploadService validates images, stores them in a blob store and records
// their metadata in the images collection.
type UploadService struct {
	store    docstore.Store
	blobs    BlobStore
	maxBytes int64
	now      func() time.Time
	logger   *zap.Logger
}

// NewUploadService creates a new upload service
func NewUploadService(store docstore.Store, blobs BlobStore, maxBytes int64) *UploadService {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &UploadService{
		store:    store,
		blobs:    blobs,
		maxBytes: maxBytes,
		now:      time.Now,
		logger:   util.GetLogger(),
	}
}

// ValidateImage checks the size cap and the image/* content type.
func ValidateImage(f UploadFile, maxBytes int64) error {
	if len(f.Data) == 0 {
		return invalidf("file %q is empty", f.Name)
	}
	if int64(len(f.Data)) > maxBytes {
		return invalidf("file %q exceeds %d bytes", f.Name, maxBytes)
	}
	if !strings.HasPrefix(strings.ToLower(f.ContentType), "image/") {
		return invalidf("file %q is not an image", f.Name)
	}
	return nil
}

// storageName prefixes the sanitized original name with a millisecond stamp
// and a short random tag.
func storageName(now time.Time, original string) string {
	base := unsafeNameChars.ReplaceAllString(path.Base(original), "_")
	if base == "" || base == "." || base == "_" {
		base = "image"
	}
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + uuid.NewString()[:8] + "-" + base
}

// UploadImage stores a single image
func (s *UploadService) UploadImage(ctx context.Context, f UploadFile) (*UploadResult, error) {
	ctx, span := util.StartSpan(ctx, "UploadService.UploadImage")
	defer span.End()

	backend := s.blobs.Backend()
	if err := ValidateImage(f, s.maxBytes); err != nil {
		util.UploadsTotal.WithLabelValues(backend, "rejected").Inc()
		return nil, err
	}

	fileName := storageName(s.now(), f.Name)
	url, err := s.blobs.Put(ctx, "images/"+fileName, f.ContentType, f.Data)
	if err != nil {
		util.UploadsTotal.WithLabelValues(backend, "failed").Inc()
		return nil, util.RecordError(span, fmt.Errorf("failed to store image: %w", err))
	}

	img := &models.Image{
		OriginalName: f.Name,
		MimeType:     f.ContentType,
		Size:         int64(len(f.Data)),
		Backend:      backend,
		FileName:     fileName,
		CreatedAt:    s.now(),
	}
	if backend == "local" {
		img.LocalURL = url
	} else {
		img.StorageURL = url
	}
	id, err := s.store.Add(ctx, models.CollectionImages, img)
	if err != nil {
		util.UploadsTotal.WithLabelValues(backend, "failed").Inc()
		return nil, util.RecordError(span, fmt.Errorf("failed to record image metadata: %w", err))
	}

	util.UploadsTotal.WithLabelValues(backend, "stored").Inc()
	util.UploadSizeBytes.Observe(float64(len(f.Data)))
	s.logger.Info("Image uploaded",
		zap.String("image_id", id),
		zap.String("backend", backend),
		zap.Int("size", len(f.Data)))

	return &UploadResult{ImageID: id, ImageURL: url, FileName: f.Name}, nil
}

// UploadImages validates every file before storing any, then stores them in
// parallel. Results keep the input order.
func (s *UploadService) UploadImages(ctx context.Context, files []UploadFile) ([]UploadResult, error) {
	if len(files) == 0 {
		return nil, invalidf("no files uploaded")
	}
	if len(files) > MaxFilesPerRequest {
		return nil, invalidf("at most %d files per request", MaxFilesPerRequest)
	}
	for _, f := range files {
		if err := ValidateImage(f, s.maxBytes); err != nil {
			return nil, err
		}
	}

	results := make([]UploadResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			res, err := s.UploadImage(gctx, f)
			if err != nil {
				return err
			}
			results[i] = *res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
