package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/yueliao11/Donate-On-Flow/internal/domain"
)

var (
	ErrTooLarge         = fmt.Errorf("%w: image too large", domain.ErrInvalidInput)
	ErrUnsupportedImage = fmt.Errorf("%w: unsupported image type", domain.ErrInvalidInput)
)

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Images stores project images after checking their size and sniffed type.
type Images struct {
	store    Store
	maxBytes int64
	now      func() time.Time
}

func NewImages(store Store, maxBytes int64) *Images {
	if maxBytes <= 0 {
		maxBytes = 5 << 20
	}
	return &Images{store: store, maxBytes: maxBytes, now: time.Now}
}

func (i *Images) MaxBytes() int64 { return i.maxBytes }

// Upload reads at most MaxBytes from r and stores it under
// projects/<yyyy>/<mm>/<uuid><ext>.
func (i *Images) Upload(ctx context.Context, r io.Reader) (*Object, error) {
	if i == nil || i.store == nil {
		return nil, errors.New("storage: no image store configured")
	}
	data, err := io.ReadAll(io.LimitReader(r, i.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("storage: read upload: %w", err)
	}
	if int64(len(data)) > i.maxBytes {
		return nil, ErrTooLarge
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", domain.ErrInvalidInput)
	}
	contentType := http.DetectContentType(data)
	ext, ok := imageExtensions[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedImage, contentType)
	}
	key := fmt.Sprintf("projects/%s/%s%s", i.now().UTC().Format("2006/01"), uuid.NewString(), ext)
	return i.store.Put(ctx, key, contentType, data)
}
