package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fardannozami/healthsync/internal/app/store"
	"github.com/fardannozami/healthsync/internal/domain"
)

type ExportUsecase struct {
	store *store.Store
	now   func() time.Time
}

func NewExportUsecase(st *store.Store, now func() time.Time) *ExportUsecase {
	if now == nil {
		now = time.Now
	}
	return &ExportUsecase{store: st, now: now}
}

// Execute returns the whole local store as an indented JSON document. The
// API key never leaves the device.
func (uc *ExportUsecase) Execute(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc := uc.store.Document()
	doc.APIKey = ""
	exportedAt := uc.now().UTC()
	doc.ExportedAt = &exportedAt

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	return out, nil
}

type ImportUsecase struct {
	store *store.Store
}

func NewImportUsecase(st *store.Store) *ImportUsecase {
	return &ImportUsecase{store: st}
}

// Execute replaces the local store with an exported document. The API key
// configured on this device is kept.
func (uc *ImportUsecase) Execute(ctx context.Context, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var doc store.Document
	if err := json.Unmarshal(blob, &doc); err != nil {
		return fmt.Errorf("import: %w: %v", domain.ErrMalformedDocument, err)
	}

	apiKey := uc.store.Settings().APIKey
	uc.store.Restore(blob)
	if apiKey != "" {
		s := uc.store.Settings()
		s.APIKey = apiKey
		uc.store.SetSettings(s)
	}
	return nil
}
