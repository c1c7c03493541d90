package services

import (
	"context"
	"errors"
	"sync"

	"casas_scrooper/models"
	"casas_scrooper/storage"
)

type fakeStore struct {
	mu        sync.Mutex
	listings  map[string]*models.Listing
	order     []string
	cities    map[string]string
	matches   []*models.PropertyMatch
	canonical map[string][]*models.Listing
	pruned    []string
	upsertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		listings:  make(map[string]*models.Listing),
		cities:    make(map[string]string),
		canonical: make(map[string][]*models.Listing),
	}
}

func (f *fakeStore) UpsertListing(_ context.Context, l *models.Listing, normalizedCity string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return false, f.upsertErr
	}
	key := l.Source + ":" + l.ExternalID
	_, exists := f.listings[key]
	if !exists {
		f.order = append(f.order, key)
	}
	stored := *l
	f.listings[key] = &stored
	f.cities[key] = normalizedCity
	return !exists, nil
}

func (f *fakeStore) ListCandidates(_ context.Context, normalizedCity, excludeSource string, limit int) ([]*models.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Listing
	for _, key := range f.order {
		l := f.listings[key]
		if f.cities[key] != normalizedCity || l.Source == excludeSource {
			continue
		}
		out = append(out, l)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) InsertPropertyMatch(_ context.Context, pm *models.PropertyMatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matches = append(f.matches, pm)
	return nil
}

func (f *fakeStore) ListListings(_ context.Context, filter storage.ListingFilter) ([]*models.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Listing
	for _, key := range f.order {
		l := f.listings[key]
		if filter.Source != "" && l.Source != filter.Source {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeStore) UpsertCanonicalListings(_ context.Context, runID string, listings []*models.Listing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canonical[runID] = listings
	return nil
}

func (f *fakeStore) PruneCanonicalListings(_ context.Context, runID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruned = append(f.pruned, runID)
	return 0, nil
}

type fakeRuns struct {
	mu       sync.Mutex
	created  []*models.DedupRun
	finished []models.DedupRun
	logs     []models.RunLog
}

func (f *fakeRuns) CreateDedupRun(run *models.DedupRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, run)
	return nil
}

func (f *fakeRuns) FinishDedupRun(run *models.DedupRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, *run)
	return nil
}

func (f *fakeRuns) Log(runID string, level models.LogLevel, message, scope string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, models.RunLog{RunID: runID, Level: level, Message: message, Scope: scope})
	return nil
}

func (f *fakeRuns) levels() []models.LogLevel {
	var out []models.LogLevel
	for _, l := range f.logs {
		out = append(out, l.Level)
	}
	return out
}

type fakeExporter struct {
	exports []*storage.CanonicalExport
	err     error
}

func (f *fakeExporter) ExportCanonical(_ context.Context, export *storage.CanonicalExport) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.exports = append(f.exports, export)
	return "https://exports.example/" + export.RunID + ".json", nil
}

var errBoom = errors.New("boom")

func intPtr(v int) *int { return &v }

func testListing(source, id string) *models.Listing {
	area := 150.0
	return &models.Listing{
		Source:          source,
		ExternalID:      id,
		URL:             "https://" + source + ".com.do/inmueble/" + id,
		Title:           "Apartamento en venta Piantini torre moderna",
		City:            "Santo Domingo",
		Zone:            "Piantini",
		Price:           10_000_000,
		Currency:        models.CurrencyDOP,
		Area:            &area,
		Bedrooms:        intPtr(3),
		Bathrooms:       intPtr(2),
		PropertyType:    "apartment",
		TransactionType: models.TransactionSale,
	}
}
