package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casas_scrooper/config"
	"casas_scrooper/models"
	"casas_scrooper/services"
)

type fakeHandler struct {
	id       string
	listings map[string][]*models.Listing
	errs     map[string]error
	regions  []string
	closed   bool
}

func (f *fakeHandler) ID() string { return f.id }

func (f *fakeHandler) Scrape(_ context.Context, region config.Region) ([]*models.Listing, error) {
	f.regions = append(f.regions, region.Slug)
	return f.listings[region.Slug], f.errs[region.Slug]
}

func (f *fakeHandler) Close() { f.closed = true }

type fakeIngester struct {
	mu   sync.Mutex
	seen map[string]bool
	fail map[string]bool
}

func (f *fakeIngester) Ingest(_ context.Context, l *models.Listing) (*services.ProcessResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[l.ExternalID] {
		return nil, errors.New("rejected")
	}
	if f.seen == nil {
		f.seen = make(map[string]bool)
	}
	key := l.Source + ":" + l.ExternalID
	isNew := !f.seen[key]
	f.seen[key] = true
	return &services.ProcessResult{IsNewListing: isNew, Matches: 1}, nil
}

type fakeRunStore struct {
	runs    []*models.ScrapeRun
	updated []models.ScrapeRun
	stats   []string
	logs    []models.RunLog
}

func (f *fakeRunStore) CreateRun(run *models.ScrapeRun) (int64, error) {
	f.runs = append(f.runs, run)
	return int64(len(f.runs)), nil
}

func (f *fakeRunStore) UpdateRun(run *models.ScrapeRun) error {
	f.updated = append(f.updated, *run)
	return nil
}

func (f *fakeRunStore) UpdateSiteStats(siteID string) error {
	f.stats = append(f.stats, siteID)
	return nil
}

func (f *fakeRunStore) Log(runID string, level models.LogLevel, message, scope string) error {
	f.logs = append(f.logs, models.RunLog{RunID: runID, Level: level, Message: message, Scope: scope})
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Sites: map[string]*config.SiteConfig{
			"supercasas": {ID: "supercasas", Name: "SuperCasas", Regions: map[string]config.Region{
				"santo-domingo": {Slug: "sd"},
				"santiago":      {Slug: "stgo"},
			}},
			"corotos": {ID: "corotos", Name: "Corotos", Regions: map[string]config.Region{
				"punta-cana": {Slug: "pc"},
			}},
		},
	}
}

func scraped(source string, ids ...string) []*models.Listing {
	out := make([]*models.Listing, 0, len(ids))
	for _, id := range ids {
		out = append(out, &models.Listing{Source: source, ExternalID: id})
	}
	return out
}

func TestOrchestrator_RunSite(t *testing.T) {
	sc := &fakeHandler{id: "supercasas", listings: map[string][]*models.Listing{
		"sd":   scraped("supercasas", "1", "2"),
		"stgo": scraped("supercasas", "3"),
	}}
	runs := &fakeRunStore{}
	o := newOrchestrator(testConfig(), runs, &fakeIngester{}, map[string]Handler{"supercasas": sc}, nil)

	require.NoError(t, o.RunSite(context.Background(), "supercasas", ""))
	assert.Equal(t, []string{"stgo", "sd"}, sc.regions)

	require.Len(t, runs.updated, 1)
	run := runs.updated[0]
	assert.Equal(t, int64(1), run.ID)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 3, run.ListingsFound)
	assert.Equal(t, 3, run.ListingsNew)
	assert.Zero(t, run.ErrorsCount)
	require.NotNil(t, run.FinishedAt)
	assert.Equal(t, []string{"supercasas"}, runs.stats)

	for _, l := range runs.logs {
		assert.Equal(t, "1", l.RunID)
		assert.Equal(t, "supercasas", l.Scope)
	}
}

func TestOrchestrator_RunSiteSingleRegion(t *testing.T) {
	sc := &fakeHandler{id: "supercasas", listings: map[string][]*models.Listing{"sd": scraped("supercasas", "1")}}
	o := newOrchestrator(testConfig(), &fakeRunStore{}, &fakeIngester{}, map[string]Handler{"supercasas": sc}, nil)

	require.NoError(t, o.RunSite(context.Background(), "supercasas", "santo-domingo"))
	assert.Equal(t, []string{"sd"}, sc.regions)

	assert.Error(t, o.RunSite(context.Background(), "supercasas", "la-romana"))
	assert.Error(t, o.RunSite(context.Background(), "encuentra24", ""))
}

func TestOrchestrator_RegionFailureKeepsPartialResults(t *testing.T) {
	boom := errors.New("status 503")
	sc := &fakeHandler{
		id: "supercasas",
		listings: map[string][]*models.Listing{
			"sd":   scraped("supercasas", "1", "2"),
			"stgo": scraped("supercasas", "3", "bad"),
		},
		errs: map[string]error{"sd": boom},
	}
	runs := &fakeRunStore{}
	ingester := &fakeIngester{fail: map[string]bool{"bad": true}}
	o := newOrchestrator(testConfig(), runs, ingester, map[string]Handler{"supercasas": sc}, nil)

	err := o.RunSite(context.Background(), "supercasas", "")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"stgo", "sd"}, sc.regions)

	run := runs.updated[0]
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Equal(t, 4, run.ListingsFound)
	assert.Equal(t, 3, run.ListingsNew)
	assert.Equal(t, 2, run.ErrorsCount)
	assert.Len(t, ingester.seen, 3)
}

func TestOrchestrator_RunAllAndPause(t *testing.T) {
	sc := &fakeHandler{id: "supercasas"}
	co := &fakeHandler{id: "corotos"}
	runs := &fakeRunStore{}
	o := newOrchestrator(testConfig(), runs, &fakeIngester{}, map[string]Handler{"supercasas": sc, "corotos": co}, nil)
	ctx := context.Background()

	require.NoError(t, o.HandleCommand(ctx, &models.Command{Command: models.CmdPause}))
	assert.True(t, o.IsPaused())
	require.NoError(t, o.RunAll(ctx))
	assert.Empty(t, runs.runs)

	require.NoError(t, o.HandleCommand(ctx, &models.Command{Command: models.CmdResume}))
	assert.False(t, o.IsPaused())
	require.NoError(t, o.HandleCommand(ctx, &models.Command{Command: models.CmdScrapeNow}))

	require.Len(t, runs.runs, 2)
	assert.Equal(t, "corotos", runs.runs[0].SiteID)
	assert.Equal(t, "supercasas", runs.runs[1].SiteID)
	assert.Equal(t, []string{"corotos", "supercasas"}, o.SiteIDs())

	o.Close()
	assert.True(t, sc.closed)
	assert.True(t, co.closed)
}

func TestOrchestrator_ScrapeSiteCommand(t *testing.T) {
	sc := &fakeHandler{id: "supercasas"}
	co := &fakeHandler{id: "corotos"}
	runs := &fakeRunStore{}
	o := newOrchestrator(testConfig(), runs, &fakeIngester{}, map[string]Handler{"supercasas": sc, "corotos": co}, nil)

	params, err := json.Marshal(models.CommandParams{Site: "corotos"})
	require.NoError(t, err)
	require.NoError(t, o.HandleCommand(context.Background(), &models.Command{Command: models.CmdScrapeSite, Params: params}))

	require.Len(t, runs.runs, 1)
	assert.Equal(t, "corotos", runs.runs[0].SiteID)
	assert.Equal(t, []string{"pc"}, co.regions)
	assert.Empty(t, sc.regions)

	require.Error(t, o.HandleCommand(context.Background(), &models.Command{Command: models.CmdScrapeSite, Params: json.RawMessage(`{`)}))
}

func TestNewOrchestrator_BuildsHandlersFromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Sites["supercasas"].Handler = "html"
	cfg.Sites["corotos"].Handler = "api"

	o := NewOrchestrator(cfg, nil, &fakeIngester{}, Deps{})
	assert.IsType(t, &HTMLHandler{}, o.handlers["supercasas"])
	assert.IsType(t, &APIHandler{}, o.handlers["corotos"])
}
