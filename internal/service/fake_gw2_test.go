package service

import (
	"database/sql"
	"encoding/json"
	"mastery-tracker/internal/api"
	"mastery-tracker/internal/config"
	"mastery-tracker/internal/database"
	"mastery-tracker/internal/domain"
	"mastery-tracker/internal/repository"
	"mastery-tracker/internal/storage"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeGW2 serves the subset of the achievement API the tracker calls.
type fakeGW2 struct {
	mu            sync.Mutex
	achievements  []domain.Achievement
	categories    []domain.Category
	groups        []domain.Group
	progress      []domain.AccountAchievement
	tokenStatus   int
	accountStatus int
	catalogStatus int
	requests      map[string]int
}

func newFakeGW2() *fakeGW2 {
	return &fakeGW2{
		tokenStatus:   http.StatusOK,
		accountStatus: http.StatusOK,
		catalogStatus: http.StatusOK,
		requests:      make(map[string]int),
	}
}

func (f *fakeGW2) set(apply func(f *fakeGW2)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	apply(f)
}

func (f *fakeGW2) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[path]
}

func (f *fakeGW2) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests[r.URL.Path]++

	w.Header().Set("X-Rate-Limit-Limit", "300")
	w.Header().Set("X-Rate-Limit-Remaining", "287")

	ids := parseIDs(r.URL.Query().Get("ids"))
	switch r.URL.Path {
	case "/tokeninfo":
		if f.tokenStatus != http.StatusOK {
			w.WriteHeader(f.tokenStatus)
			return
		}
		writeFake(w, api.TokenInfo{ID: "token", Name: "test key", Permissions: []string{"account", "progression"}})
	case "/account/achievements":
		if f.accountStatus != http.StatusOK {
			w.WriteHeader(f.accountStatus)
			return
		}
		writeFake(w, f.progress)
	case "/achievements":
		if f.catalogStatus != http.StatusOK {
			w.WriteHeader(f.catalogStatus)
			return
		}
		if ids == nil {
			all := make([]int, len(f.achievements))
			for i, a := range f.achievements {
				all[i] = a.ID
			}
			writeFake(w, all)
			return
		}
		out := []domain.Achievement{}
		for _, a := range f.achievements {
			if ids[a.ID] {
				out = append(out, a)
			}
		}
		writeFake(w, out)
	case "/achievements/categories":
		if ids == nil {
			all := make([]int, len(f.categories))
			for i, c := range f.categories {
				all[i] = c.ID
			}
			writeFake(w, all)
			return
		}
		out := []domain.Category{}
		for _, c := range f.categories {
			if ids[c.ID] {
				out = append(out, c)
			}
		}
		writeFake(w, out)
	case "/achievements/groups":
		writeFake(w, f.groups)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func parseIDs(raw string) map[int]bool {
	if raw == "" || raw == "all" {
		return nil
	}
	out := make(map[int]bool)
	for _, part := range strings.Split(raw, ",") {
		if id, err := strconv.Atoi(part); err == nil {
			out[id] = true
		}
	}
	return out
}

func writeFake(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func masteryRecord(id int, region domain.Region) domain.Achievement {
	return domain.Achievement{
		ID:      id,
		Name:    "Mastery " + strconv.Itoa(id),
		Rewards: []domain.Reward{{Type: domain.RewardTypeMastery, ID: 1, Region: region}},
	}
}

// seedFake fills f with a small Tyria and Maguuma catalog.
func seedFake(f *fakeGW2) {
	f.achievements = []domain.Achievement{
		masteryRecord(1, domain.RegionTyria),
		masteryRecord(2, domain.RegionTyria),
		{ID: 3, Name: "Dungeon Runner"},
		masteryRecord(4, domain.RegionMaguuma),
		{ID: 5, Name: "Daily"},
	}
	f.categories = []domain.Category{
		{ID: 10, Name: "Central Tyria", Order: 1, Achievements: []int{1, 2}},
		{ID: 11, Name: "Heart of Thorns", Order: 2, Achievements: []int{4}},
	}
	f.groups = []domain.Group{{ID: "story", Name: "Story", Order: 1, Categories: []int{10, 11}}}
	f.progress = []domain.AccountAchievement{
		{ID: 1, Done: true},
		{ID: 4, Done: false, Bits: []int{0}},
	}
}

type testEnv struct {
	fake    *fakeGW2
	server  *httptest.Server
	db      *sql.DB
	cfg     *config.Config
	storage *storage.Adapter
	catalog *CatalogService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fake := newFakeGW2()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	return newTestEnvAt(t, fake, srv, filepath.Join(t.TempDir(), "service.db"))
}

func newTestEnvAt(t *testing.T, fake *fakeGW2, srv *httptest.Server, dbPath string) *testEnv {
	t.Helper()
	log := zerolog.Nop()

	db, err := database.Open(dbPath, log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		APIBaseURL:       srv.URL,
		BatchSize:        2,
		BatchConcurrency: 4,
	}
	adapter := storage.NewAdapter(
		repository.NewSettingsRepository(db, log),
		repository.NewAchievementCacheRepository(db, log),
		repository.NewHiddenRepository(db, log),
		repository.NewIndexBuildRepository(db, log),
		log,
	).WithDefaults(nil)

	return &testEnv{
		fake:    fake,
		server:  srv,
		db:      db,
		cfg:     cfg,
		storage: adapter,
		catalog: NewCatalogService(api.NewGW2Client(cfg), adapter, cfg, log),
	}
}
