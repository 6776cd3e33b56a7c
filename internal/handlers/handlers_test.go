package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/longtails/freemasons/internal/clients/inspect"
	"github.com/longtails/freemasons/internal/clients/moralis"
	"github.com/longtails/freemasons/internal/clients/twitter"
	"github.com/longtails/freemasons/internal/models"
	"github.com/longtails/freemasons/internal/services"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubChain struct{}

func (stubChain) GetOwner(ctx context.Context, contractAddress, tokenID string) (*moralis.OwnerResult, error) {
	return &moralis.OwnerResult{Status: http.StatusOK, Owner: "0xowner-" + tokenID, Found: true}, nil
}

type stubListing struct {
	listing *inspect.MemberListing
}

func (s *stubListing) ListMembers(ctx context.Context, contractAddress string) (*inspect.MemberListing, error) {
	return s.listing, nil
}

type stubTwitter struct {
	followers map[string][]twitter.Profile
}

func (s *stubTwitter) GetFollowers(ctx context.Context, userID string) ([]twitter.Profile, error) {
	return s.followers[userID], nil
}

func (s *stubTwitter) GetFollowing(ctx context.Context, userID string) ([]twitter.Profile, error) {
	return nil, nil
}

func (s *stubTwitter) GetUsernameIDs(ctx context.Context, usernames []string) ([]twitter.Profile, error) {
	out := make([]twitter.Profile, len(usernames))
	for i, u := range usernames {
		out[i] = twitter.Profile{ID: "id-" + u, Username: u}
	}
	return out, nil
}

type recordingQueue struct {
	mu    sync.Mutex
	tasks []services.SyncTask
}

func (q *recordingQueue) Enqueue(task *services.SyncTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, *task)
	return nil
}

func (q *recordingQueue) IsAsync() bool { return false }
func (q *recordingQueue) Close() error  { return nil }

type testEnv struct {
	db      *gorm.DB
	router  *gin.Engine
	queue   *recordingQueue
	listing *stubListing
	locker  *services.SyncLocker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:h_%s?mode=memory&cache=shared", name)),
		&gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		t.Fatal(err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := models.Migrate(db); err != nil {
		t.Fatal(err)
	}
	services.InitSyncLogger(db)
	t.Cleanup(func() { services.InitSyncLogger(nil) })

	listing := &stubListing{listing: &inspect.MemberListing{Status: http.StatusOK}}
	tw := &stubTwitter{followers: map[string][]twitter.Profile{
		"id-alice": {{ID: "f1", Username: "whale"}, {ID: "f2", Username: "shrimp"}},
		"id-bob":   {{ID: "f1", Username: "whale"}},
	}}
	locker := services.NewSyncLocker(db, time.Minute)
	runner := services.NewSyncRunner(db,
		services.NewProjectSync(db, listing, tw, 0),
		services.NewMemberSync(db, stubChain{}, tw),
		locker,
	)
	queue := &recordingQueue{}

	r := gin.New()
	ph := NewProjectHandler(db, runner, queue)
	mh := NewMemberHandler(db, runner)
	lh := NewSyncLogHandler(db)
	hh := NewHealthHandler(db, queue)
	r.GET("/health", hh.CheckHealth)
	r.GET("/api/projects", ph.List)
	r.POST("/api/projects", ph.Create)
	r.GET("/api/projects/:id", ph.GetByID)
	r.POST("/api/projects/:id/sync", ph.Sync)
	r.GET("/api/projects/:id/summary", ph.Summary)
	r.GET("/api/members", mh.List)
	r.GET("/api/members/:id", mh.GetByID)
	r.POST("/api/members/:id/sync", mh.Sync)
	r.GET("/api/sync-logs", lh.List)
	r.GET("/api/sync-logs/modules", lh.GetModules)

	return &testEnv{db: db, router: r, queue: queue, listing: listing, locker: locker}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("decode data: %v", err)
		}
	}
	return env
}

func TestProjectCreate_EnqueuesFirstSync(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, "POST", "/api/projects", gin.H{"contract_address": "0xabc", "name": "Apes"})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var p models.Project
	decode(t, w, &p)
	if p.ID == 0 || p.ContractAddress != "0xabc" {
		t.Errorf("project = %+v", p)
	}

	if len(e.queue.tasks) != 1 {
		t.Fatalf("queued tasks = %d, expected 1", len(e.queue.tasks))
	}
	task := e.queue.tasks[0]
	if task.Kind != services.SyncKindProject || task.EntityID != p.ID || task.Reason != "created" {
		t.Errorf("task = %+v", task)
	}

	if w := e.do(t, "POST", "/api/projects", gin.H{"contract_address": "0xabc"}); w.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d, expected 409", w.Code)
	}
	if w := e.do(t, "POST", "/api/projects", gin.H{"name": "nameless"}); w.Code != http.StatusBadRequest {
		t.Errorf("missing contract status = %d, expected 400", w.Code)
	}
	if len(e.queue.tasks) != 1 {
		t.Errorf("rejected creates must not enqueue, got %d tasks", len(e.queue.tasks))
	}
}

func TestProjectSync_RosterAndSummary(t *testing.T) {
	e := newTestEnv(t)
	e.listing.listing = &inspect.MemberListing{Status: http.StatusOK, Members: []inspect.Member{
		{ID: "i-bob", Username: "bob", Name: "Bob", Token: "eth:0xabc:2"},
		{ID: "i-alice", Username: "alice", Name: "Alice", Token: "eth:0xabc:1"},
	}}

	var p models.Project
	decode(t, e.do(t, "POST", "/api/projects", gin.H{"contract_address": "0xabc"}), &p)

	w := e.do(t, "POST", fmt.Sprintf("/api/projects/%d/sync", p.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("sync status = %d, body %s", w.Code, w.Body.String())
	}
	var res services.SyncResult
	decode(t, w, &res)
	if res.Status != http.StatusOK {
		t.Errorf("sync result = %d", res.Status)
	}

	var withRoster models.Project
	decode(t, e.do(t, "GET", fmt.Sprintf("/api/projects/%d", p.ID), nil), &withRoster)
	if len(withRoster.Members) != 2 {
		t.Fatalf("roster size = %d, expected 2", len(withRoster.Members))
	}
	if withRoster.Members[0].Twitter == nil || withRoster.Members[0].Twitter.Username != "bob" {
		t.Errorf("roster must follow listing order, first = %+v", withRoster.Members[0])
	}

	for _, m := range withRoster.Members {
		if w := e.do(t, "POST", fmt.Sprintf("/api/members/%d/sync", m.ID), nil); w.Code != http.StatusOK {
			t.Fatalf("member sync status = %d, body %s", w.Code, w.Body.String())
		}
	}

	var summary struct {
		Relation string                  `json:"relation"`
		Items    []services.OverlapEntry `json:"items"`
	}
	w = e.do(t, "GET", fmt.Sprintf("/api/projects/%d/summary", p.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("summary status = %d", w.Code)
	}
	decode(t, w, &summary)
	if summary.Relation != "followers" {
		t.Errorf("relation = %q", summary.Relation)
	}
	expected := []services.OverlapEntry{{Username: "whale", OverlapCount: 2}, {Username: "shrimp", OverlapCount: 1}}
	if len(summary.Items) != len(expected) {
		t.Fatalf("summary = %+v, expected %+v", summary.Items, expected)
	}
	for i := range expected {
		if summary.Items[i] != expected[i] {
			t.Errorf("summary[%d] = %+v, expected %+v", i, summary.Items[i], expected[i])
		}
	}

	decode(t, e.do(t, "GET", fmt.Sprintf("/api/projects/%d/summary?relation=following", p.ID), nil), &summary)
	if summary.Relation != "following" || len(summary.Items) != 0 {
		t.Errorf("following summary = %+v", summary)
	}
	if w := e.do(t, "GET", fmt.Sprintf("/api/projects/%d/summary?relation=likes", p.ID), nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad relation status = %d, expected 400", w.Code)
	}
}

func TestProjectSync_ListingFailure(t *testing.T) {
	e := newTestEnv(t)
	e.listing.listing = &inspect.MemberListing{Status: http.StatusServiceUnavailable}

	var p models.Project
	decode(t, e.do(t, "POST", "/api/projects", gin.H{"contract_address": "0xdef"}), &p)

	w := e.do(t, "POST", fmt.Sprintf("/api/projects/%d/sync", p.ID), nil)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, expected 502", w.Code)
	}
	if env := decode(t, w, nil); env.Code != http.StatusBadGateway || !strings.Contains(env.Message, "status 500") {
		t.Errorf("envelope = %+v, expected code 502 naming sync status 500", env)
	}

	var stored models.Project
	e.db.First(&stored, p.ID)
	if stored.LastSyncAt != nil {
		t.Error("failed sync must not stamp last_sync_at")
	}
}

func TestProjectSync_Errors(t *testing.T) {
	e := newTestEnv(t)

	if w := e.do(t, "POST", "/api/projects/99/sync", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown project status = %d, expected 404", w.Code)
	}
	if w := e.do(t, "POST", "/api/projects/abc/sync", nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, expected 400", w.Code)
	}

	var p models.Project
	decode(t, e.do(t, "POST", "/api/projects", gin.H{"contract_address": "0x123"}), &p)
	held, err := e.locker.Acquire(context.Background(), services.SyncKindProject, p.ID)
	if err != nil || held == nil {
		t.Fatalf("acquire = %v, %v", held, err)
	}
	if w := e.do(t, "POST", fmt.Sprintf("/api/projects/%d/sync", p.ID), nil); w.Code != http.StatusConflict {
		t.Errorf("leased project status = %d, expected 409", w.Code)
	}
}

func TestProjectListAndGet(t *testing.T) {
	e := newTestEnv(t)
	e.do(t, "POST", "/api/projects", gin.H{"contract_address": "0x1", "name": "One"})
	e.do(t, "POST", "/api/projects", gin.H{"contract_address": "0x2", "name": "Two"})

	var list services.ProjectListResponse
	decode(t, e.do(t, "GET", "/api/projects?name=Tw", nil), &list)
	if list.Total != 1 || len(list.Items) != 1 || list.Items[0].Name != "Two" {
		t.Errorf("list = %+v", list)
	}

	if w := e.do(t, "GET", "/api/projects/42", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing project status = %d, expected 404", w.Code)
	}
	if w := e.do(t, "GET", "/api/projects/42/summary", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing project summary status = %d, expected 404", w.Code)
	}
}

func TestMemberHandlers(t *testing.T) {
	e := newTestEnv(t)

	tu := models.TwitterUser{TwitterIdentifier: "id-alice", Username: "alice", Token: "eth:0xabc:7"}
	e.db.Create(&tu)
	m := models.Member{TwitterUserID: tu.ID}
	e.db.Create(&m)

	var detail services.MemberDetail
	decode(t, e.do(t, "GET", fmt.Sprintf("/api/members/%d", m.ID), nil), &detail)
	if !detail.NeedsSync || detail.FollowerCount != 0 {
		t.Errorf("detail before sync = %+v", detail)
	}

	if w := e.do(t, "POST", fmt.Sprintf("/api/members/%d/sync", m.ID), nil); w.Code != http.StatusOK {
		t.Fatalf("sync status = %d, body %s", w.Code, w.Body.String())
	}

	decode(t, e.do(t, "GET", fmt.Sprintf("/api/members/%d", m.ID), nil), &detail)
	if detail.NeedsSync || detail.FollowerCount != 2 || detail.WalletAddress != "0xowner-7" {
		t.Errorf("detail after sync = %+v", detail)
	}

	var list services.MemberListResponse
	decode(t, e.do(t, "GET", "/api/members?stale=true", nil), &list)
	for _, item := range list.Items {
		if item.ID == m.ID {
			t.Error("synced member listed as stale")
		}
	}

	if w := e.do(t, "GET", "/api/members/77", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing member status = %d, expected 404", w.Code)
	}
	if w := e.do(t, "POST", "/api/members/77/sync", nil); w.Code != http.StatusNotFound {
		t.Errorf("missing member sync status = %d, expected 404", w.Code)
	}
}

func TestSyncLogHandlers(t *testing.T) {
	e := newTestEnv(t)
	e.listing.listing = &inspect.MemberListing{Status: http.StatusOK}

	var p models.Project
	decode(t, e.do(t, "POST", "/api/projects", gin.H{"contract_address": "0xlog"}), &p)
	e.do(t, "POST", fmt.Sprintf("/api/projects/%d/sync", p.ID), nil)

	var logs services.SyncLogListResponse
	decode(t, e.do(t, "GET", "/api/sync-logs?module=project_sync", nil), &logs)
	if logs.Total != 1 || logs.Items[0].EntityID != p.ID {
		t.Errorf("logs = %+v", logs)
	}

	var modules struct {
		Modules []string `json:"modules"`
	}
	decode(t, e.do(t, "GET", "/api/sync-logs/modules", nil), &modules)
	if len(modules.Modules) != 1 || modules.Modules[0] != "project_sync" {
		t.Errorf("modules = %v", modules.Modules)
	}
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	e.do(t, "POST", "/api/projects", gin.H{"contract_address": "0xh"})

	w := e.do(t, "GET", "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body struct {
		Status     string                 `json:"status"`
		Components map[string]interface{} `json:"components"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "healthy" || body.Components["database"] != "ok" || body.Components["queue_mode"] != "sync" {
		t.Errorf("health = %+v", body)
	}
	if body.Components["never_synced_projects"] != float64(1) {
		t.Errorf("never_synced_projects = %v", body.Components["never_synced_projects"])
	}
}
