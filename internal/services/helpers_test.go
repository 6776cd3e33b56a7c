package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/longtails/freemasons/internal/clients/inspect"
	"github.com/longtails/freemasons/internal/clients/moralis"
	"github.com/longtails/freemasons/internal/clients/twitter"
	"github.com/longtails/freemasons/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type fakeChain struct {
	mu     sync.Mutex
	result *moralis.OwnerResult
	err    error
	calls  [][2]string
}

func (f *fakeChain) GetOwner(ctx context.Context, contractAddress, tokenID string) (*moralis.OwnerResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, [2]string{contractAddress, tokenID})
	if f.err != nil {
		return nil, f.err
	}
	if f.result == nil {
		return &moralis.OwnerResult{Status: 200}, nil
	}
	return f.result, nil
}

type fakeListing struct {
	listing *inspect.MemberListing
	err     error
	calls   int
}

func (f *fakeListing) ListMembers(ctx context.Context, contractAddress string) (*inspect.MemberListing, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.listing, nil
}

type fakeTwitter struct {
	mu        sync.Mutex
	followers map[string][]twitter.Profile
	following map[string][]twitter.Profile
	ids       map[string]string
	err       error
	lookups   [][]string
}

func newFakeTwitter() *fakeTwitter {
	return &fakeTwitter{
		followers: map[string][]twitter.Profile{},
		following: map[string][]twitter.Profile{},
		ids:       map[string]string{},
	}
}

func (f *fakeTwitter) GetFollowers(ctx context.Context, userID string) ([]twitter.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.followers[userID], nil
}

func (f *fakeTwitter) GetFollowing(ctx context.Context, userID string) ([]twitter.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.following[userID], nil
}

func (f *fakeTwitter) GetUsernameIDs(ctx context.Context, usernames []string) ([]twitter.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups = append(f.lookups, append([]string(nil), usernames...))
	out := make([]twitter.Profile, len(usernames))
	for i, name := range usernames {
		id, ok := f.ids[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", twitter.ErrUnknownUsername, name)
		}
		out[i] = twitter.Profile{ID: id, Username: name}
	}
	return out, nil
}

func profiles(usernames ...string) []twitter.Profile {
	out := make([]twitter.Profile, 0, len(usernames))
	for _, u := range usernames {
		out = append(out, twitter.Profile{ID: "id-" + u, Name: strings.ToUpper(u), Username: u})
	}
	return out
}

func createMember(t *testing.T, db *gorm.DB, identifier, username, token string) *models.Member {
	t.Helper()
	tu := models.TwitterUser{TwitterIdentifier: identifier, Username: username, Token: token}
	if err := db.Create(&tu).Error; err != nil {
		t.Fatalf("create twitter user: %v", err)
	}
	m := models.Member{TwitterUserID: tu.ID}
	if err := db.Create(&m).Error; err != nil {
		t.Fatalf("create member: %v", err)
	}
	m.Twitter = &tu
	return &m
}

func usernamesOf(users []models.TwitterUser) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.Username)
	}
	return out
}
