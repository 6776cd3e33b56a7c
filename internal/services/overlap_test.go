package services

import (
	"context"
	"reflect"
	"testing"

	"github.com/longtails/freemasons/internal/models"
	"gorm.io/gorm"
)

func seedGraph(t *testing.T, db *gorm.DB, projectID uint, roster []*models.Member, edges map[*models.Member][]string, replace func(*gorm.DB, uint, []uint) (models.EdgeDiff, error)) {
	t.Helper()
	ids := make([]uint, 0, len(roster))
	for _, m := range roster {
		ids = append(ids, m.ID)
	}
	if _, err := models.ReplaceProjectMembers(db, projectID, ids); err != nil {
		t.Fatal(err)
	}

	store := NewTwitterUserStore(db)
	for m, usernames := range edges {
		targets := make([]uint, 0, len(usernames))
		for _, u := range usernames {
			user, _, err := store.Upsert(context.Background(), "id-"+u, u, u)
			if err != nil {
				t.Fatal(err)
			}
			targets = append(targets, user.ID)
		}
		if _, err := replace(db, m.ID, targets); err != nil {
			t.Fatal(err)
		}
	}
}

func TestMemberFollowerSummary_AliceBob(t *testing.T) {
	db := newTestDB(t)
	project := createProject(t, db, "0xabc")
	m1 := createMember(t, db, "m-1", "one", "")
	m2 := createMember(t, db, "m-2", "two", "")

	seedGraph(t, db, project.ID, []*models.Member{m1, m2}, map[*models.Member][]string{
		m1: {"alice", "bob"},
		m2: {"alice"},
	}, models.ReplaceFollowers)

	got, err := NewOverlapReport(db).MemberFollowerSummary(context.Background(), project.ID, 0)
	if err != nil {
		t.Fatalf("MemberFollowerSummary() error = %v", err)
	}
	want := []OverlapEntry{{Username: "alice", OverlapCount: 2}, {Username: "bob", OverlapCount: 1}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("summary = %+v, expected %+v", got, want)
	}
}

func TestMemberFollowerSummary_CountsOnlyRoster(t *testing.T) {
	db := newTestDB(t)
	project := createProject(t, db, "0xabc")
	a := createMember(t, db, "m-a", "a", "")
	b := createMember(t, db, "m-b", "b", "")
	c := createMember(t, db, "m-c", "c", "")
	outsider := createMember(t, db, "m-z", "z", "")

	seedGraph(t, db, project.ID, []*models.Member{a, b, c}, map[*models.Member][]string{
		a:        {"x", "yan"},
		b:        {"x"},
		c:        {"wu"},
		outsider: {"x", "wu"},
	}, models.ReplaceFollowers)

	got, err := NewOverlapReport(db).MemberFollowerSummary(context.Background(), project.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := []OverlapEntry{
		{Username: "x", OverlapCount: 2},
		{Username: "wu", OverlapCount: 1},
		{Username: "yan", OverlapCount: 1},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("summary = %+v, expected %+v", got, want)
	}

	top, err := NewOverlapReport(db).MemberFollowerSummary(context.Background(), project.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(top) != 1 || top[0].Username != "x" {
		t.Errorf("limited summary = %+v", top)
	}
}

func TestMemberFollowerSummary_MergesSharedUsername(t *testing.T) {
	db := newTestDB(t)
	project := createProject(t, db, "0xabc")
	a := createMember(t, db, "m-a", "a", "")
	b := createMember(t, db, "m-b", "b", "")
	if _, err := models.ReplaceProjectMembers(db, project.ID, []uint{a.ID, b.ID}); err != nil {
		t.Fatal(err)
	}

	// two accounts that have held the same handle
	old := models.TwitterUser{TwitterIdentifier: "old", Username: "handle"}
	cur := models.TwitterUser{TwitterIdentifier: "cur", Username: "handle"}
	db.Create(&old)
	db.Create(&cur)
	models.ReplaceFollowers(db, a.ID, []uint{old.ID})
	models.ReplaceFollowers(db, b.ID, []uint{cur.ID})

	got, err := NewOverlapReport(db).MemberFollowerSummary(context.Background(), project.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Username != "handle" || got[0].OverlapCount != 2 {
		t.Errorf("summary = %+v, expected one merged row", got)
	}
}

func TestMemberFollowingSummary(t *testing.T) {
	db := newTestDB(t)
	project := createProject(t, db, "0xabc")
	a := createMember(t, db, "m-a", "a", "")
	b := createMember(t, db, "m-b", "b", "")

	seedGraph(t, db, project.ID, []*models.Member{a, b}, map[*models.Member][]string{
		a: {"alpha", "beta"},
		b: {"alpha"},
	}, models.ReplaceFollowing)
	// followers must not leak into the following view
	seedGraph(t, db, project.ID, []*models.Member{a, b}, map[*models.Member][]string{
		a: {"gamma"},
		b: {"gamma"},
	}, models.ReplaceFollowers)

	report := NewOverlapReport(db)
	got, err := report.MemberFollowingSummary(context.Background(), project.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := []OverlapEntry{{Username: "alpha", OverlapCount: 2}, {Username: "beta", OverlapCount: 1}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("following summary = %+v, expected %+v", got, want)
	}
}

func TestSummary_EmptyProject(t *testing.T) {
	db := newTestDB(t)
	project := createProject(t, db, "0xabc")

	got, err := NewOverlapReport(db).MemberFollowerSummary(context.Background(), project.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("summary = %#v, expected empty non-nil slice", got)
	}
}

func TestSyncThenSummary_EndToEnd(t *testing.T) {
	db := newTestDB(t)
	project := createProject(t, db, "0xabc")
	ctx := context.Background()

	tw := twitterWithIDs("holder1", "holder2")
	if _, err := NewProjectSync(db, &fakeListing{listing: listingOf("holder1", "holder2")}, tw, 0).Sync(ctx, project); err != nil {
		t.Fatal(err)
	}

	tw.followers["tw-holder1"] = profiles("alice", "bob")
	tw.followers["tw-holder2"] = profiles("alice")

	roster, err := NewProjectService(db).GetWithRoster(project.ID)
	if err != nil {
		t.Fatal(err)
	}
	memberSync := NewMemberSync(db, &fakeChain{}, tw)
	for i := range roster.Members {
		if _, err := memberSync.Sync(ctx, &roster.Members[i]); err != nil {
			t.Fatal(err)
		}
	}

	got, err := NewOverlapReport(db).MemberFollowerSummary(ctx, project.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := []OverlapEntry{{Username: "alice", OverlapCount: 2}, {Username: "bob", OverlapCount: 1}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("summary = %+v, expected %+v", got, want)
	}
}
