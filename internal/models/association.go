package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// edgeBatchSize bounds IN lists and multi-row inserts; follower lists can run
// into the tens of thousands.
const edgeBatchSize = 500

// edgeTable describes one join table. rows builds typed join models so the
// dialect knows the table's keys when it renders the conflict clause.
type edgeTable struct {
	name         string
	ownerColumn  string
	targetColumn string
	ordered      bool
	rows         func(ownerID uint, edges []newEdge, now time.Time) interface{}
}

type newEdge struct {
	target   uint
	position int
}

var (
	followersTable = edgeTable{
		name: "member_followers", ownerColumn: "member_id", targetColumn: "twitter_user_id",
		rows: func(ownerID uint, edges []newEdge, now time.Time) interface{} {
			out := make([]MemberFollower, len(edges))
			for i, e := range edges {
				out[i] = MemberFollower{MemberID: ownerID, TwitterUserID: e.target, CreatedAt: now}
			}
			return &out
		},
	}
	followingTable = edgeTable{
		name: "member_following", ownerColumn: "member_id", targetColumn: "twitter_user_id",
		rows: func(ownerID uint, edges []newEdge, now time.Time) interface{} {
			out := make([]MemberFollowing, len(edges))
			for i, e := range edges {
				out[i] = MemberFollowing{MemberID: ownerID, TwitterUserID: e.target, CreatedAt: now}
			}
			return &out
		},
	}
	rosterTable = edgeTable{
		name: "project_members", ownerColumn: "project_id", targetColumn: "member_id", ordered: true,
		rows: func(ownerID uint, edges []newEdge, now time.Time) interface{} {
			out := make([]ProjectMember, len(edges))
			for i, e := range edges {
				out[i] = ProjectMember{ProjectID: ownerID, MemberID: e.target, Position: e.position, CreatedAt: now}
			}
			return &out
		},
	}
)

// EdgeDiff reports what a Replace call changed.
type EdgeDiff struct {
	Added   int `json:"added"`
	Removed int `json:"removed"`
	Kept    int `json:"kept"`
	Moved   int `json:"moved"`
}

// ReplaceFollowers makes the member's follower set exactly twitterUserIDs.
// Call it inside a transaction so readers never see a partial set.
func ReplaceFollowers(tx *gorm.DB, memberID uint, twitterUserIDs []uint) (EdgeDiff, error) {
	return replaceEdges(tx, followersTable, memberID, twitterUserIDs)
}

// ReplaceFollowing makes the member's following set exactly twitterUserIDs.
func ReplaceFollowing(tx *gorm.DB, memberID uint, twitterUserIDs []uint) (EdgeDiff, error) {
	return replaceEdges(tx, followingTable, memberID, twitterUserIDs)
}

// ReplaceProjectMembers makes the project roster exactly memberIDs, with
// positions taken from slice order.
func ReplaceProjectMembers(tx *gorm.DB, projectID uint, memberIDs []uint) (EdgeDiff, error) {
	return replaceEdges(tx, rosterTable, projectID, memberIDs)
}

// FollowerIDs returns the twitter user ids currently following the member.
func FollowerIDs(db *gorm.DB, memberID uint) ([]uint, error) {
	return edgeTargets(db, followersTable, memberID)
}

// FollowingIDs returns the twitter user ids the member currently follows.
func FollowingIDs(db *gorm.DB, memberID uint) ([]uint, error) {
	return edgeTargets(db, followingTable, memberID)
}

// RosterMemberIDs returns the project's member ids in listing order.
func RosterMemberIDs(db *gorm.DB, projectID uint) ([]uint, error) {
	return edgeTargets(db, rosterTable, projectID)
}

func edgeTargets(db *gorm.DB, et edgeTable, ownerID uint) ([]uint, error) {
	var ids []uint
	query := db.Table(et.name).Where(et.ownerColumn+" = ?", ownerID)
	if et.ordered {
		query = query.Order("position ASC")
	} else {
		query = query.Order(et.targetColumn + " ASC")
	}
	if err := query.Pluck(et.targetColumn, &ids).Error; err != nil {
		return nil, fmt.Errorf("load %s: %w", et.name, err)
	}
	return ids, nil
}

type edgeRow struct {
	Target   uint
	Position int
}

func replaceEdges(tx *gorm.DB, et edgeTable, ownerID uint, desired []uint) (EdgeDiff, error) {
	var diff EdgeDiff

	wanted := make(map[uint]int, len(desired))
	order := make([]uint, 0, len(desired))
	for _, id := range desired {
		if _, dup := wanted[id]; dup {
			continue
		}
		wanted[id] = len(order)
		order = append(order, id)
	}

	selectCols := et.targetColumn + " AS target"
	if et.ordered {
		selectCols += ", position"
	}
	var current []edgeRow
	if err := tx.Table(et.name).Select(selectCols).Where(et.ownerColumn+" = ?", ownerID).Scan(&current).Error; err != nil {
		return diff, fmt.Errorf("load %s: %w", et.name, err)
	}

	existing := make(map[uint]int, len(current))
	var removed []uint
	for _, row := range current {
		existing[row.Target] = row.Position
		if _, ok := wanted[row.Target]; !ok {
			removed = append(removed, row.Target)
		}
	}

	for start := 0; start < len(removed); start += edgeBatchSize {
		end := min(start+edgeBatchSize, len(removed))
		err := tx.Exec(
			"DELETE FROM "+et.name+" WHERE "+et.ownerColumn+" = ? AND "+et.targetColumn+" IN ?",
			ownerID, removed[start:end],
		).Error
		if err != nil {
			return diff, fmt.Errorf("prune %s: %w", et.name, err)
		}
	}
	diff.Removed = len(removed)

	var added []newEdge
	for pos, id := range order {
		if oldPos, ok := existing[id]; ok {
			diff.Kept++
			if et.ordered && oldPos != pos {
				err := tx.Table(et.name).
					Where(et.ownerColumn+" = ? AND "+et.targetColumn+" = ?", ownerID, id).
					Update("position", pos).Error
				if err != nil {
					return diff, fmt.Errorf("reorder %s: %w", et.name, err)
				}
				diff.Moved++
			}
			continue
		}
		added = append(added, newEdge{target: id, position: pos})
	}

	now := time.Now()
	for start := 0; start < len(added); start += edgeBatchSize {
		end := min(start+edgeBatchSize, len(added))
		if err := insertEdges(tx, et, ownerID, added[start:end], now).Error; err != nil {
			return diff, fmt.Errorf("insert %s: %w", et.name, err)
		}
	}
	diff.Added = len(added)

	return diff, nil
}

func insertEdges(tx *gorm.DB, et edgeTable, ownerID uint, edges []newEdge, now time.Time) *gorm.DB {
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(et.rows(ownerID, edges, now))
}
