package models

import "time"

// Follow is a directed edge: FollowerID follows FolloweeID. At most one row
// exists per ordered pair and a user never follows themselves.
type Follow struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	FollowerID uint      `gorm:"column:follower_id;not null;uniqueIndex:idx_follow_pair,priority:1" json:"follower_id"`
	FolloweeID uint      `gorm:"column:followee_id;not null;uniqueIndex:idx_follow_pair,priority:2;index;check:chk_follow_no_self,follower_id <> followee_id" json:"followee_id"`
	CreatedAt  time.Time `json:"created_at"`

	Follower *User `gorm:"foreignKey:FollowerID;constraint:OnDelete:CASCADE" json:"-"`
	Followee *User `gorm:"foreignKey:FolloweeID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Follow) TableName() string {
	return "follows"
}
