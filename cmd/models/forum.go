package models

import "gorm.io/gorm"

type Post struct {
	gorm.Model
	AuthorID uint      `gorm:"column:author_id;not null;index" json:"author_id"`
	Content  string    `gorm:"column:content;type:text;not null" json:"content"`
	Author   *User     `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	Comments []Comment `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"comments,omitempty"`
}

type Comment struct {
	gorm.Model
	PostID   uint   `gorm:"column:post_id;not null;index" json:"post_id"`
	AuthorID uint   `gorm:"column:author_id;not null;index" json:"author_id"`
	Content  string `gorm:"column:content;type:text;not null" json:"content"`
	Author   *User  `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
}
