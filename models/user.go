package models

import (
	"encoding/json"
	"time"
)

// AgeRange 期望的年龄区间
type AgeRange struct {
	Min *int `json:"min,omitempty"`
	Max *int `json:"max,omitempty"`
}

// Preferences 匹配偏好
type Preferences struct {
	Gender   string   `gorm:"type:varchar(32)" json:"gender,omitempty"`
	AgeRange AgeRange `gorm:"embedded;embeddedPrefix:age_" json:"ageRange"`
}

// User 用户模型
type User struct {
	ID                string      `gorm:"primaryKey;type:varchar(36)" json:"_id"`
	Username          string      `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	Firstname         string      `gorm:"type:varchar(64)" json:"firstname"`
	Lastname          string      `gorm:"type:varchar(64)" json:"lastname"`
	Email             string      `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Password          string      `gorm:"not null" json:"-"`
	Age               *int        `json:"age,omitempty"`
	Height            *int        `json:"height,omitempty"`
	Bio               string      `json:"bio,omitempty"`
	Gender            string      `gorm:"type:varchar(32)" json:"gender,omitempty"`
	Pronouns          string      `gorm:"type:varchar(32)" json:"pronouns,omitempty"`
	Preferences       Preferences `gorm:"embedded;embeddedPrefix:pref_" json:"preferences"`
	Location          string      `json:"location,omitempty"`
	ProfilePicture    string      `json:"profilePicture,omitempty"`
	IsVerified        bool        `gorm:"default:false" json:"isVerified"`
	VerificationToken string      `gorm:"type:varchar(64);index" json:"-"`
	CreatedAt         time.Time   `json:"createdAt"`
	UpdatedAt         time.Time   `json:"updatedAt"`

	// 好友关系为双向：A 与 B 成为好友时写入两条记录
	Friends []*User `gorm:"many2many:user_friends;joinForeignKey:UserID;joinReferences:FriendID" json:"friends"`
	// 收到的好友请求：user_id 为接收者，requester_id 为发送者
	FriendRequests []*User `gorm:"many2many:friend_requests;joinForeignKey:UserID;joinReferences:RequesterID" json:"friendRequests"`
}

// MarshalJSON 好友和好友请求始终输出数组，前端不处理 null
func (u User) MarshalJSON() ([]byte, error) {
	type plain User
	p := plain(u)
	if p.Friends == nil {
		p.Friends = []*User{}
	}
	if p.FriendRequests == nil {
		p.FriendRequests = []*User{}
	}
	return json.Marshal(p)
}

// PublicUser 对外展示的精简用户信息
type PublicUser struct {
	ID        string `json:"_id"`
	Username  string `json:"username"`
	Firstname string `json:"firstname"`
	Lastname  string `json:"lastname"`
}

// Public 去掉敏感字段
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Username:  u.Username,
		Firstname: u.Firstname,
		Lastname:  u.Lastname,
	}
}

// Profile 个人主页展示的资料，不含邮箱和验证信息
type Profile struct {
	PublicUser
	Age            *int        `json:"age,omitempty"`
	Height         *int        `json:"height,omitempty"`
	Bio            string      `json:"bio,omitempty"`
	Gender         string      `json:"gender,omitempty"`
	Pronouns       string      `json:"pronouns,omitempty"`
	Preferences    Preferences `json:"preferences"`
	Location       string      `json:"location,omitempty"`
	ProfilePicture string      `json:"profilePicture,omitempty"`
	CreatedAt      time.Time   `json:"createdAt"`
}

func (u *User) Profile() Profile {
	return Profile{
		PublicUser:     u.Public(),
		Age:            u.Age,
		Height:         u.Height,
		Bio:            u.Bio,
		Gender:         u.Gender,
		Pronouns:       u.Pronouns,
		Preferences:    u.Preferences,
		Location:       u.Location,
		ProfilePicture: u.ProfilePicture,
		CreatedAt:      u.CreatedAt,
	}
}
