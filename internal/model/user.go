package model

// User 用户表 — 对应 users
// 账号注册与登录由外部认证服务负责，这里只保存通知所需的联系信息。
type User struct {
	UserID string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"user_id"`
	Name   string `gorm:"type:varchar(100);not null"                     json:"name"`
	Email  string `gorm:"type:varchar(255);not null"                     json:"email"`
	BaseModel
}

// TableName 指定表名
func (User) TableName() string { return "users" }

// House 家庭表 — 对应 houses
type House struct {
	HouseID string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"house_id"`
	Name    string `gorm:"type:varchar(100);not null"                     json:"name"`
	OwnerID string `gorm:"type:uuid;not null"                             json:"owner_id"` // 主要负责人，升级通知的接收方之一
	BaseModel

	// 关联
	Owner *User `gorm:"foreignKey:OwnerID;references:UserID" json:"owner,omitempty"`
}

// TableName 指定表名
func (House) TableName() string { return "houses" }

// 家庭成员角色
const (
	MemberRoleOwner  = "owner"
	MemberRoleMember = "member"
)

// HouseMember 家庭成员表 — 对应 house_members
type HouseMember struct {
	HouseID string `gorm:"type:uuid;primaryKey"                        json:"house_id"`
	UserID  string `gorm:"type:uuid;primaryKey"                        json:"user_id"`
	Role    string `gorm:"type:varchar(20);not null;default:'member'" json:"role"`
	BaseModel
}

// TableName 指定表名
func (HouseMember) TableName() string { return "house_members" }
