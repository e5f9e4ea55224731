package models

import "time"

type Role string

const (
	RoleFree    Role = "free"
	RolePremium Role = "premium"
	RoleAdmin   Role = "admin"
)

var roleRank = map[Role]int{
	RoleFree:    1,
	RolePremium: 2,
	RoleAdmin:   3,
}

// ParseRole accepts exactly free, premium or admin.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	if !r.Valid() {
		return "", false
	}
	return r, true
}

func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r grants everything min grants.
// admin ⊇ premium ⊇ free; unknown roles grant nothing.
func (r Role) AtLeast(min Role) bool {
	have, ok := roleRank[r]
	if !ok {
		return false
	}
	return have >= roleRank[min]
}

type Profile struct {
	ID        string    `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Username  string    `gorm:"column:username" json:"username"`
	FullName  string    `gorm:"column:full_name" json:"full_name"`
	AvatarURL string    `gorm:"column:avatar_url" json:"avatar_url"` // storage key in the avatars bucket
	Role      Role      `gorm:"column:role;default:free" json:"role"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Profile) TableName() string { return "profiles" }

// EffectiveRole falls back to free for a missing profile or a role the
// schema does not know.
func (p *Profile) EffectiveRole() Role {
	if p == nil || !p.Role.Valid() {
		return RoleFree
	}
	return p.Role
}

// AuthorSummary is the slice of a profile shown next to chat messages and
// marketplace listings.
type AuthorSummary struct {
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
}
