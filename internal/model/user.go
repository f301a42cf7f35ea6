package model

import "time"

const (
	RoleMember        = "Member"
	RoleAdministrator = "Administrator"
	RoleReceptionist  = "Receptionist"
)

// User は利用者です
type User struct {
	ID           int64     `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	Email        string    `db:"email" json:"email"`
	Address      string    `db:"address" json:"address"`
	NIC          string    `db:"nic" json:"nic"`
	Mobile       string    `db:"mobile" json:"mobile"`
	Role         string    `db:"role" json:"role"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// IsStaff は貸出・返却を操作できる職員かを返します
func (u User) IsStaff() bool {
	return IsStaffRole(u.Role)
}

// IsStaffRole はロール名が職員のものかを返します
func IsStaffRole(role string) bool {
	return role == RoleAdministrator || role == RoleReceptionist
}
