package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleTeacher    UserRole = "TEACHER"
	RoleStudent    UserRole = "STUDENT"
)

// User is an account known to the authentication collaborator.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Viewer is the signed-in identity a session and its read state are keyed on.
type Viewer struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	Role     UserRole `json:"role"`
}

// ViewerFromUser projects a user into a viewer identity.
func ViewerFromUser(u *User) *Viewer {
	if u == nil {
		return nil
	}
	return &Viewer{ID: u.ID, Email: u.Email, FullName: u.FullName, Role: u.Role}
}

// IsAdmin reports whether the viewer may manage rosters.
func (v *Viewer) IsAdmin() bool {
	return v != nil && (v.Role == RoleAdmin || v.Role == RoleSuperAdmin)
}

// CanWrite reports whether the viewer may create, edit or delete records in the collection root.
// Announcements are open to teachers; rosters are admin-only.
func (v *Viewer) CanWrite(collectionRoot string) bool {
	if v == nil {
		return false
	}
	if v.IsAdmin() {
		return true
	}
	return collectionRoot == AnnouncementSchema.Name && v.Role == RoleTeacher
}
