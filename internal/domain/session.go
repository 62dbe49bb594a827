package domain

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
	Verified bool   `json:"verified"`
}

func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Session is a read-only view of the authentication state. User is non-nil
// exactly when AccessToken is non-empty.
type Session struct {
	AccessToken string `json:"-"`
	User        *User  `json:"user,omitempty"`
}

func (s Session) IsAuthenticated() bool {
	return s.AccessToken != ""
}
