package model

// UserRole role of an account inside a classroom
type UserRole string

const (
	RoleTutor   UserRole = "TUTOR"
	RoleStudent UserRole = "STUDENT"
)

func (r UserRole) String() string {
	return string(r)
}

// CanDraw reports whether the role is allowed to edit whiteboards.
// Everyone may view; only tutors draw.
func (r UserRole) CanDraw() bool {
	return r == RoleTutor
}
