package profile

// RoleDoctor is the role value searched by /doctors/search.
const RoleDoctor = "doctor"

// Profile maps to a row of the profiles table.
type Profile struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
	Role string `db:"role" json:"role"`
}

// UserProfile is the /me response: the caller's profile plus the email
// taken from their token.
type UserProfile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	Email string `json:"email"`
}

func NewUserProfile(p *Profile, email string) *UserProfile {
	return &UserProfile{
		ID:    p.ID,
		Name:  p.Name,
		Role:  p.Role,
		Email: email,
	}
}
