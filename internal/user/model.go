package user

// Identity is an authenticated user as seen by the rest of the system.
type Identity struct {
	UserID   string `json:"id"`
	Username string `json:"username"`
}

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Password string `json:"-"`
}

func (u *User) Identity() Identity {
	return Identity{UserID: u.ID, Username: u.Username}
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	ID          string `json:"id"`
	Username    string `json:"username"`
}
