package domain

// SignupUser es la proyeccion de usuario devuelta por POST /auth/signup.
type SignupUser struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	EmailConfirmed bool   `json:"emailConfirmed"`
}

// SessionUser es la proyeccion de usuario devuelta por POST /auth/signin.
type SessionUser struct {
	ID       string  `json:"id"`
	Email    string  `json:"email"`
	FullName *string `json:"fullName"`
}

// Profile es la proyeccion completa devuelta por GET /auth/me.
type Profile struct {
	ID             string  `json:"id"`
	Email          string  `json:"email"`
	FullName       *string `json:"fullName"`
	CreatedAt      string  `json:"createdAt"`
	EmailConfirmed bool    `json:"emailConfirmed"`
}

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
}

type SigninRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
