package users

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser    Role = "user"
	RoleReferee Role = "referee"
	RoleAdmin   Role = "admin"
)

type Status string

const (
	Pending     Status = "pending"
	Active      Status = "active"
	Deactivated Status = "deactivated"
)

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Organisation string    `json:"organisation"`
	Country      string    `json:"country"`
	Role         Role      `json:"role"`
	Status       Status    `json:"status"`
	DateJoined   time.Time `json:"date_joined"`
}

// Name is "First Last", or the email address when both are empty.
func (u User) Name() string {
	n := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if n == "" {
		return u.Email
	}
	return n
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Token is the response of POST /login.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`

	// seconds
	ExpiresIn int  `json:"expires_in"`
	User      User `json:"user"`
}

type Registration struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
	Organisation string `json:"organisation"`
	Country      string `json:"country"`
	Password     string `json:"password"`
}

type PasswordReset struct {
	Email string `json:"email"`
}
