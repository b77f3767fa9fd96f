package api

import (
	"context"
	"net/http"

	"github.com/jwulff/bptrack/internal/bloodpressure"
)

// OTP purposes accepted by the backend.
const (
	PurposeRegistration      = "registration"
	PurposeLogin             = "login"
	PurposePasswordReset     = "password_reset"
	PurposePhoneVerification = "phone_verification"
	PurposeEmailVerification = "email_verification"
)

// User is a backend user profile.
type User struct {
	ID              int64    `json:"id"`
	Email           string   `json:"email,omitempty"`
	PhoneNumber     string   `json:"phone_number,omitempty"`
	FullName        string   `json:"full_name"`
	Role            string   `json:"role"`
	CitizenID       string   `json:"citizen_id,omitempty"`
	MedicalLicense  string   `json:"medical_license,omitempty"`
	DateOfBirth     *Time    `json:"date_of_birth,omitempty"`
	Gender          string   `json:"gender,omitempty"`
	BloodType       string   `json:"blood_type,omitempty"`
	Height          *float64 `json:"height,omitempty"`
	Weight          *float64 `json:"weight,omitempty"`
	IsActive        bool     `json:"is_active"`
	IsEmailVerified bool     `json:"is_email_verified"`
	IsPhoneVerified bool     `json:"is_phone_verified"`
	LastLogin       *Time    `json:"last_login,omitempty"`
}

// Person returns the fields age and limits are derived from.
func (u User) Person() bloodpressure.Person {
	return bloodpressure.Person{
		FullName:    u.FullName,
		Role:        bloodpressure.Role(u.Role),
		DateOfBirth: u.DateOfBirth.Ptr(),
	}
}

// Credentials identify a user by email or phone number.
type Credentials struct {
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Password    string `json:"password"`
	RememberMe  bool   `json:"remember_me,omitempty"`
}

// Session is the result of a successful login.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	User         User   `json:"user"`
}

// Login authenticates and, on success, uses the returned token for
// subsequent calls.
func (c *Client) Login(ctx context.Context, creds Credentials) (*Session, error) {
	var s Session
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   Prefix + "/auth/login",
		body:   creds,
		data:   &s,
	})
	if err != nil {
		return nil, err
	}
	c.SetToken(s.AccessToken)
	return &s, nil
}

// Logout ends the backend session and forgets the token.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, call{method: http.MethodPost, path: Prefix + "/auth/logout"})
	c.SetToken("")
	return err
}

// Registration is a new account.
type Registration struct {
	Email          string   `json:"email,omitempty"`
	PhoneNumber    string   `json:"phone_number,omitempty"`
	Password       string   `json:"password"`
	FullName       string   `json:"full_name"`
	Role           string   `json:"role"`
	CitizenID      string   `json:"citizen_id,omitempty"`
	DateOfBirth    *Time    `json:"date_of_birth,omitempty"`
	Gender         string   `json:"gender,omitempty"`
	BloodType      string   `json:"blood_type,omitempty"`
	Height         *float64 `json:"height,omitempty"`
	Weight         *float64 `json:"weight,omitempty"`
	MedicalLicense string   `json:"medical_license,omitempty"`
}

// Registered is returned after a successful registration.
type Registered struct {
	UserID          int64  `json:"user_id"`
	Email           string `json:"email"`
	PhoneNumber     string `json:"phone_number"`
	Role            string `json:"role"`
	IsEmailVerified bool   `json:"is_email_verified"`
	IsPhoneVerified bool   `json:"is_phone_verified"`
}

// Register creates an account. The contact must have been verified with an
// OTP first.
func (c *Client) Register(ctx context.Context, reg Registration) (*Registered, error) {
	var r Registered
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   Prefix + "/auth/register",
		body:   reg,
		data:   &r,
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// OTPRequest asks the backend to send a one-time code.
type OTPRequest struct {
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Purpose     string `json:"purpose"`
}

// OTPSent describes where a code was sent.
type OTPSent struct {
	ContactMethod    string `json:"contact_method"`
	ContactTarget    string `json:"contact_target"`
	ExpiresInMinutes int    `json:"expires_in_minutes"`
}

// RequestOTP sends a one-time code by email or SMS.
func (c *Client) RequestOTP(ctx context.Context, req OTPRequest) (*OTPSent, error) {
	var sent OTPSent
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   Prefix + "/auth/request-otp",
		body:   req,
		data:   &sent,
	})
	if err != nil {
		return nil, err
	}
	return &sent, nil
}

// OTPVerification submits a received code.
type OTPVerification struct {
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	OTPCode     string `json:"otp_code"`
	Purpose     string `json:"purpose"`
}

// VerifyOTP checks a one-time code.
func (c *Client) VerifyOTP(ctx context.Context, v OTPVerification) error {
	return c.do(ctx, call{
		method: http.MethodPost,
		path:   Prefix + "/auth/verify-otp",
		body:   v,
	})
}

// VerifyContact marks the signed-in user's email or phone as verified.
func (c *Client) VerifyContact(ctx context.Context, v OTPVerification) error {
	return c.do(ctx, call{
		method: http.MethodPost,
		path:   Prefix + "/auth/verify-contact",
		body:   v,
	})
}

// ChangePassword changes the signed-in user's password.
func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	return c.do(ctx, call{
		method: http.MethodPost,
		path:   Prefix + "/auth/change-password",
		body: map[string]string{
			"current_password":     current,
			"new_password":         next,
			"confirm_new_password": next,
		},
	})
}

// PasswordReset resets a forgotten password with an OTP.
type PasswordReset struct {
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	OTPCode     string `json:"otp_code"`
	NewPassword string `json:"new_password"`
}

// ResetPassword sets a new password using a password_reset OTP.
func (c *Client) ResetPassword(ctx context.Context, reset PasswordReset) error {
	return c.do(ctx, call{
		method: http.MethodPost,
		path:   Prefix + "/auth/reset-password",
		body: struct {
			PasswordReset
			Confirm string `json:"confirm_new_password"`
		}{reset, reset.NewPassword},
	})
}

// CurrentUser returns the signed-in user's profile.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var data struct {
		Profile User `json:"profile"`
	}
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   Prefix + "/users/me",
		data:   &data,
	})
	if err != nil {
		return nil, err
	}
	return &data.Profile, nil
}

// ProfileUpdate holds the profile fields to change. Empty fields are left as is.
type ProfileUpdate struct {
	FullName       string   `json:"full_name,omitempty"`
	PhoneNumber    string   `json:"phone_number,omitempty"`
	CitizenID      string   `json:"citizen_id,omitempty"`
	DateOfBirth    *Time    `json:"date_of_birth,omitempty"`
	Gender         string   `json:"gender,omitempty"`
	BloodType      string   `json:"blood_type,omitempty"`
	Height         *float64 `json:"height,omitempty"`
	Weight         *float64 `json:"weight,omitempty"`
	MedicalLicense string   `json:"medical_license,omitempty"`
}

// UpdateProfile updates the signed-in user's profile.
func (c *Client) UpdateProfile(ctx context.Context, u ProfileUpdate) (*User, error) {
	var data struct {
		Profile User `json:"profile"`
	}
	err := c.do(ctx, call{
		method: http.MethodPut,
		path:   Prefix + "/users/me",
		body:   u,
		data:   &data,
	})
	if err != nil {
		return nil, err
	}
	return &data.Profile, nil
}

// UserSummary is a search hit.
type UserSummary struct {
	ID          int64  `json:"id"`
	FullName    string `json:"full_name"`
	Role        string `json:"role"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// SearchUsers finds users by exact name, phone or email. Role may be empty.
func (c *Client) SearchUsers(ctx context.Context, query, role string) ([]UserSummary, error) {
	params := map[string]string{"query": query}
	if role != "" {
		params["role"] = role
	}
	var data struct {
		Users []UserSummary `json:"users"`
	}
	err := c.do(ctx, call{
		method: http.MethodGet,
		path:   Prefix + "/users/search",
		query:  params,
		data:   &data,
	})
	if err != nil {
		return nil, err
	}
	return data.Users, nil
}
