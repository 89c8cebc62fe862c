package dto

import "time"

type LoginRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	User        UserResponse `json:"user"`
}

type SignupRequest struct {
	UserID      string  `json:"user_id" binding:"required"`
	Email       string  `json:"email" binding:"required,email"`
	Name        string  `json:"name"`
	UserType    string  `json:"user_type"`
	Password    string  `json:"password" binding:"required,min=8"`
	PhoneNumber *string `json:"phone_number,omitempty"`
}

type UserResponse struct {
	UserUUID  string    `json:"user_uuid"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	UserType  string    `json:"user_type"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}
