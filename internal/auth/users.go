package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrEmptyPassword      = errors.New("password cannot be empty")
	ErrUserNotFound       = errors.New("user not found")
)

// User is a registered account.
type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	HashedPassword string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// UserStore manages accounts.
type UserStore struct {
	db   *sql.DB
	cost int
}

// NewUserStore creates a user store. cost <= 0 selects bcrypt.DefaultCost.
func NewUserStore(db *sql.DB, cost int) *UserStore {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	return &UserStore{db: db, cost: cost}
}

// NormalizeEmail validates an address and returns its bare, trimmed form.
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// Register creates a user with a bcrypt-hashed password.
func (us *UserStore) Register(ctx context.Context, email, password string) (*User, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if password == "" {
		return nil, ErrEmptyPassword
	}

	var exists int
	err = us.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE email = ?`, email).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if exists > 0 {
		return nil, ErrEmailTaken
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), us.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &User{
		ID:             uuid.New().String(),
		Email:          email,
		HashedPassword: string(hashed),
		CreatedAt:      time.Now().UTC(),
	}
	_, err = us.db.ExecContext(ctx, `
		INSERT INTO users (id, email, hashed_password, created_at)
		VALUES (?, ?, ?, ?)
	`, user.ID, user.Email, user.HashedPassword, user.CreatedAt)
	if err != nil {
		// A concurrent registration can win between the check and the insert.
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// Authenticate returns the user when email and password match.
func (us *UserStore) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := us.getBy(ctx, "email", strings.TrimSpace(email))
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// GetByID returns the user with id.
func (us *UserStore) GetByID(ctx context.Context, id string) (*User, error) {
	return us.getBy(ctx, "id", id)
}

func (us *UserStore) getBy(ctx context.Context, column, value string) (*User, error) {
	var user User
	err := us.db.QueryRowContext(ctx, `
		SELECT id, email, hashed_password, created_at
		FROM users WHERE `+column+` = ?
	`, value).Scan(&user.ID, &user.Email, &user.HashedPassword, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}
