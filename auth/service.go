package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"inkwell/apperror"
	"inkwell/models"
)

// Notifier is told about new accounts. Failures never fail registration.
type Notifier interface {
	SendWelcome(ctx context.Context, to, name string) error
}

type RegisterInput struct {
	Name     string `json:"name" validate:"required,min=2,max=100"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// Session is the result of a successful register or login.
type Session struct {
	User      *models.User
	Token     string
	ExpiresAt time.Time
}

type Service struct {
	db       *gorm.DB
	tokens   *TokenIssuer
	cost     int
	notifier Notifier
}

func NewService(db *gorm.DB, tokens *TokenIssuer, bcryptCost int, notifier Notifier) *Service {
	return &Service{
		db:       db,
		tokens:   tokens,
		cost:     bcryptCost,
		notifier: notifier,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)

	fields := apperror.Check(in)
	checkPasswordBytes(&fields, in.Password)
	if err := fields.Err("Invalid registration data"); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)

	var count int64
	if err := db.Model(&models.User{}).Where("email = ?", in.Email).Count(&count).Error; err != nil {
		return nil, apperror.Internal("check existing user", err)
	}
	if count > 0 {
		return nil, apperror.Conflict("User with this email already exists")
	}

	passwordHash, err := hashPassword(in.Password, s.cost)
	if err != nil {
		return nil, apperror.Internal("hash password", err)
	}

	user := models.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: passwordHash,
		Role:         models.RoleUser,
	}
	if err := db.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperror.Conflict("User with this email already exists")
		}
		return nil, apperror.Internal("create user", err)
	}
	slog.Info("User registered", "user_id", user.ID)

	if s.notifier != nil {
		if err := s.notifier.SendWelcome(ctx, user.Email, user.Name); err != nil {
			slog.Warn("Failed to send welcome email", "user_id", user.ID, "error", err)
		}
	}

	return s.session(&user)
}

func (s *Service) Login(ctx context.Context, in LoginInput) (*Session, error) {
	in.Email = normalizeEmail(in.Email)

	fields := apperror.Check(in)
	checkPasswordBytes(&fields, in.Password)
	if err := fields.Err("Invalid login data"); err != nil {
		return nil, err
	}

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", in.Email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("User not found")
	}
	if err != nil {
		return nil, apperror.Internal("load user", err)
	}

	if !VerifyPassword(&user, in.Password) {
		return nil, apperror.Authentication(apperror.ReasonBadCredentials, "Invalid credentials")
	}

	return s.session(&user)
}

// Lookup loads a user by id. A missing user is a NotFoundError.
func (s *Service) Lookup(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("User not found")
	}
	if err != nil {
		return nil, apperror.Internal("load user", err)
	}
	return &user, nil
}

func (s *Service) session(user *models.User) (*Session, error) {
	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return nil, apperror.Internal("issue token", err)
	}
	return &Session{User: user, Token: token, ExpiresAt: expiresAt}, nil
}
