package user

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"codecollab-auth-svc/src/internal/config"
	"codecollab-auth-svc/src/internal/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

type Service interface {
	Register(ctx context.Context, req *RegisterRequest) (*User, error)
	Authenticate(ctx context.Context, email, password string) (*User, error)
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error
	GetByID(ctx context.Context, userID string) (*User, error)
	GetAllUsers(ctx context.Context, req *GetAllUsersRequest) (*GetAllUsersResponse, error)
	GetUserStats(ctx context.Context) (*models.Stats, error)
	ActivateUser(ctx context.Context, userID string) error
	DeactivateUser(ctx context.Context, userID string) error
	SuspendUser(ctx context.Context, userID string, until *time.Time, reason string) error
	UnsuspendUser(ctx context.Context, userID string) error
	ChangeRole(ctx context.Context, userID, role string, permissions []string) error
}

// RegisterRequest carries the fields needed to create an account.
type RegisterRequest struct {
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
}

type userService struct {
	userRepository Repository
	cfg            *config.Configuration
}

func NewUserService(userRepository Repository, cfg *config.Configuration) Service {
	return &userService{
		userRepository: userRepository,
		cfg:            cfg,
	}
}

// Register creates a new account with the default role and its default
// permission bundle.
func (s *userService) Register(ctx context.Context, req *RegisterRequest) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cfg.Security.BcryptCost)
	if err != nil {
		logrus.WithError(err).Error("Failed to hash password")
		return nil, err
	}

	now := time.Now()
	user := &User{
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Email:        email,
		PasswordHash: string(hash),
		Role:         RoleUser,
		Permissions:  DefaultPermissionsForRole(RoleUser),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepository.Insert(ctx, user); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"user_id": user.ID.Hex(),
		"email":   email,
	}).Info("User registered")

	return user, nil
}

// Authenticate verifies credentials. It returns ErrInvalidCredentials for
// both unknown emails and wrong passwords so callers cannot probe accounts.
func (s *userService) Authenticate(ctx context.Context, email, password string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.userRepository.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, models.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if rerr := s.userRepository.RecordFailedLogin(ctx, user.ID.Hex(), time.Now()); rerr != nil {
			logrus.WithError(rerr).Warn("Failed to record failed login")
		}
		return nil, models.ErrInvalidCredentials
	}

	if err := s.userRepository.RecordLogin(ctx, user.ID.Hex(), time.Now()); err != nil {
		logrus.WithError(err).Warn("Failed to record login")
	}

	return user, nil
}

func (s *userService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	user, err := s.userRepository.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return models.ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cfg.Security.BcryptCost)
	if err != nil {
		logrus.WithError(err).Error("Failed to hash password")
		return err
	}

	return s.userRepository.UpdatePassword(ctx, userID, string(hash))
}

func (s *userService) GetByID(ctx context.Context, userID string) (*User, error) {
	return s.userRepository.GetByID(ctx, userID)
}

func (s *userService) GetAllUsers(ctx context.Context, req *GetAllUsersRequest) (*GetAllUsersResponse, error) {
	// Validate and set defaults
	if req.Limit <= 0 {
		req.Limit = s.cfg.Search.MinQueryLimit
	}
	if req.Limit > s.cfg.Search.MaxQueryLimit {
		req.Limit = s.cfg.Search.MaxQueryLimit
	}
	if req.Page <= 0 {
		req.Page = 1
	}

	if req.Role != "" && !IsValidRole(req.Role) {
		return nil, models.ErrInvalidRole
	}

	users, totalCount, err := s.userRepository.GetAllUsers(ctx, req)
	if err != nil {
		logrus.WithError(err).Error("Failed to get users from repository")
		return nil, err
	}

	profiles := make([]*Profile, len(users))
	for i, user := range users {
		profiles[i] = user.ToProfile()
	}

	totalPages := int(math.Ceil(float64(totalCount) / float64(req.Limit)))

	response := &GetAllUsersResponse{
		Users:      profiles,
		TotalCount: totalCount,
		Page:       req.Page,
		Limit:      req.Limit,
		TotalPages: totalPages,
	}

	logrus.WithFields(logrus.Fields{
		"users_count": len(profiles),
		"total_count": totalCount,
		"total_pages": totalPages,
	}).Info("Successfully retrieved users")

	return response, nil
}

func (s *userService) GetUserStats(ctx context.Context) (*models.Stats, error) {
	stats, err := s.userRepository.GetUserStats(ctx)
	if err != nil {
		logrus.WithError(err).Error("Failed to get user stats from repository")
		return nil, err
	}

	return stats, nil
}

func (s *userService) ActivateUser(ctx context.Context, userID string) error {
	return s.userRepository.SetActive(ctx, userID, true)
}

func (s *userService) DeactivateUser(ctx context.Context, userID string) error {
	return s.userRepository.SetActive(ctx, userID, false)
}

func (s *userService) SuspendUser(ctx context.Context, userID string, until *time.Time, reason string) error {
	if err := s.userRepository.Suspend(ctx, userID, until, reason); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"user_id": userID,
		"until":   until,
		"reason":  reason,
	}).Info("User suspended")

	return nil
}

func (s *userService) UnsuspendUser(ctx context.Context, userID string) error {
	return s.userRepository.Unsuspend(ctx, userID)
}

// ChangeRole sets a user's role. Permissions default to the role's bundle
// unless explicitly provided in the same mutation.
func (s *userService) ChangeRole(ctx context.Context, userID, role string, permissions []string) error {
	if !IsValidRole(role) {
		return models.ErrInvalidRole
	}

	if permissions == nil {
		permissions = DefaultPermissionsForRole(role)
	}

	if err := s.userRepository.UpdateRole(ctx, userID, role, permissions); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"user_id": userID,
		"role":    role,
	}).Info("User role changed")

	return nil
}
