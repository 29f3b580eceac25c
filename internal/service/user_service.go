package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campus-dev/sis-api/internal/models"
	appErrors "github.com/campus-dev/sis-api/pkg/errors"
	"github.com/campus-dev/sis-api/pkg/password"
)

type userRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	CreateTeacher(ctx context.Context, user *models.User, profile *models.TeacherProfile) error
	CreateStudent(ctx context.Context, user *models.User, profile *models.StudentProfile) error
	FindTeacherByUserID(ctx context.Context, userID string) (*models.TeacherProfile, error)
	FindStudentByUserID(ctx context.Context, userID string) (*models.StudentProfile, error)
	ListTeachers(ctx context.Context) ([]models.TeacherDetail, error)
	ListStudents(ctx context.Context) ([]models.StudentDetail, error)
}

// AccountsConfig governs provisioning of new accounts.
type AccountsConfig struct {
	EmailDomain           string
	InitialPasswordLength int
}

// CreateTeacherRequest provisions a teacher account.
type CreateTeacherRequest struct {
	FullName    string `json:"full_name" validate:"required"`
	Email       string `json:"email" validate:"omitempty,email"`
	TeacherCode string `json:"teacher_code" validate:"required"`
	Department  string `json:"department"`
}

// CreateStudentRequest provisions a student account.
type CreateStudentRequest struct {
	FullName    string `json:"full_name" validate:"required"`
	Email       string `json:"email" validate:"omitempty,email"`
	StudentCode string `json:"student_code" validate:"required"`
	ClassName   string `json:"class_name"`
	Major       string `json:"major"`
	Cohort      string `json:"cohort"`
}

// ProvisionedAccount carries the one-time initial password back to the admin.
type ProvisionedAccount struct {
	User            models.User `json:"user"`
	InitialPassword string      `json:"initial_password"`
}

// UserService provisions and lists teacher and student accounts.
type UserService struct {
	repo      userRepository
	config    AccountsConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService creates a new user service instance.
func NewUserService(repo userRepository, config AccountsConfig, validate *validator.Validate, logger *zap.Logger) *UserService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, config: config, validator: validate, logger: logger}
}

// CreateTeacher provisions a teacher account with a generated initial
// password, returned exactly once in the response.
func (s *UserService) CreateTeacher(ctx context.Context, req CreateTeacherRequest) (*ProvisionedAccount, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}

	user, initial, err := s.newAccount(ctx, req.FullName, req.Email, req.TeacherCode, models.RoleTeacher)
	if err != nil {
		return nil, err
	}

	profile := &models.TeacherProfile{
		TeacherCode: strings.ToUpper(strings.TrimSpace(req.TeacherCode)),
		Department:  req.Department,
	}
	if err := s.repo.CreateTeacher(ctx, user, profile); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create teacher")
	}

	s.logger.Info("teacher provisioned", zap.String("user_id", user.ID), zap.String("code", profile.TeacherCode))
	return &ProvisionedAccount{User: *user, InitialPassword: initial}, nil
}

// CreateStudent provisions a student account with a generated initial
// password, returned exactly once in the response.
func (s *UserService) CreateStudent(ctx context.Context, req CreateStudentRequest) (*ProvisionedAccount, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}

	user, initial, err := s.newAccount(ctx, req.FullName, req.Email, req.StudentCode, models.RoleStudent)
	if err != nil {
		return nil, err
	}

	profile := &models.StudentProfile{
		StudentCode: strings.ToUpper(strings.TrimSpace(req.StudentCode)),
		ClassName:   req.ClassName,
		Major:       req.Major,
		Cohort:      req.Cohort,
	}
	if err := s.repo.CreateStudent(ctx, user, profile); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}

	s.logger.Info("student provisioned", zap.String("user_id", user.ID), zap.String("code", profile.StudentCode))
	return &ProvisionedAccount{User: *user, InitialPassword: initial}, nil
}

// newAccount builds the user row shared by both roles. Email defaults to
// <code>@<domain> when omitted; the code doubles as the mailbox name.
func (s *UserService) newAccount(ctx context.Context, fullName, email, code string, role models.UserRole) (*models.User, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		email = fmt.Sprintf("%s@%s", strings.ToLower(strings.TrimSpace(code)), s.config.EmailDomain)
	}

	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "email already in use")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}

	initial, err := password.Generate(s.config.InitialPasswordLength)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate password")
	}
	hash, err := password.Hash(initial)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	return &models.User{
		Email:        email,
		PasswordHash: hash,
		FullName:     fullName,
		Role:         role,
		Active:       true,
	}, initial, nil
}

// Get returns a user by id.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// TeacherProfile resolves the teacher profile of a user account.
func (s *UserService) TeacherProfile(ctx context.Context, userID string) (*models.TeacherProfile, error) {
	profile, err := s.repo.FindTeacherByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher profile")
	}
	return profile, nil
}

// StudentProfile resolves the student profile of a user account.
func (s *UserService) StudentProfile(ctx context.Context, userID string) (*models.StudentProfile, error) {
	profile, err := s.repo.FindStudentByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}
	return profile, nil
}

// ListTeachers returns all teacher accounts.
func (s *UserService) ListTeachers(ctx context.Context) ([]models.TeacherDetail, error) {
	teachers, err := s.repo.ListTeachers(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}
	return teachers, nil
}

// ListStudents returns all student accounts.
func (s *UserService) ListStudents(ctx context.Context) ([]models.StudentDetail, error) {
	students, err := s.repo.ListStudents(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	return students, nil
}
