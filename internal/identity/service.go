package identity

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"faceattend/internal/apperr"
	"faceattend/internal/store"
)

var (
	accountPattern  = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)
	passwordCharset = regexp.MustCompile(`^[a-zA-Z\d@$!%*?&]{6,20}$`)
	hasLetter       = regexp.MustCompile(`[a-zA-Z]`)
	hasDigit        = regexp.MustCompile(`\d`)
)

type userRepository interface {
	FindByID(ctx context.Context, id int64) (*User, error)
	FindByAccount(ctx context.Context, account string) (*User, error)
	Create(ctx context.Context, u *User) error
	FindClass(ctx context.Context, id int64) (*ClassGroup, error)
	ListClasses(ctx context.Context) ([]ClassGroup, error)
}

// TokenIssuer signs access tokens for authenticated users.
type TokenIssuer interface {
	Issue(u User) (token string, expiresAt time.Time, err error)
}

// RegisterRequest is the self-registration payload. Only students register
// themselves.
type RegisterRequest struct {
	Account     string `json:"userAccount" validate:"required,account"`
	Password    string `json:"userPassword" validate:"required,password"`
	DisplayName string `json:"userName" validate:"required,max=50"`
	ClassID     int64  `json:"classId" validate:"required,gt=0"`
}

// LoginRequest carries credentials.
type LoginRequest struct {
	Account  string `json:"userAccount" validate:"required"`
	Password string `json:"userPassword" validate:"required"`
}

// Session is returned on successful login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      User      `json:"user"`
}

// Service implements account use cases.
type Service struct {
	repo      userRepository
	tokens    TokenIssuer
	validator *validator.Validate
	logger    *zap.Logger
}

// accountRules are the custom tags used by RegisterRequest.
var accountRules = map[string]validator.Func{
	"account": func(fl validator.FieldLevel) bool {
		return accountPattern.MatchString(fl.Field().String())
	},
	"password": func(fl validator.FieldLevel) bool {
		v := fl.Field().String()
		return passwordCharset.MatchString(v) && hasLetter.MatchString(v) && hasDigit.MatchString(v)
	},
}

func registerRules(v *validator.Validate, rules map[string]validator.Func) error {
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("register %q validation: %w", tag, err)
		}
	}
	return nil
}

// NewService constructs a Service. The validator gains the account and
// password rules used by registration; it panics if they cannot be registered.
func NewService(repo userRepository, tokens TokenIssuer, validate *validator.Validate, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if err := registerRules(validate, accountRules); err != nil {
		panic(err)
	}
	return &Service{repo: repo, tokens: tokens, validator: validate, logger: logger}
}

// Register creates a student account in an existing class.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	req.Account = strings.TrimSpace(req.Account)
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if err := s.validator.Struct(req); err != nil {
		return nil, apperr.Invalid(err, "invalid registration payload")
	}

	class, err := s.repo.FindClass(ctx, req.ClassID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrInternal, "failed to look up class")
	}
	if class == nil {
		return nil, apperr.Clone(apperr.ErrValidation, "class does not exist")
	}

	existing, err := s.repo.FindByAccount(ctx, req.Account)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrInternal, "failed to look up account")
	}
	if existing != nil {
		return nil, apperr.Clone(apperr.ErrConflict, "account already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrInternal, "failed to hash password")
	}

	classID := class.ID
	className := class.Name
	user := &User{
		Account:          req.Account,
		PasswordHash:     string(hash),
		DisplayName:      req.DisplayName,
		Role:             RoleStudent,
		ClassID:          &classID,
		ClassName:        &className,
		EnrollmentStatus: Unenrolled,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if store.IsUniqueViolation(err) {
			return nil, apperr.Clone(apperr.ErrConflict, "account already registered")
		}
		return nil, apperr.Wrap(err, apperr.ErrInternal, "failed to create user")
	}
	s.logger.Info("user registered", zap.Int64("user_id", user.ID), zap.Int64("class_id", classID))
	return user, nil
}

// Login verifies credentials and issues an access token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, apperr.Wrap(err, apperr.ErrValidation, "invalid login payload")
	}
	user, err := s.repo.FindByAccount(ctx, strings.TrimSpace(req.Account))
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrInternal, "failed to fetch user")
	}
	if user == nil {
		return nil, apperr.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, apperr.ErrInvalidCredentials
	}
	token, exp, err := s.tokens.Issue(*user)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrInternal, "failed to create access token")
	}
	return &Session{Token: token, ExpiresAt: exp, User: *user}, nil
}

// Profile returns the caller's current account state.
func (s *Service) Profile(ctx context.Context, caller Caller) (*User, error) {
	user, err := s.repo.FindByID(ctx, caller.ID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrInternal, "failed to fetch user")
	}
	if user == nil {
		return nil, apperr.Clone(apperr.ErrNotFound, "user not found")
	}
	return user, nil
}

// Classes lists all classes ordered by name.
func (s *Service) Classes(ctx context.Context) ([]ClassGroup, error) {
	classes, err := s.repo.ListClasses(ctx)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrInternal, "failed to list classes")
	}
	return classes, nil
}
