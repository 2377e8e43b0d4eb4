// Package identity registers and authenticates end users within a project.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/leephanna/sign-in-and-billing/internal/directory"
	"github.com/leephanna/sign-in-and-billing/internal/model"
	"github.com/leephanna/sign-in-and-billing/internal/validation"
	"github.com/leephanna/sign-in-and-billing/pkg/jwtutil"
	"github.com/leephanna/sign-in-and-billing/prometheus"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// bcrypt only looks at the first 72 bytes of a password
const maxPasswordBytes = 72

var (
	// ErrEmailInUse is returned when the email is already registered in the project
	ErrEmailInUse = errors.New("identity: email already registered")
	// ErrInvalidCredentials is returned for an unknown email or a wrong password alike
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	// ErrUnauthorized is returned when a session is invalid or its user is gone
	ErrUnauthorized = errors.New("identity: unauthorized")
)

type signUpInput struct {
	ProjectID string `json:"projectId" validate:"min=6"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"min=8,max=200"`
}

type signInInput struct {
	ProjectID string `json:"projectId" validate:"min=6"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
}

// Result is an issued session and the user it belongs to
type Result struct {
	Token string
	User  *model.User
}

// Service implements sign-up, sign-in and session lookup
type Service struct {
	db        *gorm.DB
	dir       *directory.Directory
	codec     *jwtutil.SessionCodec
	cost      int
	dummyHash []byte
	log       *zap.Logger
}

// New creates an identity Service hashing passwords at the given bcrypt cost
func New(db *gorm.DB, dir *directory.Directory, codec *jwtutil.SessionCodec, cost int, log *zap.Logger) (*Service, error) {
	dummy, err := bcrypt.GenerateFromPassword([]byte("timing-equalizer"), cost)
	if err != nil {
		return nil, fmt.Errorf("init password hasher: %w", err)
	}
	return &Service{
		db:        db,
		dir:       dir,
		codec:     codec,
		cost:      cost,
		dummyHash: dummy,
		log:       log,
	}, nil
}

// SignUp registers a new user in a project and issues a session
func (s *Service) SignUp(ctx context.Context, projectID, email, password string) (*Result, error) {
	if err := validation.Struct(signUpInput{ProjectID: projectID, Email: email, Password: password}); err != nil {
		return nil, err
	}

	if _, err := s.dir.GetProject(ctx, projectID); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword(passwordBytes(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.User{
		ProjectID:    projectID,
		Email:        strings.ToLower(email),
		PasswordHash: string(hash),
	}

	done := prometheus.TrackDBOperation("user_insert")
	err = s.db.WithContext(ctx).Omit(clause.Associations).Create(user).Error
	done()
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailInUse
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.log.Info("User signed up", zap.String("project_id", projectID), zap.String("user_id", user.ID))
	return s.issue(user)
}

// SignIn checks credentials and issues a session. Unknown emails and wrong
// passwords both yield ErrInvalidCredentials after the same amount of work.
func (s *Service) SignIn(ctx context.Context, projectID, email, password string) (*Result, error) {
	if err := validation.Struct(signInInput{ProjectID: projectID, Email: email, Password: password}); err != nil {
		return nil, err
	}

	var user model.User
	done := prometheus.TrackDBOperation("user_query")
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND email = ?", projectID, strings.ToLower(email)).
		First(&user).Error
	done()
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("find user: %w", err)
		}
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, passwordBytes(password))
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), passwordBytes(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	s.log.Info("User signed in", zap.String("project_id", projectID), zap.String("user_id", user.ID))
	return s.issue(&user)
}

// Me resolves the user behind verified session claims. The user must still
// exist inside the session's project.
func (s *Service) Me(ctx context.Context, claims *jwtutil.SessionClaims) (*model.User, error) {
	if claims == nil {
		return nil, ErrUnauthorized
	}

	var user model.User
	done := prometheus.TrackDBOperation("user_query")
	err := s.db.WithContext(ctx).
		Where("id = ? AND project_id = ?", claims.UserID(), claims.ProjectID).
		First(&user).Error
	done()
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &user, nil
}

func (s *Service) issue(user *model.User) (*Result, error) {
	token, err := s.codec.Sign(user.ID, user.ProjectID, user.Email)
	if err != nil {
		return nil, err
	}
	return &Result{Token: token, User: user}, nil
}

func passwordBytes(password string) []byte {
	b := []byte(password)
	if len(b) > maxPasswordBytes {
		b = b[:maxPasswordBytes]
	}
	return b
}

// isUniqueViolation relies on the dialector translating constraint errors (TranslateError)
func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
