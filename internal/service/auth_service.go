package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"

	"pledgr/internal/apperr"
	"pledgr/internal/auth"
	"pledgr/internal/database"
	"pledgr/internal/metrics"
	"pledgr/internal/models"
	"pledgr/internal/repository"
)

const invalidCredentials = "invalid email or password"

// AuthResult is returned by Register and Login.
type AuthResult struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// ProfileInput replaces the editable profile fields. An empty Name keeps the current one.
type ProfileInput struct {
	Name            string
	Bio             string
	Website         string
	SocialTwitter   string
	SocialInstagram string
	SocialYoutube   string
}

type AuthService struct {
	db      *sqlx.DB
	users   *repository.UserRepository
	hasher  *auth.Hasher
	tokens  *auth.TokenManager
	lockout *auth.Lockout
	policy  auth.PasswordPolicy
	timeout time.Duration
}

func NewAuthService(
	db *sqlx.DB,
	hasher *auth.Hasher,
	tokens *auth.TokenManager,
	lockout *auth.Lockout,
	policy auth.PasswordPolicy,
	timeout time.Duration,
) *AuthService {
	return &AuthService{
		db:      db,
		users:   repository.NewUserRepository(),
		hasher:  hasher,
		tokens:  tokens,
		lockout: lockout,
		policy:  policy,
		timeout: timeout,
	}
}

func (s *AuthService) Register(ctx context.Context, name, email, password string) (*AuthResult, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)

	if utf8.RuneCountInString(name) < 2 {
		return nil, apperr.Validation("name must be at least 2 characters")
	}
	if !isEmail(email) {
		return nil, apperr.Validation("a valid email address is required")
	}
	if err := s.policy.Check(password); err != nil {
		return nil, apperr.Validation(err.Error())
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.users.GetUserByEmail(ctx, s.db, email)
	if err == nil {
		return nil, apperr.Conflict("an account with this email already exists")
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, storeErr(err, "")
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "Server error.", err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Avatar:       avatarURL(name),
	}
	if err := s.users.CreateUser(ctx, s.db, user); err != nil {
		// Lost a race with a concurrent registration of the same email.
		if database.IsUniqueViolation(err) {
			return nil, apperr.Wrap(apperr.KindConflict, "an account with this email already exists", err)
		}
		return nil, storeErr(err, "")
	}

	return s.issue(user)
}

// Login answers unknown emails and wrong passwords with the same error.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperr.Validation("email and password are required")
	}

	if locked, remaining := s.lockout.Locked(email); locked {
		metrics.RecordLoginFailure("locked")
		minutes := int(math.Ceil(remaining.Minutes()))
		return nil, apperr.RateLimited(fmt.Sprintf("too many failed login attempts, try again in %d minutes", minutes))
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.users.GetUserByEmail(ctx, s.db, email)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, storeErr(err, "")
		}
		s.hasher.VerifyDummy(password)
		return nil, s.loginFailed(email)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		log.Printf("Unreadable password hash for user %d: %v", user.ID, err)
	}
	if !ok {
		return nil, s.loginFailed(email)
	}
	s.lockout.Reset(email)

	if s.hasher.NeedsRehash(user.PasswordHash) {
		s.upgradeHash(ctx, user, password)
	}

	return s.issue(user)
}

// Verify validates a bearer token.
func (s *AuthService) Verify(token string) (*auth.Claims, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindAuthentication, "invalid or expired token", err)
	}
	return claims, nil
}

func (s *AuthService) Me(ctx context.Context, userID int64) (*models.User, error) {
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.users.GetUserByID(ctx, s.db, userID)
	if err != nil {
		return nil, storeErr(err, "user not found")
	}
	return user, nil
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID int64, in ProfileInput) (*models.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Website = strings.TrimSpace(in.Website)

	if in.Name != "" && utf8.RuneCountInString(in.Name) < 2 {
		return nil, apperr.Validation("name must be at least 2 characters")
	}
	if in.Website != "" && !isURL(in.Website) {
		return nil, apperr.Validation("website must be a valid URL")
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.users.GetUserByID(ctx, s.db, userID)
	if err != nil {
		return nil, storeErr(err, "user not found")
	}

	if in.Name != "" {
		user.Name = in.Name
	}
	user.Bio = strings.TrimSpace(in.Bio)
	user.Website = in.Website
	user.SocialTwitter = strings.TrimSpace(in.SocialTwitter)
	user.SocialInstagram = strings.TrimSpace(in.SocialInstagram)
	user.SocialYoutube = strings.TrimSpace(in.SocialYoutube)

	if err := s.users.UpdateProfile(ctx, s.db, user); err != nil {
		return nil, storeErr(err, "user not found")
	}
	return user, nil
}

func (s *AuthService) issue(user *models.User) (*AuthResult, error) {
	token, _, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStorage, "Server error.", err)
	}
	return &AuthResult{Token: token, User: user}, nil
}

func (s *AuthService) loginFailed(email string) error {
	metrics.RecordLoginFailure("credentials")
	if s.lockout.Fail(email) {
		log.Printf("Login locked for %s after repeated failures", email)
	}
	return apperr.Authentication(invalidCredentials)
}

// upgradeHash rewrites a legacy or weaker hash. Failure only costs the upgrade.
func (s *AuthService) upgradeHash(ctx context.Context, user *models.User, password string) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		log.Printf("Failed to rehash password for user %d: %v", user.ID, err)
		return
	}
	if err := s.users.UpdatePasswordHash(ctx, s.db, user.ID, hash); err != nil {
		log.Printf("Failed to store upgraded hash for user %d: %v", user.ID, err)
		return
	}
	user.PasswordHash = hash
}

func avatarURL(name string) string {
	return "https://ui-avatars.com/api/?name=" + url.QueryEscape(name) + "&background=random"
}
