package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"kubeopt.ai/internal/audit"
	"kubeopt.ai/internal/ids"
	"kubeopt.ai/internal/obs"
)

// IdentityService handles login, logout, token refresh, password management
// and user provisioning.
type IdentityService struct {
	store  Store
	issuer *TokenIssuer
	codec  TokenCodec
	options

	// compared against on unknown emails so both login failures cost the same
	dummyHash string
}

// NewIdentityService constructs the service. codec is used to decode tokens
// presented to RefreshWithToken and LogoutWithToken.
func NewIdentityService(store Store, issuer *TokenIssuer, codec TokenCodec, opts ...Option) (*IdentityService, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if issuer == nil || codec == nil {
		return nil, errors.New("auth: token issuer and codec are required")
	}
	s := &IdentityService{store: store, issuer: issuer, codec: codec, options: newOptions(opts)}
	hash, err := s.hasher.Hash(ids.New())
	if err != nil {
		return nil, fmt.Errorf("auth: prepare hasher: %w", err)
	}
	s.dummyHash = hash
	return s, nil
}

// HashPassword hashes password with the configured hasher.
func (s *IdentityService) HashPassword(password string) (string, error) {
	return s.hasher.Hash(password)
}

// VerifyPassword reports whether password matches hash. It never fails on
// malformed hashes.
func (s *IdentityService) VerifyPassword(password, hash string) bool {
	return s.hasher.Verify(password, hash)
}

// Login authenticates email/password and issues a fresh token pair.
// Unknown emails and wrong passwords fail with the same ErrInvalidCredentials.
func (s *IdentityService) Login(ctx context.Context, email, password string, meta ClientMeta) (TokenPair, *User, error) {
	email = normalizeEmail(email)
	now := s.now()

	if s.throttle.Blocked(email, now) {
		s.metrics.Login(obs.OutcomeThrottled)
		s.logger.Warn("login throttled", zap.String("email", email))
		return TokenPair{}, nil, ErrTooManyAttempts
	}

	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.metrics.Login(obs.OutcomeError)
		return TokenPair{}, nil, err
	}
	if user == nil {
		s.hasher.Verify(password, s.dummyHash)
		s.loginFailed(ctx, email, "unknown email")
		return TokenPair{}, nil, ErrInvalidCredentials
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		s.loginFailed(ctx, email, "invalid password")
		return TokenPair{}, nil, ErrInvalidCredentials
	}
	if !user.IsActive() {
		s.metrics.Login(obs.OutcomeInactive)
		s.logger.Warn("login attempt for inactive user", zap.String("email", email), zap.String("status", string(user.Status)))
		return TokenPair{}, nil, newError(CodeUserInactive, "User account is %s", user.Status)
	}

	var pair TokenPair
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		var err error
		pair, err = s.issuer.IssuePair(ctx, tx.RefreshTokens(ctx), user, meta)
		if err != nil {
			return err
		}
		return tx.Users(ctx).TouchLastLogin(ctx, user.ID, now.UTC())
	})
	if err != nil {
		s.metrics.Login(obs.OutcomeError)
		return TokenPair{}, nil, fmt.Errorf("issue tokens: %w", err)
	}
	loginAt := now.UTC()
	user.LastLoginAt = &loginAt

	s.throttle.Reset(email)
	s.metrics.Login(obs.OutcomeSuccess)
	s.logger.Info("user logged in", zap.String("user_id", user.ID), zap.String("email", email))
	s.record(ContextWithUser(ctx, user), audit.EventLogin,
		zap.String("ip_address", meta.IPAddress), zap.String("user_agent", meta.UserAgent))
	return pair, user, nil
}

func (s *IdentityService) loginFailed(ctx context.Context, email, reason string) {
	s.throttle.Fail(email, s.now())
	s.metrics.Login(obs.OutcomeInvalidCredentials)
	s.logger.Warn("login failed", zap.String("email", email), zap.String("reason", reason))
	s.record(ctx, audit.EventLoginFailed, zap.String("email", email))
}

// Refresh rotates the refresh token identified by sess and issues a new pair.
// The presented token is revoked in the same transaction that persists its
// successor, so a token can be exchanged at most once.
func (s *IdentityService) Refresh(ctx context.Context, sess Session, meta ClientMeta) (TokenPair, error) {
	if strings.TrimSpace(sess.UserID) == "" || strings.TrimSpace(sess.TokenID) == "" {
		s.metrics.Refresh(obs.OutcomeTokenError)
		return TokenPair{}, newError(CodeTokenError, "Refresh token is missing its identifier")
	}
	hash := HashTokenID(sess.TokenID)
	now := s.now()

	var pair TokenPair
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		tokens := tx.RefreshTokens(ctx)
		rec, err := tokens.FindByHash(ctx, hash)
		if errors.Is(err, ErrNotFound) {
			return newError(CodeTokenError, "Refresh token not recognized")
		}
		if err != nil {
			return err
		}
		if rec.UserID != sess.UserID {
			return newError(CodeTokenError, "Refresh token does not belong to user")
		}
		if !rec.Valid(now) {
			return newError(CodeTokenError, "Refresh token has been revoked or expired")
		}
		revoked, err := tokens.Revoke(ctx, hash, now.UTC())
		if err != nil {
			return err
		}
		if !revoked {
			return newError(CodeTokenError, "Refresh token has been revoked or expired")
		}

		user, err := tx.Users(ctx).Find(ctx, sess.UserID)
		if errors.Is(err, ErrNotFound) {
			return newError(CodeTokenError, "User not found")
		}
		if err != nil {
			return err
		}
		if !user.IsActive() {
			return newError(CodeUserInactive, "User account is %s", user.Status)
		}
		pair, err = s.issuer.IssuePair(ctx, tokens, user, meta)
		return err
	})
	if err != nil {
		switch CodeOf(err) {
		case CodeTokenError:
			s.metrics.Refresh(obs.OutcomeTokenError)
		case CodeUserInactive:
			s.metrics.Refresh(obs.OutcomeInactive)
		default:
			s.metrics.Refresh(obs.OutcomeError)
		}
		s.logger.Warn("token refresh failed", zap.String("user_id", sess.UserID), zap.Error(err))
		return TokenPair{}, err
	}

	s.metrics.Refresh(obs.OutcomeSuccess)
	s.logger.Info("tokens refreshed", zap.String("user_id", sess.UserID))
	s.record(ContextWithSession(ctx, sess), audit.EventRefresh,
		zap.String("ip_address", meta.IPAddress), zap.String("user_agent", meta.UserAgent))
	return pair, nil
}

// RefreshCurrent rotates the refresh session attached to ctx.
func (s *IdentityService) RefreshCurrent(ctx context.Context, meta ClientMeta) (TokenPair, error) {
	sess, err := currentSession(ctx)
	if err != nil {
		s.metrics.Refresh(obs.OutcomeTokenError)
		return TokenPair{}, err
	}
	return s.Refresh(ctx, sess, meta)
}

// RefreshWithToken decodes a raw refresh token and rotates it.
func (s *IdentityService) RefreshWithToken(ctx context.Context, refreshToken string, meta ClientMeta) (TokenPair, error) {
	ctx, err := s.SessionContext(ctx, refreshToken)
	if err != nil {
		s.metrics.Refresh(obs.OutcomeTokenError)
		return TokenPair{}, err
	}
	return s.RefreshCurrent(ctx, meta)
}

// SessionContext decodes a raw refresh token and attaches its session to ctx.
func (s *IdentityService) SessionContext(ctx context.Context, refreshToken string) (context.Context, error) {
	sess, _, err := DecodeSession(s.codec, refreshToken, TokenTypeRefresh)
	if err != nil {
		return ctx, err
	}
	return ContextWithSession(ctx, sess), nil
}

// Logout revokes the session's refresh token, or every refresh token of the
// session's user when revokeAll is set.
func (s *IdentityService) Logout(ctx context.Context, sess Session, revokeAll bool) error {
	if strings.TrimSpace(sess.UserID) == "" {
		return newError(CodeTokenError, "Session has no user")
	}
	now := s.now().UTC()
	tokens := s.store.RefreshTokens(ctx)

	var revoked int64
	if revokeAll {
		n, err := tokens.RevokeAllForUser(ctx, sess.UserID, now)
		if err != nil {
			return err
		}
		revoked = n
	} else {
		if strings.TrimSpace(sess.TokenID) == "" {
			return newError(CodeTokenError, "Session has no refresh token")
		}
		hash := HashTokenID(sess.TokenID)
		rec, err := tokens.FindByHash(ctx, hash)
		if errors.Is(err, ErrNotFound) || (err == nil && rec.UserID != sess.UserID) {
			return newError(CodeTokenError, "Refresh token not recognized")
		}
		if err != nil {
			return err
		}
		ok, err := tokens.Revoke(ctx, hash, now)
		if err != nil {
			return err
		}
		if !ok {
			return newError(CodeTokenError, "Refresh token already revoked")
		}
		revoked = 1
	}

	s.metrics.Logout(revokeAll)
	s.logger.Info("user logged out", zap.String("user_id", sess.UserID),
		zap.Bool("revoke_all", revokeAll), zap.Int64("revoked", revoked))
	s.record(ContextWithSession(ctx, sess), audit.EventLogout,
		zap.Bool("revoke_all", revokeAll), zap.Int64("revoked", revoked))
	return nil
}

// LogoutCurrent logs out the refresh session attached to ctx.
func (s *IdentityService) LogoutCurrent(ctx context.Context, revokeAll bool) error {
	sess, err := currentSession(ctx)
	if err != nil {
		return err
	}
	return s.Logout(ctx, sess, revokeAll)
}

// LogoutWithToken decodes a raw refresh token and logs its session out.
func (s *IdentityService) LogoutWithToken(ctx context.Context, refreshToken string, revokeAll bool) error {
	ctx, err := s.SessionContext(ctx, refreshToken)
	if err != nil {
		return err
	}
	return s.LogoutCurrent(ctx, revokeAll)
}

// NewUser describes a user to provision.
type NewUser struct {
	Email       string `validate:"required,email,max=255"`
	Password    string `validate:"required"`
	FirstName   string `validate:"max=100"`
	LastName    string `validate:"max=100"`
	IsSuperuser bool
	Status      UserStatus
}

// CreateUser provisions a user. Emails are unique ignoring case.
func (s *IdentityService) CreateUser(ctx context.Context, in NewUser) (*User, error) {
	in.Email = normalizeEmail(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if in.Status == "" {
		in.Status = UserStatusActive
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if !in.Status.Valid() {
		return nil, newError(CodeValidation, "unsupported status %s", in.Status)
	}
	if err := checkPassword(in.Password, s.passwordMinLength); err != nil {
		return nil, err
	}

	users := s.store.Users(ctx)
	if _, err := users.FindByEmail(ctx, in.Email); err == nil {
		return nil, newError(CodeConflict, "User with email '%s' already exists", in.Email)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	user := &User{
		ID:           ids.New(),
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Status:       in.Status,
		IsSuperuser:  in.IsSuperuser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, newError(CodeConflict, "User with email '%s' already exists", in.Email)
		}
		return nil, err
	}

	s.logger.Info("created user", zap.String("user_id", user.ID), zap.String("email", user.Email))
	s.record(ctx, audit.EventUserCreated, zap.String("user_id", user.ID),
		zap.String("email", user.Email), zap.Bool("is_superuser", user.IsSuperuser))
	return user, nil
}

// UpdatePassword replaces the password hash of the user.
func (s *IdentityService) UpdatePassword(ctx context.Context, user *User, newPassword string) error {
	if user == nil || user.ID == "" {
		return newError(CodeValidation, "user is required")
	}
	if err := checkPassword(newPassword, s.passwordMinLength); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	if err := s.store.Users(ctx).UpdatePassword(ctx, user.ID, hash, now); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	user.PasswordHash = hash
	user.UpdatedAt = now

	s.logger.Info("password updated", zap.String("user_id", user.ID))
	s.record(ctx, audit.EventPasswordChanged, zap.String("user_id", user.ID))
	return nil
}

// ChangePassword verifies the current password before replacing it.
func (s *IdentityService) ChangePassword(ctx context.Context, user *User, currentPassword, newPassword string) error {
	if user == nil {
		return newError(CodeValidation, "user is required")
	}
	if !s.hasher.Verify(currentPassword, user.PasswordHash) {
		return newError(CodeInvalidCredentials, "Current password is incorrect")
	}
	return s.UpdatePassword(ctx, user, newPassword)
}

// SetUserStatus changes the status of a user. Leaving the active state
// revokes every refresh token of the user in the same transaction.
func (s *IdentityService) SetUserStatus(ctx context.Context, user *User, status UserStatus) error {
	if user == nil || user.ID == "" {
		return newError(CodeValidation, "user is required")
	}
	if !status.Valid() {
		return newError(CodeValidation, "Invalid status: %s", status)
	}
	now := s.now().UTC()
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Store) error {
		if err := tx.Users(ctx).UpdateStatus(ctx, user.ID, status, now); err != nil {
			return err
		}
		if status == UserStatusActive {
			return nil
		}
		_, err := tx.RefreshTokens(ctx).RevokeAllForUser(ctx, user.ID, now)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}
	previous := user.Status
	user.Status = status
	user.UpdatedAt = now

	s.logger.Info("user status changed", zap.String("user_id", user.ID), zap.String("status", string(status)))
	s.record(ctx, audit.EventUserStatus, zap.String("user_id", user.ID),
		zap.String("from", string(previous)), zap.String("to", string(status)))
	return nil
}

// GetUserByID returns the user or ErrUserNotFound.
func (s *IdentityService) GetUserByID(ctx context.Context, id string) (*User, error) {
	user, err := s.store.Users(ctx).Find(ctx, strings.TrimSpace(id))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// GetUserByEmail returns the user with email, ignoring case, or ErrUserNotFound.
func (s *IdentityService) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	user, err := s.store.Users(ctx).FindByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// ListUsers lists users, optionally filtered by status.
func (s *IdentityService) ListUsers(ctx context.Context, status UserStatus) ([]*User, error) {
	if status != "" && !status.Valid() {
		return nil, newError(CodeValidation, "Invalid status: %s", status)
	}
	return s.store.Users(ctx).List(ctx, status)
}

// Sessions lists the refresh token records of a user, newest last.
func (s *IdentityService) Sessions(ctx context.Context, userID string) ([]*RefreshToken, error) {
	return s.store.RefreshTokens(ctx).ListByUser(ctx, userID)
}

// AuthenticateAccess decodes an access token and loads its active user.
func (s *IdentityService) AuthenticateAccess(ctx context.Context, accessToken string) (*User, TokenClaims, error) {
	_, claims, err := DecodeSession(s.codec, accessToken, TokenTypeAccess)
	if err != nil {
		return nil, TokenClaims{}, err
	}
	user, err := s.GetUserByID(ctx, claims.Subject)
	if err != nil {
		return nil, TokenClaims{}, err
	}
	if !user.IsActive() {
		return nil, TokenClaims{}, newError(CodeUserInactive, "User account is %s", user.Status)
	}
	return user, claims, nil
}

// AuthenticateContext authenticates accessToken and returns ctx carrying the
// user for UserFromContext and Resolver.AuthorizeCurrent.
func (s *IdentityService) AuthenticateContext(ctx context.Context, accessToken string) (context.Context, *User, error) {
	user, _, err := s.AuthenticateAccess(ctx, accessToken)
	if err != nil {
		return ctx, nil, err
	}
	return ContextWithUser(ctx, user), user, nil
}
