package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/attendease-api/internal/models"
	appErrors "github.com/noah-isme/attendease-api/pkg/errors"
	"github.com/noah-isme/attendease-api/pkg/identity"
)

type mockAuthRepo struct {
	userByEmail         *models.User
	userByID            *models.User
	findByEmailErr      error
	findByIDErr         error
	refreshTokens       map[string]*models.RefreshToken
	refreshTokenErr     error
	createRefreshErr    error
	revokeRefreshErr    error
	revokeUserTokensErr error
	updatePasswordErr   error
	auditLogs           []*models.AuditLog
	lastLoginUpdated    bool
	revokedAllFor       string
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.findByEmailErr != nil {
		return nil, m.findByEmailErr
	}
	if m.userByEmail == nil {
		return nil, sql.ErrNoRows
	}
	return m.userByEmail, nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if m.findByIDErr != nil {
		return nil, m.findByIDErr
	}
	if m.userByID != nil {
		return m.userByID, nil
	}
	if m.userByEmail == nil {
		return nil, sql.ErrNoRows
	}
	return m.userByEmail, nil
}

func (m *mockAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.lastLoginUpdated = true
	return nil
}

func (m *mockAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	if m.updatePasswordErr != nil {
		return m.updatePasswordErr
	}
	if m.userByEmail != nil && m.userByEmail.ID == id {
		m.userByEmail.PasswordHash = passwordHash
	}
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revokedAllFor = userID
	return m.revokeUserTokensErr
}

func (m *mockAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if m.createRefreshErr != nil {
		return m.createRefreshErr
	}
	if m.refreshTokens == nil {
		m.refreshTokens = make(map[string]*models.RefreshToken)
	}
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if m.refreshTokenErr != nil {
		return nil, m.refreshTokenErr
	}
	rt, ok := m.refreshTokens[token]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return rt, nil
}

func (m *mockAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	if m.revokeRefreshErr != nil {
		return m.revokeRefreshErr
	}
	for _, token := range m.refreshTokens {
		if token.ID == id {
			token.Revoked = true
			token.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

type fakeVerifier struct {
	identity *identity.Identity
	err      error
}

func (f *fakeVerifier) Verify(token string) (*identity.Identity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.identity, nil
}

func testAuthConfig() AuthConfig {
	return AuthConfig{AccessTokenSecret: "secret", AccessTokenExpiry: time.Hour, RefreshTokenExpiry: 24 * time.Hour, Issuer: "attendease"}
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	password, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "123", Email: "prof@example.edu", PasswordHash: string(password), Active: true, Role: models.RoleProfessor}}
	svc := NewAuthService(repo, nil, validator.New(), zap.NewNop(), testAuthConfig())

	res, err := svc.Login(context.Background(), models.LoginRequest{Email: "prof@example.edu", Password: "password"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, int64(3600), res.ExpiresIn)
	assert.Equal(t, models.RoleProfessor, res.User.Role)
	assert.True(t, repo.lastLoginUpdated)
	assert.NotEmpty(t, repo.refreshTokens)
	require.Len(t, repo.auditLogs, 1)
	assert.Equal(t, models.AuditActionLogin, repo.auditLogs[0].Action)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	password, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "123", Email: "prof@example.edu", PasswordHash: string(password), Active: true}}
	svc := NewAuthService(repo, nil, validator.New(), zap.NewNop(), testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "prof@example.edu", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginInactive(t *testing.T) {
	password, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "123", Email: "prof@example.edu", PasswordHash: string(password), Active: false}}
	svc := NewAuthService(repo, nil, validator.New(), zap.NewNop(), testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "prof@example.edu", Password: "password"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceSingleSessionRevokesPrevious(t *testing.T) {
	password, _ := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "u1", Email: "prof@example.edu", PasswordHash: string(password), Active: true}}
	cfg := testAuthConfig()
	cfg.SingleSession = true
	svc := NewAuthService(repo, nil, nil, nil, cfg)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "prof@example.edu", Password: "password"})
	require.NoError(t, err)
	assert.Equal(t, "u1", repo.revokedAllFor)
}

func TestAuthServiceExchange(t *testing.T) {
	user := &models.User{ID: "s1", Email: "student@example.edu", Active: true, Role: models.RoleStudent}

	t.Run("provider disabled", func(t *testing.T) {
		svc := NewAuthService(&mockAuthRepo{userByEmail: user}, nil, nil, nil, testAuthConfig())
		_, err := svc.Exchange(context.Background(), models.ExchangeRequest{IDToken: "tok"})
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrProviderNotEnabled.Code, appErrors.FromError(err).Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		svc := NewAuthService(&mockAuthRepo{userByEmail: user}, &fakeVerifier{err: identity.ErrInvalidToken}, nil, nil, testAuthConfig())
		_, err := svc.Exchange(context.Background(), models.ExchangeRequest{IDToken: "tok"})
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
	})

	t.Run("unknown account", func(t *testing.T) {
		verifier := &fakeVerifier{identity: &identity.Identity{Email: "ghost@example.edu"}}
		svc := NewAuthService(&mockAuthRepo{}, verifier, nil, nil, testAuthConfig())
		_, err := svc.Exchange(context.Background(), models.ExchangeRequest{IDToken: "tok"})
		require.Error(t, err)
		assert.Equal(t, 401, appErrors.FromError(err).Status)
	})

	t.Run("success", func(t *testing.T) {
		repo := &mockAuthRepo{userByEmail: user}
		verifier := &fakeVerifier{identity: &identity.Identity{Email: "student@example.edu", ObjectID: "oid-1"}}
		svc := NewAuthService(repo, verifier, nil, nil, testAuthConfig())
		res, err := svc.Exchange(context.Background(), models.ExchangeRequest{IDToken: "tok"})
		require.NoError(t, err)
		assert.Equal(t, "s1", res.User.ID)
		require.Len(t, repo.auditLogs, 1)
		assert.Equal(t, models.AuditActionTokenExchange, repo.auditLogs[0].Action)
	})
}

func TestAuthServiceRefreshToken(t *testing.T) {
	repo := &mockAuthRepo{refreshTokens: make(map[string]*models.RefreshToken)}
	user := &models.User{ID: "u1", Email: "prof@example.edu", PasswordHash: "hash", Active: true, Role: models.RoleAdmin}
	repo.userByEmail = user
	repo.userByID = user
	token := &models.RefreshToken{ID: "rt1", UserID: user.ID, Token: "token", ExpiresAt: time.Now().Add(time.Hour)}
	repo.refreshTokens[token.Token] = token

	svc := NewAuthService(repo, nil, validator.New(), zap.NewNop(), testAuthConfig())

	res, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "token"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEqual(t, "token", res.RefreshToken)
	assert.True(t, repo.refreshTokens["token"].Revoked)

	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "token"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLogout(t *testing.T) {
	repo := &mockAuthRepo{refreshTokens: map[string]*models.RefreshToken{
		"mine":   {ID: "rt1", UserID: "u1", Token: "mine"},
		"theirs": {ID: "rt2", UserID: "u2", Token: "theirs"},
	}}
	svc := NewAuthService(repo, nil, nil, nil, testAuthConfig())

	err := svc.Logout(context.Background(), "theirs", "u1", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Logout(context.Background(), "mine", "u1", models.LoginRequest{}))
	assert.True(t, repo.refreshTokens["mine"].Revoked)
}

func TestAuthServiceMe(t *testing.T) {
	repo := &mockAuthRepo{userByID: &models.User{ID: "u1", Email: "prof@example.edu", FullName: "Prof", Role: models.RoleProfessor}}
	svc := NewAuthService(repo, nil, nil, nil, testAuthConfig())

	info, err := svc.Me(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Prof", info.FullName)

	repo.findByIDErr = sql.ErrNoRows
	_, err = svc.Me(context.Background(), "u1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceChangePassword(t *testing.T) {
	oldHash, _ := bcrypt.GenerateFromPassword([]byte("oldpassword"), bcrypt.MinCost)
	repo := &mockAuthRepo{userByEmail: &models.User{ID: "u1", PasswordHash: string(oldHash), Active: true}}
	svc := NewAuthService(repo, nil, validator.New(), zap.NewNop(), testAuthConfig())

	err := svc.ChangePassword(context.Background(), "u1", models.ChangePasswordRequest{OldPassword: "wrong", NewPassword: "newpassword"})
	require.Error(t, err)

	err = svc.ChangePassword(context.Background(), "u1", models.ChangePasswordRequest{OldPassword: "oldpassword", NewPassword: "newpassword"})
	require.NoError(t, err)
	assert.NotEqual(t, string(oldHash), repo.userByEmail.PasswordHash)
	assert.Equal(t, "u1", repo.revokedAllFor)
}

func TestValidateToken(t *testing.T) {
	svc := NewAuthService(&mockAuthRepo{}, nil, validator.New(), zap.NewNop(), testAuthConfig())
	user := &models.User{ID: "u1", Email: "prof@example.edu", Role: models.RoleAdmin}
	token, err := svc.generateAccessToken(user, time.Now().UTC())
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)

	other := NewAuthService(&mockAuthRepo{}, nil, nil, nil, AuthConfig{AccessTokenSecret: "other", AccessTokenExpiry: time.Hour})
	_, err = other.ValidateToken(token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
