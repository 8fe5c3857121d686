package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lexsign/internal/db/models"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidSession     = errors.New("invalid session token")
	ErrAccountInactive    = errors.New("account deactivated")
	ErrUserExists         = errors.New("username or email already taken")
)

const sessionTTL = 24 * time.Hour

type SessionData struct {
	UserID    uint
	ExpiresAt time.Time
	IPAddress string
	UserAgent string
}

type sessionStore struct {
	sessions map[string]SessionData
	mutex    sync.RWMutex
}

// AuthService authenticates users and manages in-memory session tokens.
// Sessions do not survive a restart; users simply log in again.
type AuthService struct {
	db       *gorm.DB
	store    *sessionStore
	logger   *zap.Logger
	stopChan chan struct{}
}

func NewAuthService(db *gorm.DB, logger *zap.Logger) *AuthService {
	as := &AuthService{
		db:       db,
		store:    &sessionStore{sessions: make(map[string]SessionData)},
		logger:   logger.With(zap.String("service", "auth_service")),
		stopChan: make(chan struct{}),
	}
	go as.backgroundCleanup()
	return as
}

func (as *AuthService) backgroundCleanup() {
	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-as.stopChan:
			return
		case <-ticker.C:
			as.cleanupExpiredSessions()
		}
	}
}

func (as *AuthService) cleanupExpiredSessions() {
	as.store.mutex.Lock()
	defer as.store.mutex.Unlock()
	now := time.Now()
	for token, session := range as.store.sessions {
		if now.After(session.ExpiresAt) {
			delete(as.store.sessions, token)
		}
	}
}

// Close stops the cleanup goroutine.
func (as *AuthService) Close() {
	close(as.stopChan)
}

// Register creates a user with a bcrypt-hashed password.
func (as *AuthService) Register(ctx context.Context, username, email, password, fullName string) (*models.User, error) {
	var existing models.User
	err := as.db.WithContext(ctx).
		Where("username = ? OR email = ?", username, email).
		First(&existing).Error
	if err == nil {
		return nil, ErrUserExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("checking existing user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	user := &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		FullName:     fullName,
		Active:       true,
	}
	if err := as.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	as.logger.Info("user registered", zap.String("username", username))
	return user, nil
}

// Login verifies credentials and issues a session token.
func (as *AuthService) Login(ctx context.Context, username, password, ipAddress, userAgent string) (string, *models.User, error) {
	var user models.User
	err := as.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, fmt.Errorf("loading user: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		as.logger.Warn("invalid password", zap.String("username", username))
		return "", nil, ErrInvalidCredentials
	}
	if !user.Active {
		return "", nil, ErrAccountInactive
	}

	token := uuid.New().String()
	as.store.mutex.Lock()
	as.store.sessions[token] = SessionData{
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(sessionTTL),
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}
	as.store.mutex.Unlock()

	now := time.Now()
	as.db.WithContext(ctx).Model(&user).Update("last_login", &now)

	as.logger.Info("session created",
		zap.Uint("user_id", user.ID),
		zap.String("token", token[:8]+"..."),
		zap.String("ip_address", ipAddress))
	return token, &user, nil
}

// IsValidSession resolves a token to its user ID.
func (as *AuthService) IsValidSession(token string) (uint, bool) {
	as.store.mutex.RLock()
	session, exists := as.store.sessions[token]
	as.store.mutex.RUnlock()
	if !exists || time.Now().After(session.ExpiresAt) {
		return 0, false
	}
	return session.UserID, true
}

// Logout invalidates a session token.
func (as *AuthService) Logout(token string) {
	as.store.mutex.Lock()
	delete(as.store.sessions, token)
	as.store.mutex.Unlock()
}
