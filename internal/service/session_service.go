package service

import (
	"context"
	"errors"
	"time"

	"assistant-proxy-be/internal/dto"
	"assistant-proxy-be/internal/pkg/logger"
	"assistant-proxy-be/internal/pkg/serverutils"
	"assistant-proxy-be/pkg/identity"
)

// ErrSessionUnavailable means the session storage could not be reached.
var ErrSessionUnavailable = errors.New("session storage unavailable")

// SessionScoper hands out the storage of one browser session.
type SessionScoper interface {
	Scope(sessionKey string) identity.SessionStorage
}

type ISessionService interface {
	CreateSession(ctx context.Context, browserSession string) (*dto.CreateSessionResponse, error)
}

type sessionService struct {
	scoper      SessionScoper
	tokenSecret string
	tokenTTL    time.Duration
	logger      logger.ILogger
}

func NewSessionService(scoper SessionScoper, tokenSecret string, tokenTTL time.Duration, logger logger.ILogger) ISessionService {
	if tokenTTL <= 0 {
		tokenTTL = 12 * time.Hour
	}
	return &sessionService{
		scoper:      scoper,
		tokenSecret: tokenSecret,
		tokenTTL:    tokenTTL,
		logger:      logger,
	}
}

// CreateSession returns the correlation id of browserSession, creating it on
// first call. A token bound to that id is attached when signing is enabled.
func (s *sessionService) CreateSession(ctx context.Context, browserSession string) (*dto.CreateSessionResponse, error) {
	if browserSession == "" {
		return nil, &serverutils.ValidationError{Fields: []string{"x-browser-session is required"}}
	}

	manager := identity.NewManager(s.scoper.Scope(browserSession))
	userId, ok := manager.GetOrCreateID(ctx)
	if !ok {
		s.logger.Error("SESSION", "Session storage unavailable", nil)
		return nil, ErrSessionUnavailable
	}

	res := &dto.CreateSessionResponse{UserId: userId}
	if s.tokenSecret == "" {
		return res, nil
	}

	token, err := serverutils.IssueSessionToken(s.tokenSecret, userId, s.tokenTTL)
	if err != nil {
		return nil, err
	}
	expiresAt := time.Now().Add(s.tokenTTL)
	res.Token = token
	res.ExpiresAt = &expiresAt

	return res, nil
}
