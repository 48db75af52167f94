// Package auth implements Google sign-in: it opens a server-side session and
// hands the UI a bearer token for API calls.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"jobfit-backend/internal/identity"
	"jobfit-backend/internal/users"
	sharedauth "jobfit-backend/internal/shared/auth"
	"jobfit-backend/internal/shared/server/respond"
	"jobfit-backend/internal/shared/telemetry"
)

const defaultUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// GoogleConfig configures the OAuth client and the session it opens.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	UIRedirect   string

	// Endpoint and UserInfoURL default to Google's.
	Endpoint    oauth2.Endpoint
	UserInfoURL string

	CookieName   string
	SessionTTL   time.Duration
	SecureCookie bool
}

// ProfileRecorder stores the OAuth profile on every login.
type ProfileRecorder interface {
	RecordLogin(ctx context.Context, p users.Profile) (users.User, error)
}

// GoogleService handles Google OAuth flows.
type GoogleService struct {
	oauthConfig *oauth2.Config
	userInfoURL string
	uiRedirect  string
	stateTTL    time.Duration
	stateStore  *stateStore

	sessions     identity.SessionStore
	profiles     ProfileRecorder
	signer       *sharedauth.Signer
	cookieName   string
	sessionTTL   time.Duration
	secureCookie bool
	now          func() time.Time
}

// NewGoogleService builds a GoogleService.
func NewGoogleService(cfg GoogleConfig, sessions identity.SessionStore, signer *sharedauth.Signer) *GoogleService {
	endpoint := cfg.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	userInfoURL := cfg.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = defaultUserInfoURL
	}
	cookieName := cfg.CookieName
	if cookieName == "" {
		cookieName = "session_id"
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = identity.SessionIdentityTTL
	}
	return &GoogleService{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: endpoint,
		},
		userInfoURL:  userInfoURL,
		uiRedirect:   cfg.UIRedirect,
		stateTTL:     5 * time.Minute,
		stateStore:   newStateStore(),
		sessions:     sessions,
		signer:       signer,
		cookieName:   cookieName,
		sessionTTL:   ttl,
		secureCookie: cfg.SecureCookie,
		now:          time.Now,
	}
}

// WithProfiles records the Google profile on login. Failures are logged only.
func (s *GoogleService) WithProfiles(p ProfileRecorder) *GoogleService {
	s.profiles = p
	return s
}

// RegisterRoutes attaches Google auth routes. None of them require a caller identity.
func (s *GoogleService) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/auth/google/start", s.start)
	rg.GET("/auth/google/callback", s.callback)
	rg.POST("/auth/logout", s.logout)
}

func (s *GoogleService) start(c *gin.Context) {
	if s.oauthConfig.ClientID == "" || s.oauthConfig.ClientSecret == "" || s.oauthConfig.RedirectURL == "" {
		respond.Error(c, http.StatusInternalServerError, "auth_not_configured", "Google auth not configured", nil)
		return
	}

	state := uuid.NewString()
	s.stateStore.put(state, s.now().Add(s.stateTTL))

	c.Redirect(http.StatusFound, s.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOffline))
}

func (s *GoogleService) callback(c *gin.Context) {
	state := c.Query("state")
	code := c.Query("code")
	if state == "" || code == "" {
		respond.Error(c, http.StatusBadRequest, respond.CodeInvalidRequest, "missing state or code", nil)
		return
	}
	if !s.stateStore.consume(state, s.now()) {
		respond.Error(c, http.StatusBadRequest, respond.CodeInvalidRequest, "invalid or expired state", nil)
		return
	}

	ctx := c.Request.Context()
	token, err := s.oauthConfig.Exchange(ctx, code)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, respond.CodeInvalidRequest, "failed to exchange code", nil)
		return
	}

	userInfo, err := s.fetchUserInfo(ctx, token)
	if err != nil || userInfo.Sub == "" {
		respond.Error(c, http.StatusBadGateway, "auth_failed", "failed to fetch user profile", nil)
		return
	}

	profile := users.Profile{
		Provider: "google",
		Subject:  userInfo.Sub,
		Email:    userInfo.Email,
		Name:     userInfo.Name,
		Picture:  userInfo.Picture,
	}
	userID := profile.OwnerID()
	if s.profiles != nil {
		if _, err := s.profiles.RecordLogin(ctx, profile); err != nil {
			telemetry.Warn("auth.profile_record_failed", map[string]any{"user_id": userID, "error": err.Error()})
		}
	}
	session := identity.NewSessionRecord(userID, userInfo.Email, s.sessionTTL, s.now())
	if err := s.sessions.Create(ctx, session); err != nil {
		telemetry.Error("auth.session_create_failed", map[string]any{"user_id": userID, "error": err.Error()})
		respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "failed to create session", nil)
		return
	}

	bearer, err := s.signer.Sign(sharedauth.Claims{
		Email:            userInfo.Email,
		Name:             userInfo.Name,
		Picture:          userInfo.Picture,
		TokenType:        "access",
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID},
	}, s.sessionTTL)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "failed to issue token", nil)
		return
	}

	redirectURL, err := appendToken(s.uiRedirect, bearer)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "failed to redirect", nil)
		return
	}

	s.setSessionCookie(c, session.ID, int(s.sessionTTL/time.Second))
	telemetry.Info("auth.login", map[string]any{"user_id": userID, "session_id": session.ID})
	c.Redirect(http.StatusFound, redirectURL)
}

func (s *GoogleService) logout(c *gin.Context) {
	if sid, err := c.Cookie(s.cookieName); err == nil && sid != "" {
		if err := s.sessions.Delete(c.Request.Context(), sid); err != nil {
			respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "failed to end session", nil)
			return
		}
	}
	s.setSessionCookie(c, "", -1)
	respond.OK(c, gin.H{"message": "Logged out"})
}

func (s *GoogleService) setSessionCookie(c *gin.Context, value string, maxAge int) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     s.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

type googleUserInfo struct {
	Sub     string `json:"sub"`
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

func (s *GoogleService) fetchUserInfo(ctx context.Context, token *oauth2.Token) (googleUserInfo, error) {
	client := s.oauthConfig.Client(ctx, token)
	resp, err := client.Get(s.userInfoURL)
	if err != nil {
		return googleUserInfo{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return googleUserInfo{}, fmt.Errorf("userinfo status %d", resp.StatusCode)
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return googleUserInfo{}, err
	}

	// v2 userinfo returns "id" rather than "sub".
	if info.Sub == "" {
		info.Sub = info.ID
	}
	return info, nil
}

type stateStore struct {
	items map[string]time.Time
	mu    sync.Mutex
}

func newStateStore() *stateStore {
	return &stateStore{items: make(map[string]time.Time)}
}

func (s *stateStore) put(state string, exp time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[state] = exp
	for k, e := range s.items {
		if exp.Sub(e) > time.Hour {
			delete(s.items, k)
		}
	}
}

func (s *stateStore) consume(state string, now time.Time) bool {
	s.mu.Lock()
	exp, ok := s.items[state]
	if ok {
		delete(s.items, state)
	}
	s.mu.Unlock()
	return ok && !now.After(exp)
}

func appendToken(rawURL, token string) (string, error) {
	if rawURL == "" {
		return "", errors.New("redirect url required")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
