package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultRefreshTimeout = 10 * time.Second

var (
	// ErrRefreshRejected indicates the platform refused the refresh token;
	// the session is expired for good and the user must sign in again.
	ErrRefreshRejected = errors.New("session: refresh rejected")

	errMissingStore      = errors.New("credential store is required")
	errMissingRefreshURL = errors.New("refresh url is required")
)

// ManagerConfig bundles the session manager's collaborators.
type ManagerConfig struct {
	Store      *Store
	RefreshURL string
	HTTPClient *http.Client
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Manager is the credentials collaborator: it hands out the opaque bearer
// token and performs silent reauthentication when asked. The sync core
// never inspects tokens beyond expiry gating.
type Manager struct {
	store      *Store
	refreshURL string
	httpClient *http.Client
	clock      func() time.Time
	logger     *zap.Logger

	mu     sync.Mutex
	access string
}

// NewManager constructs a Manager with validated configuration.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if strings.TrimSpace(cfg.RefreshURL) == "" {
		return nil, errMissingRefreshURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRefreshTimeout}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Manager{
		store:      cfg.Store,
		refreshURL: cfg.RefreshURL,
		httpClient: httpClient,
		clock:      clock,
		logger:     logger,
	}, nil
}

// Token returns the current access token, loading it from the state
// database on first use.
func (m *Manager) Token() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.access != "" {
		return m.access, nil
	}
	credentials, err := m.store.Load(context.Background())
	if err != nil {
		return "", err
	}
	m.access = credentials.AccessToken
	return m.access, nil
}

// Established reports whether a stored session exists and its access token
// has not yet expired locally. Gates the push channel's first connect.
func (m *Manager) Established(ctx context.Context) bool {
	credentials, err := m.store.Load(ctx)
	if err != nil {
		return false
	}
	claims, err := InspectToken(credentials.AccessToken)
	if err != nil {
		return false
	}
	return claims.Valid(m.clock().UTC())
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	} `json:"data"`
}

// Refresh exchanges the stored refresh token for a rotated pair and
// persists it. Called by the API client on auth-class responses.
func (m *Manager) Refresh(ctx context.Context) error {
	credentials, err := m.store.Load(ctx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(refreshRequest{RefreshToken: credentials.RefreshToken})
	if err != nil {
		return err
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, m.refreshURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := m.httpClient.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode == http.StatusUnauthorized || response.StatusCode == http.StatusForbidden {
		return ErrRefreshRejected
	}

	var decoded refreshResponse
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("decode refresh response: %w", err)
	}
	if !decoded.Success || decoded.Data.AccessToken == "" {
		return fmt.Errorf("%w: %s", ErrRefreshRejected, decoded.Message)
	}

	rotatedRefresh := decoded.Data.RefreshToken
	if rotatedRefresh == "" {
		rotatedRefresh = credentials.RefreshToken
	}
	if err := m.store.Save(ctx, decoded.Data.AccessToken, rotatedRefresh); err != nil {
		return err
	}

	m.mu.Lock()
	m.access = decoded.Data.AccessToken
	m.mu.Unlock()

	m.logger.Debug("session refreshed silently")
	return nil
}
