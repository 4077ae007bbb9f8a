package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"realtime-service/internal/apperror"
	"realtime-service/internal/domain"
)

// TokenVerifier turns a bearer token into the principal behind it.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*domain.Principal, error)
}

type tokenValidationResponse struct {
	UserID  string `json:"userId"`
	Role    string `json:"role"`
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

// AuthClient validates tokens against auth-service and falls back to local
// HS256 verification when the service is unset or unreachable.
type AuthClient struct {
	authBaseURL string
	secretKey   string
	httpClient  *http.Client
	logger      *zap.Logger
}

func NewAuthClient(authBaseURL, secretKey string, timeout time.Duration, logger *zap.Logger) *AuthClient {
	return &AuthClient{
		authBaseURL: strings.TrimRight(authBaseURL, "/"),
		secretKey:   secretKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

func (c *AuthClient) Verify(ctx context.Context, token string) (*domain.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, apperror.Authentication("token required")
	}

	if c.authBaseURL != "" {
		principal, err := c.validateWithAuthService(ctx, token)
		if err == nil {
			return principal, nil
		}
		c.logger.Debug("Auth service validation failed, falling back to local", zap.Error(err))
	}

	if c.secretKey == "" {
		return nil, apperror.Authentication("invalid token")
	}
	principal, err := c.validateLocally(token)
	if err != nil {
		return nil, apperror.Authentication("invalid token")
	}
	return principal, nil
}

func (c *AuthClient) validateWithAuthService(ctx context.Context, token string) (*domain.Principal, error) {
	url := fmt.Sprintf("%s/api/auth/validate", c.authBaseURL)

	jsonBody, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("validation failed: status=%d, body=%s", resp.StatusCode, string(body))
	}

	var result tokenValidationResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !result.Valid || result.UserID == "" {
		return nil, fmt.Errorf("token rejected: %s", result.Message)
	}

	return &domain.Principal{UserID: result.UserID, Role: result.Role}, nil
}

func (c *AuthClient) validateLocally(tokenString string) (*domain.Principal, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(c.secretKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, jwt.ErrTokenInvalidClaims
	}

	var userID string
	for _, key := range []string{"sub", "userId", "user_id"} {
		if val, ok := claims[key].(string); ok && val != "" {
			userID = val
			break
		}
	}
	if userID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}

	role, _ := claims["role"].(string)
	return &domain.Principal{UserID: userID, Role: role}, nil
}
