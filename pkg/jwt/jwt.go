package jwt

import (
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"homeplanner/backend/config"
)

var (
	ErrTokenExpired = errors.New("token 已过期")
	ErrTokenInvalid = errors.New("token 无效")
)

// Token 类型
const (
	TokenTypeAccess = "access"
	TokenTypeFeed   = "feed" // 日历订阅链接，只读、长期有效
)

// Claims 自定义 JWT 声明
type Claims struct {
	UserID    string `json:"user_id"`
	HouseID   string `json:"house_id"`
	TokenType string `json:"token_type"` // "access" | "feed"
	jwtv5.RegisteredClaims
}

// Manager JWT 管理器
type Manager struct {
	secret         []byte
	issuer         string
	accessTokenTTL time.Duration
	feedTokenTTL   time.Duration
}

// NewManager 创建 JWT 管理器
func NewManager(cfg *config.AuthConfig) *Manager {
	issuer := cfg.Issuer
	if issuer == "" {
		issuer = "homeplanner"
	}
	return &Manager{
		secret:         []byte(cfg.JWTSecret),
		issuer:         issuer,
		accessTokenTTL: cfg.AccessTokenTTL,
		feedTokenTTL:   cfg.FeedTokenTTL,
	}
}

// GenerateAccessToken 生成 Access Token
// 正式环境由外部认证服务签发，这里供运维命令与测试使用
func (m *Manager) GenerateAccessToken(userID, houseID string) (string, error) {
	return m.generate(userID, houseID, TokenTypeAccess, m.accessTokenTTL)
}

// GenerateFeedToken 生成日历订阅 Token
func (m *Manager) GenerateFeedToken(userID, houseID string) (string, error) {
	return m.generate(userID, houseID, TokenTypeFeed, m.feedTokenTTL)
}

func (m *Manager) generate(userID, houseID, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:    userID,
		HouseID:   houseID,
		TokenType: tokenType,
		RegisteredClaims: jwtv5.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   userID,
			IssuedAt:  jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(now.Add(ttl)),
			Issuer:    m.issuer,
		},
	}

	token := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// ParseToken 解析并验证 Token
func (m *Manager) ParseToken(tokenString string) (*Claims, error) {
	token, err := jwtv5.ParseWithClaims(tokenString, &Claims{}, func(t *jwtv5.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtv5.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return m.secret, nil
	}, jwtv5.WithIssuer(m.issuer))

	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.UserID == "" || claims.HouseID == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// ParseFeedToken 解析日历订阅 Token，其他类型的 Token 一律无效
func (m *Manager) ParseFeedToken(tokenString string) (*Claims, error) {
	claims, err := m.ParseToken(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeFeed {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
