package token

import (
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/hertz-contrib/jwt"

	"DeadOrNot/config"
	"DeadOrNot/pkg/errors"
)

const (
	IdentityKey = "device_id"
)

var (
	// 这个实例会被 middleware 和 token 包共同使用
	sharedGenerator *jwt.HertzJWTMiddleware
)

func Init() error {
	return InitWith(config.Cfg.JWTSecret, time.Duration(config.Cfg.JWTExpireMinutes)*time.Minute)
}

// InitWith 使用指定密钥初始化，测试直接调用
func InitWith(secret string, timeout time.Duration) error {
	var err error
	sharedGenerator, err = jwt.New(&jwt.HertzJWTMiddleware{
		Key:         []byte(secret),
		Timeout:     timeout,
		MaxRefresh:  timeout,
		IdentityKey: IdentityKey,
		TimeFunc:    time.Now,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize token generator: %w", err)
	}

	return nil
}

// GetGenerator 获取共享的 token 生成器（供 middleware 使用）
func GetGenerator() *jwt.HertzJWTMiddleware {
	return sharedGenerator
}

// GenerateDeviceToken 为绑定设备签发 access token
func GenerateDeviceToken(deviceID string) (accessToken string, expiresAt time.Time, err error) {
	if sharedGenerator == nil {
		return "", time.Time{}, errors.ErrTokenGeneratorNotInitialized
	}

	now := sharedGenerator.TimeFunc()
	expiresAt = now.Add(sharedGenerator.Timeout)

	claims := jwtv5.MapClaims{
		IdentityKey: deviceID,
		"iat":       now.Unix(),
		"exp":       expiresAt.Unix(),
		"orig_iat":  now.Unix(),
	}

	tokenObj := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	accessToken, err = tokenObj.SignedString(sharedGenerator.Key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate access token: %w", err)
	}

	return accessToken, expiresAt, nil
}

// ParseDeviceToken 校验 token 并返回设备 ID
func ParseDeviceToken(tokenString string) (string, error) {
	if sharedGenerator == nil {
		return "", errors.ErrTokenGeneratorNotInitialized
	}

	token, err := jwtv5.ParseWithClaims(tokenString, jwtv5.MapClaims{}, func(token *jwtv5.Token) (interface{}, error) {
		if token.Method != jwtv5.SigningMethodHS256 {
			return nil, fmt.Errorf("%w: %v, expected HS256", errors.ErrUnexpectedSigningMethod, token.Header["alg"])
		}
		return sharedGenerator.Key, nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return "", errors.ErrInvalidToken
	}

	claims, ok := token.Claims.(jwtv5.MapClaims)
	if !ok {
		return "", errors.ErrInvalidTokenClaims
	}

	deviceID, ok := claims[IdentityKey].(string)
	if !ok || deviceID == "" {
		return "", errors.ErrDeviceIDNotFound
	}

	return deviceID, nil
}
