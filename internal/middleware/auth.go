package middleware

import (
	"context"
	"fmt"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/hertz-contrib/jwt"

	pkgerrors "DeadOrNot/pkg/errors"
	"DeadOrNot/pkg/response"
	"DeadOrNot/pkg/token"
)

const (
	IdentityKey = token.IdentityKey
)

var (
	authMiddleware *jwt.HertzJWTMiddleware
)

// DeviceAuthorizer 校验令牌中的设备仍是账本绑定的设备
type DeviceAuthorizer interface {
	Authorize(ctx context.Context, deviceID string) error
}

func initAuthMiddleware() error {
	// 使用 token 包中共享的生成器
	sharedGenerator := token.GetGenerator()
	if sharedGenerator == nil {
		return fmt.Errorf("token generator not initialized, call token.Init() first")
	}

	authMiddleware = &jwt.HertzJWTMiddleware{
		Realm:       "DeadOrNot API",
		Key:         sharedGenerator.Key,
		Timeout:     sharedGenerator.Timeout,
		MaxRefresh:  sharedGenerator.MaxRefresh,
		IdentityKey: sharedGenerator.IdentityKey,
		TimeFunc:    sharedGenerator.TimeFunc,

		IdentityHandler: func(ctx context.Context, c *app.RequestContext) interface{} {
			claims := jwt.ExtractClaims(ctx, c)
			deviceID, ok := claims[IdentityKey].(string)
			if !ok || deviceID == "" {
				return nil
			}
			return deviceID
		},

		Unauthorized: func(ctx context.Context, c *app.RequestContext, code int, message string) {
			c.JSON(code, map[string]interface{}{
				"error": map[string]interface{}{
					"code":    pkgerrors.Unauthorized.Code,
					"message": message,
				},
			})
		},

		TokenLookup:   "header: Authorization, query: token",
		TokenHeadName: "Bearer",
	}

	return nil
}

func AuthMiddleware() app.HandlerFunc {
	if authMiddleware == nil {
		panic("AuthMiddleware not initialized, call Init() first")
	}
	return authMiddleware.MiddlewareFunc()
}

// DeviceBindingMiddleware 在 JWT 校验之后执行，拒绝非绑定设备
func DeviceBindingMiddleware(authorizer DeviceAuthorizer) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		deviceID, ok := GetDeviceID(ctx, c)
		if !ok {
			response.Error(ctx, c, pkgerrors.Unauthorized)
			c.Abort()
			return
		}

		if err := authorizer.Authorize(ctx, deviceID); err != nil {
			response.Error(ctx, c, err)
			c.Abort()
			return
		}

		c.Next(ctx)
	}
}

// GetDeviceID 从请求上下文中获取设备 ID
func GetDeviceID(ctx context.Context, c *app.RequestContext) (string, bool) {
	value, exists := c.Get(IdentityKey)
	if !exists {
		return "", false
	}

	id, ok := value.(string)
	if !ok || id == "" {
		return "", false
	}

	return id, true
}
