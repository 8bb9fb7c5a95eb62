package handler

import (
	"github.com/gin-gonic/gin"

	"homeplanner/backend/pkg/response"
)

// MustGetUserID 从 Gin 上下文中安全提取 user_id。
// 如果 JWT 中间件未正确注入 user_id，返回 false 并写入 401 响应。
// 调用方应在 ok=false 时直接 return。
func MustGetUserID(c *gin.Context) (string, bool) {
	return mustGetString(c, "user_id")
}

// MustGetHouseID 从 Gin 上下文中安全提取 house_id。
func MustGetHouseID(c *gin.Context) (string, bool) {
	return mustGetString(c, "house_id")
}

// MustGetIdentity 同时提取 user_id 与 house_id
func MustGetIdentity(c *gin.Context) (userID, houseID string, ok bool) {
	if userID, ok = MustGetUserID(c); !ok {
		return "", "", false
	}
	if houseID, ok = MustGetHouseID(c); !ok {
		return "", "", false
	}
	return userID, houseID, true
}

func mustGetString(c *gin.Context, key string) (string, bool) {
	v, exists := c.Get(key)
	if !exists {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	return s, true
}
