package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"homeplanner/backend/pkg/jwt"
	"homeplanner/backend/pkg/response"
)

// JWTAuth JWT 认证中间件
// 从 Authorization: Bearer <token> 中提取并验证 Access Token，订阅 Token 不能访问 API
func JWTAuth(jwtMgr *jwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.Unauthorized(c, 10002, "缺少认证头")
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, 10002, "认证头格式无效")
			c.Abort()
			return
		}

		claims, err := jwtMgr.ParseToken(parts[1])
		if err != nil {
			response.Unauthorized(c, 10002, "Token 无效或已过期")
			c.Abort()
			return
		}

		if claims.TokenType != jwt.TokenTypeAccess {
			response.Unauthorized(c, 10002, "Token 类型无效")
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("house_id", claims.HouseID)

		c.Next()
	}
}

// MembershipChecker 判断用户是否属于家庭
type MembershipChecker func(ctx context.Context, houseID, userID string) (bool, error)

// HouseMember 家庭成员校验中间件
// Token 签发后成员可能已被移出家庭，每次请求按当前成员关系校验
func HouseMember(isMember MembershipChecker, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString("user_id")
		houseID := c.GetString("house_id")
		if userID == "" || houseID == "" {
			response.Unauthorized(c, 10002, "未认证")
			c.Abort()
			return
		}

		ok, err := isMember(c.Request.Context(), houseID, userID)
		if err != nil {
			logger.Error("校验家庭成员失败",
				zap.String("house_id", houseID),
				zap.String("user_id", userID),
				zap.Error(err),
			)
			response.InternalError(c)
			c.Abort()
			return
		}
		if !ok {
			response.Forbidden(c, 10003, "无权访问该家庭")
			c.Abort()
			return
		}

		c.Next()
	}
}
