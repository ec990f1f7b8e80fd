package auth

import "github.com/gin-gonic/gin"

const (
	userIDKey   = "userID"
	sysAdminKey = "isSysAdmin"
)

// GetUserID returns the authenticated user's ID or empty string.
func GetUserID(c *gin.Context) string {
	if v, ok := c.Get(userIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// SetUserID stores the authenticated user ID on the request context.
func SetUserID(c *gin.Context, userID string) {
	c.Set(userIDKey, userID)
}

// SetSystemAdmin records whether the authenticated user is a system admin.
func SetSystemAdmin(c *gin.Context, isAdmin bool) {
	c.Set(sysAdminKey, isAdmin)
}

// IsSystemAdmin reports the flag stored by SetSystemAdmin; false when unknown.
func IsSystemAdmin(c *gin.Context) bool {
	return c.GetBool(sysAdminKey)
}
