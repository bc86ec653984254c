package cors

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

var (
	allowHeaders = strings.Join([]string{"Authorization", "Content-Type", "X-Request-ID"}, ", ")
	allowMethods = strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions}, ", ")
)

// New returns a CORS middleware for the mobile client and its web preview.
// An empty origin list allows any origin.
func New(allowedOrigins []string) gin.HandlerFunc {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		origins[normalize(origin)] = struct{}{}
	}

	return func(c *gin.Context) {
		header := c.Writer.Header()
		origin := c.GetHeader("Origin")
		switch {
		case origin == "" && len(origins) == 0:
			header.Set("Access-Control-Allow-Origin", "*")
		case origin != "" && allowed(origins, origin):
			header.Set("Access-Control-Allow-Origin", origin)
			header.Set("Access-Control-Allow-Credentials", "true")
		}

		header.Add("Vary", "Origin")
		header.Set("Access-Control-Allow-Headers", allowHeaders)
		header.Set("Access-Control-Allow-Methods", allowMethods)
		header.Set("Access-Control-Expose-Headers", "X-Request-ID, Content-Disposition")
		header.Set("Access-Control-Max-Age", "600")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func allowed(origins map[string]struct{}, origin string) bool {
	if len(origins) == 0 {
		return true
	}
	_, ok := origins[normalize(origin)]
	return ok
}

func normalize(origin string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
}
