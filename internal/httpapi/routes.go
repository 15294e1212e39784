package httpapi

import "github.com/gin-gonic/gin"

// Register wires the API routes. recordsMW and billsMW run before the
// respective handlers (auth, RBAC); either may be empty.
func (h Handlers) Register(r gin.IRouter, recordsMW, billsMW []gin.HandlerFunc) {
	useJSONFieldNames()

	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)

	r.POST("/records", append(append([]gin.HandlerFunc{}, recordsMW...), h.CreateRecord)...)
	r.GET("/bills/:subscriber", append(append([]gin.HandlerFunc{}, billsMW...), h.GetBill)...)
}
