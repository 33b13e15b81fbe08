package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"weighbot/models"
	"weighbot/pkg/export"
	"weighbot/pkg/store"
)

const maxExtractUpload = 10 << 20

func setupRoutes(r *gin.Engine) {
	r.GET("/health", healthHandler)
	r.POST("/login", loginHandler)
	r.POST("/refresh", refreshHandler)
	r.POST("/revoke_refresh", revokeRefreshHandler)
	r.POST("/webhook", webhookHandler)

	authGroup := r.Group("")
	authGroup.Use(jwtAuthMiddleware())
	authGroup.GET("/me", meHandler)
	authGroup.GET("/weighings", listWeighingsHandler)
	authGroup.GET("/weighings/export", exportWeighingsHandler)
	authGroup.GET("/vehicles/:truck", vehicleHandler)
	authGroup.GET("/drivers", listDriversHandler)
	authGroup.POST("/extract", extractHandler)
	authGroup.POST("/operators", requireRole(models.RoleAdministrator), createOperatorHandler)
}

func healthHandler(c *gin.Context) {
	dbStatus := "ok"
	code := http.StatusOK
	if err := st.Ping(c.Request.Context()); err != nil {
		dbStatus = err.Error()
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":    "ok",
		"service":   "weighbot",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"database":  dbStatus,
	})
}

func meHandler(c *gin.Context) {
	username := c.GetString("username")
	if username == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "context missing username"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": username, "role": c.GetString("role")})
}

func loginHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	op, err := st.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	tokenString, err := signAccessToken(op, accessTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	refreshToken, err := createAndStoreRefreshToken(ctx, op.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "login successful", "token": tokenString, "refresh_token": refreshToken})
}

// refreshHandler exchanges a refresh token for a new access token and rotates the refresh token.
func refreshHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	rt, err := st.RefreshToken(ctx, hashToken(req.RefreshToken))
	if err != nil || rt.Revoked || time.Now().After(rt.ExpiresAt) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired refresh token"})
		return
	}
	op, err := st.OperatorByID(ctx, rt.OperatorID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "operator not found"})
		return
	}
	tokenString, err := signAccessToken(op, refreshAccessTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	if err := st.RevokeRefreshToken(ctx, rt.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to rotate refresh token"})
		return
	}
	newRT, err := createAndStoreRefreshToken(ctx, op.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to rotate refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": tokenString, "refresh_token": newRT})
}

// revokeRefreshHandler revokes a refresh token, e.g. on logout.
func revokeRefreshHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	rt, err := st.RefreshToken(ctx, hashToken(req.RefreshToken))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "refresh token not found"})
		return
	}
	if err := st.RevokeRefreshToken(ctx, rt.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "refresh token revoked"})
}

func createOperatorHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
		Role     string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Role == "" {
		req.Role = models.RoleOperator
	}
	op, err := st.CreateOperator(c.Request.Context(), req.Username, req.Password, req.Role)
	switch {
	case errors.Is(err, store.ErrExists):
		c.JSON(http.StatusConflict, gin.H{"error": "operator already exists"})
		return
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": op.ID, "username": op.Username, "role": req.Role})
}

// weighingFilter reads truck, driver, from, to (YYYY-MM-DD, to inclusive) and limit.
func weighingFilter(c *gin.Context, defLimit int) (store.WeighingFilter, error) {
	f := store.WeighingFilter{
		Truck:        c.Query("truck"),
		DriverChatID: c.Query("driver"),
		Limit:        defLimit,
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return f, fmt.Errorf("invalid limit %q", v)
		}
		f.Limit = n
	}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return f, fmt.Errorf("invalid from %q", v)
		}
		f.From = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			return f, fmt.Errorf("invalid to %q", v)
		}
		f.To = t.AddDate(0, 0, 1)
	}
	return f, nil
}

func listWeighingsHandler(c *gin.Context) {
	f, err := weighingFilter(c, 50)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	items, err := st.Weighings(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, items)
}

func exportWeighingsHandler(c *gin.Context) {
	f, err := weighingFilter(c, 5000)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	items, err := st.Weighings(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	data, err := export.WeighingsXLSX(items, time.Local)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}
	name := fmt.Sprintf("weighings_%s.xlsx", time.Now().Format("20060102_150405"))
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

func vehicleHandler(c *gin.Context) {
	ctx := c.Request.Context()
	truck := strings.ToUpper(strings.TrimSpace(c.Param("truck")))
	v, err := st.Vehicle(ctx, truck)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "vehicle not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	history, err := st.VehicleHistory(ctx, truck, 10)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	resp := gin.H{"vehicle": v, "weighings": history}
	if stats, err := st.VehicleStats(ctx, truck); err == nil {
		resp["stats"] = stats
	}
	c.JSON(http.StatusOK, resp)
}

func listDriversHandler(c *gin.Context) {
	items, err := st.Drivers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, items)
}

// extractHandler runs the weight pipeline over an uploaded photo.
func extractHandler(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file missing"})
		return
	}
	if file.Size > maxExtractUpload {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file too large (max 10MB)"})
		return
	}
	dir := filepath.Join(uploadBaseDir(), "api")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "mkdir failed"})
		return
	}
	fullPath := filepath.Join(dir, uuid.NewString()+strings.ToLower(filepath.Ext(file.Filename)))
	if err := c.SaveUploadedFile(file, fullPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return
	}
	res := extractor.Extract(c.Request.Context(), fullPath)
	log.Info().Str("operator", c.GetString("username")).Str("file", file.Filename).
		Bool("found", res.Found).Float64("weight", res.Weight).Msg("api extract")
	c.JSON(http.StatusOK, res)
}
