package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/triptrack/triptrack-api/internal/config"
	"github.com/triptrack/triptrack-api/internal/models"
	"github.com/triptrack/triptrack-api/internal/notifier"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	TokenDuration        = 24 * time.Hour
	VerifyTokenDuration  = 72 * time.Hour
	verifyTokenPurpose   = "email_verify"
	sessionTokenPurpose  = "session"
	AuthCookieName       = "auth_token"
	minimumPasswordChars = 8
)

type AuthHandler struct {
	cfg    *config.Config
	db     *gorm.DB
	mailer notifier.Notifier
}

func NewAuthHandler(cfg *config.Config, db *gorm.DB, mailer notifier.Notifier) *AuthHandler {
	return &AuthHandler{cfg: cfg, db: db, mailer: mailer}
}

// AuthInput is embedded by every protected request. Either the session
// cookie or an API key header authenticates the caller.
type AuthInput struct {
	Cookie string `header:"Cookie" doc:"Session cookie" required:"false"`
	APIKey string `header:"X-API-KEY" doc:"API key" required:"false"`
}

// Authorize resolves the caller's user ID from an API key or the session
// cookie, in that order.
func (h *AuthHandler) Authorize(ctx context.Context, input AuthInput) (uint, error) {
	if input.APIKey != "" {
		var keyModel models.APIKey
		if err := h.db.Where("key = ?", input.APIKey).First(&keyModel).Error; err == nil {
			if keyModel.ExpiresAt != nil && time.Now().After(*keyModel.ExpiresAt) {
				return 0, huma.Error401Unauthorized("API key expired")
			}
			h.db.Model(&keyModel).Update("last_used_at", time.Now())
			return keyModel.UserID, nil
		}
	}

	tokenString := cookieValue(input.Cookie, AuthCookieName)
	if tokenString == "" {
		return 0, huma.Error401Unauthorized("No token found")
	}

	userID, err := h.parseSessionToken(tokenString)
	if err != nil {
		return 0, huma.Error401Unauthorized("Invalid token")
	}
	return userID, nil
}

// RequireStaff authorizes the caller and checks the staff flag.
func (h *AuthHandler) RequireStaff(ctx context.Context, input AuthInput) (*models.User, error) {
	userID, err := h.Authorize(ctx, input)
	if err != nil {
		return nil, err
	}
	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		return nil, huma.Error404NotFound("User not found")
	}
	if !user.IsStaff {
		return nil, huma.Error403Forbidden("Staff access required")
	}
	return &user, nil
}

func cookieValue(header, name string) string {
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, name+"=") {
			return strings.TrimPrefix(part, name+"=")
		}
	}
	return ""
}

// ---------------------------------------------------------------------
// Tokens
// ---------------------------------------------------------------------

func (h *AuthHandler) GenerateToken(userID uint) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"purpose": sessionTokenPurpose,
		"exp":     time.Now().Add(TokenDuration).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.cfg.JWTSecret))
}

func (h *AuthHandler) parseSessionToken(tokenString string) (uint, error) {
	claims, err := h.parseClaims(tokenString)
	if err != nil {
		return 0, err
	}
	if purpose, _ := claims["purpose"].(string); purpose != "" && purpose != sessionTokenPurpose {
		return 0, fmt.Errorf("not a session token")
	}
	userIDFloat, ok := claims["user_id"].(float64)
	if !ok {
		return 0, fmt.Errorf("invalid token claims")
	}
	return uint(userIDFloat), nil
}

// GenerateVerificationToken signs a short-lived token binding the user ID
// to the email it was sent to, so a later address change invalidates it.
func (h *AuthHandler) GenerateVerificationToken(user *models.User) (string, error) {
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"email":   user.Email,
		"purpose": verifyTokenPurpose,
		"exp":     time.Now().Add(VerifyTokenDuration).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.cfg.JWTSecret))
}

func (h *AuthHandler) parseVerificationToken(tokenString string) (uint, string, error) {
	claims, err := h.parseClaims(tokenString)
	if err != nil {
		return 0, "", err
	}
	if purpose, _ := claims["purpose"].(string); purpose != verifyTokenPurpose {
		return 0, "", fmt.Errorf("not a verification token")
	}
	userIDFloat, ok := claims["user_id"].(float64)
	if !ok {
		return 0, "", fmt.Errorf("invalid token claims")
	}
	email, _ := claims["email"].(string)
	return uint(userIDFloat), email, nil
}

func (h *AuthHandler) parseClaims(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(h.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

func (h *AuthHandler) sessionCookie(token string) string {
	cookie := &http.Cookie{
		Name:     AuthCookieName,
		Value:    token,
		Expires:  time.Now().Add(TokenDuration),
		HttpOnly: true,
		Path:     "/",
	}
	return cookie.String()
}

// ---------------------------------------------------------------------
// Verification mail
// ---------------------------------------------------------------------

// SendVerificationEmail is best-effort: a delivery failure is logged and
// must never fail the surrounding request.
func (h *AuthHandler) SendVerificationEmail(user *models.User) {
	if h.mailer == nil || user.Email == "" {
		return
	}
	token, err := h.GenerateVerificationToken(user)
	if err != nil {
		log.Printf("Failed to generate verification token for %s: %v", user.Email, err)
		return
	}
	verifyURL := strings.TrimRight(h.cfg.AppBaseURL, "/") + "/auth/verify/" + token

	name := user.Username
	if name == "" {
		name = strings.SplitN(user.Email, "@", 2)[0]
	}
	text := fmt.Sprintf(
		"Hi %s,\n\nPlease verify your email for TripTrack by opening the link below:\n\n%s\n\nThe link is valid for 3 days.\n\n- TripTrack",
		name, verifyURL,
	)
	html := fmt.Sprintf(
		"<p>Hi %s,</p><p>Please <a href=%q>verify your email</a> for TripTrack.</p><p>The link is valid for 3 days.</p><p>- TripTrack</p>",
		name, verifyURL,
	)
	if err := h.mailer.Send("Verify your email for TripTrack", []string{user.Email}, text, html); err != nil {
		log.Printf("Failed to send verification email to %s: %v", user.Email, err)
	}
}

// ---------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------

type SignupRequest struct {
	Body struct {
		Username string `json:"username" doc:"Unique username" required:"true"`
		Email    string `json:"email" doc:"Email address, verified before joining a trip" required:"true"`
		Password string `json:"password" doc:"Password, 8 characters minimum" required:"true"`
	}
}

type SessionResponse struct {
	SetCookie string `header:"Set-Cookie"`
	Body      struct {
		Message string `json:"message"`
		UserID  uint   `json:"user_id"`
	}
}

func (h *AuthHandler) HandleSignup(ctx context.Context, input *SignupRequest) (*SessionResponse, error) {
	username := strings.TrimSpace(input.Body.Username)
	email := models.NormalizeEmail(input.Body.Email)

	if username == "" {
		return nil, huma.Error422UnprocessableEntity("Username is required")
	}
	if !strings.Contains(email, "@") {
		return nil, huma.Error422UnprocessableEntity("Enter a valid email address")
	}
	if len(input.Body.Password) < minimumPasswordChars {
		return nil, huma.Error422UnprocessableEntity("Password must be at least 8 characters")
	}

	var count int64
	if err := h.db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, huma.Error500InternalServerError("Database error")
	}
	if count > 0 {
		return nil, huma.Error409Conflict("This email is already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Body.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to hash password")
	}

	user := models.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := h.db.Create(&user).Error; err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, huma.Error409Conflict("Username or email is already registered")
		}
		return nil, huma.Error500InternalServerError("Failed to create user")
	}

	h.SendVerificationEmail(&user)

	token, err := h.GenerateToken(user.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to generate token")
	}

	res := &SessionResponse{SetCookie: h.sessionCookie(token)}
	res.Body.Message = "Account created. We've sent a verification email — please verify to join the trip."
	res.Body.UserID = user.ID
	return res, nil
}

type LoginRequest struct {
	Body struct {
		Email    string `json:"email" required:"true"`
		Password string `json:"password" required:"true"`
	}
}

func (h *AuthHandler) HandleLogin(ctx context.Context, input *LoginRequest) (*SessionResponse, error) {
	email := models.NormalizeEmail(input.Body.Email)

	var user models.User
	if err := h.db.Where("email = ?", email).First(&user).Error; err != nil {
		return nil, huma.Error401Unauthorized("Invalid email or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Body.Password)); err != nil {
		return nil, huma.Error401Unauthorized("Invalid email or password")
	}

	token, err := h.GenerateToken(user.ID)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to generate token")
	}

	res := &SessionResponse{SetCookie: h.sessionCookie(token)}
	res.Body.Message = fmt.Sprintf("Welcome %s! You are logged in.", user.Username)
	res.Body.UserID = user.ID
	return res, nil
}

type VerifyEmailRequest struct {
	Token string `path:"token"`
}

type VerifyEmailResponse struct {
	Body struct {
		Message string `json:"message"`
	}
}

func (h *AuthHandler) HandleVerifyEmail(ctx context.Context, input *VerifyEmailRequest) (*VerifyEmailResponse, error) {
	userID, email, err := h.parseVerificationToken(input.Token)
	if err != nil {
		return nil, huma.Error400BadRequest("Invalid or expired verification link")
	}

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		return nil, huma.Error400BadRequest("User not found")
	}

	if user.Email != models.NormalizeEmail(email) {
		return nil, huma.Error400BadRequest("Verification link does not match")
	}

	res := &VerifyEmailResponse{}
	if user.EmailVerified {
		res.Body.Message = "Your email is already verified."
		return res, nil
	}

	if err := h.db.Model(&user).Update("email_verified", true).Error; err != nil {
		return nil, huma.Error500InternalServerError("Failed to update user")
	}
	res.Body.Message = "Email verified successfully!"
	return res, nil
}

type ResendVerificationRequest struct {
	AuthInput
	Body struct {
		NewEmail string `json:"new_email,omitempty" doc:"Optionally replace the unverified email before resending"`
	}
}

type ResendVerificationResponse struct {
	Body struct {
		Message string `json:"message"`
	}
}

func (h *AuthHandler) HandleResendVerification(ctx context.Context, input *ResendVerificationRequest) (*ResendVerificationResponse, error) {
	userID, err := h.Authorize(ctx, input.AuthInput)
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		return nil, huma.Error404NotFound("User not found")
	}

	res := &ResendVerificationResponse{}
	if user.EmailVerified {
		res.Body.Message = "Your email is already verified."
		return res, nil
	}

	if newEmail := models.NormalizeEmail(input.Body.NewEmail); newEmail != "" && newEmail != user.Email {
		if !strings.Contains(newEmail, "@") {
			return nil, huma.Error422UnprocessableEntity("Enter a valid email address")
		}
		var count int64
		if err := h.db.Model(&models.User{}).Where("email = ? AND id <> ?", newEmail, user.ID).Count(&count).Error; err != nil {
			return nil, huma.Error500InternalServerError("Database error")
		}
		if count > 0 {
			return nil, huma.Error409Conflict("This email is already in use")
		}
		user.Email = newEmail
		user.EmailVerified = false
		if err := h.db.Model(&user).Updates(map[string]interface{}{
			"email":          user.Email,
			"email_verified": false,
		}).Error; err != nil {
			return nil, huma.Error500InternalServerError("Failed to update email")
		}
	}

	h.SendVerificationEmail(&user)
	res.Body.Message = fmt.Sprintf("Verification email sent to %s.", user.Email)
	return res, nil
}

type MeInput struct {
	AuthInput
}

type MeResponse struct {
	Body struct {
		ID            uint           `json:"id"`
		Username      string         `json:"username"`
		Email         string         `json:"email"`
		EmailVerified bool           `json:"email_verified"`
		IsStaff       bool           `json:"is_staff"`
		Profile       models.Profile `json:"profile"`
	}
}

func (h *AuthHandler) HandleMe(ctx context.Context, input *MeInput) (*MeResponse, error) {
	userID, err := h.Authorize(ctx, input.AuthInput)
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		return nil, huma.Error404NotFound("User not found")
	}

	res := &MeResponse{}
	res.Body.ID = user.ID
	res.Body.Username = user.Username
	res.Body.Email = user.Email
	res.Body.EmailVerified = user.EmailVerified
	res.Body.IsStaff = user.IsStaff
	res.Body.Profile = user.Profile
	return res, nil
}

// FindUser loads a user by ID. Shared by handlers that already hold an
// authorized user ID.
func (h *AuthHandler) FindUser(userID uint) (*models.User, error) {
	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, huma.Error404NotFound("User not found")
		}
		return nil, huma.Error500InternalServerError("Database error")
	}
	return &user, nil
}
