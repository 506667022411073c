package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
	"gorm.io/gorm"

	"github.com/cppla/qaforum/auth"
	"github.com/cppla/qaforum/config"
	"github.com/cppla/qaforum/middleware"
	"github.com/cppla/qaforum/models"
	"github.com/cppla/qaforum/utils"
)

// DefaultPermissions are granted to every newly created account.
var DefaultPermissions = []string{auth.AddQuestion, auth.AddAnswer, auth.AddComment}

const invalidCredentials = "Please enter a correct username and password."

// AuthController handles login, registration and third-party sign in.
type AuthController struct {
	db *gorm.DB
}

// NewAuthController creates an AuthController.
func NewAuthController(db *gorm.DB) *AuthController {
	return &AuthController{db: db}
}

// LoginForm renders the login page.
func (a *AuthController) LoginForm(ctx *gin.Context) {
	a.renderLogin(ctx, http.StatusOK, "", ctx.Query("next"), "")
}

// Login verifies user credentials, sets the session cookie and redirects to next.
func (a *AuthController) Login(ctx *gin.Context) {
	username := strings.TrimSpace(ctx.PostForm("username"))
	password := ctx.PostForm("password")
	next := ctx.PostForm("next")

	var user models.User
	if err := a.db.Where("username = ?", username).First(&user).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			serverError(ctx, "failed to load user", err)
			return
		}
		a.renderLogin(ctx, http.StatusOK, username, next, invalidCredentials)
		return
	}
	if !utils.CheckPassword(user.PasswordHash, password) {
		a.renderLogin(ctx, http.StatusOK, username, next, invalidCredentials)
		return
	}

	if !a.startSession(ctx, user) {
		return
	}
	utils.Sugar.Infow("user logged in", "user_id", user.ID, "username", user.Username)
	ctx.Redirect(http.StatusFound, safeNext(next))
}

// RegisterForm renders the sign-up page.
func (a *AuthController) RegisterForm(ctx *gin.Context) {
	render(ctx, http.StatusOK, "register.html", "Register", gin.H{})
}

// Register creates a local account with a bcrypt hash and signs it in.
func (a *AuthController) Register(ctx *gin.Context) {
	username := strings.TrimSpace(ctx.PostForm("username"))
	email := strings.TrimSpace(ctx.PostForm("email"))
	password := ctx.PostForm("password")

	fail := func(msg string) {
		render(ctx, http.StatusOK, "register.html", "Register", gin.H{
			"Username":     username,
			"Email":        email,
			"ErrorMessage": msg,
		})
	}

	if l := len([]rune(username)); l < 3 || l > 64 || !validUsername(username) {
		fail("Usernames are 3-64 characters of letters, digits, '-', '_' or '.'.")
		return
	}
	if len(password) < utils.MinPasswordLength {
		fail(fmt.Sprintf("Passwords must be at least %d characters.", utils.MinPasswordLength))
		return
	}
	if password != ctx.PostForm("confirm") {
		fail("The two password fields didn't match.")
		return
	}

	var count int64
	if err := a.db.Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		serverError(ctx, "failed to check username", err)
		return
	}
	if count > 0 {
		fail("A user with that username already exists.")
		return
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		serverError(ctx, "failed to hash password", err)
		return
	}
	user := models.User{Username: username, Email: email, PasswordHash: hash, Provider: "local"}
	if err := a.createWithDefaults(&user); err != nil {
		serverError(ctx, "failed to create user", err)
		return
	}

	if !a.startSession(ctx, user) {
		return
	}
	utils.Sugar.Infow("user registered", "user_id", user.ID, "username", user.Username)
	ctx.Redirect(http.StatusFound, "/")
}

// Logout revokes the session token until its expiry and clears the cookie.
func (a *AuthController) Logout(ctx *gin.Context) {
	if claims, ok := middleware.CurrentClaims(ctx); ok {
		utils.BlacklistToken(claims.ID, claims.ExpiresAtOrDefault())
	}
	a.setCookie(ctx, "", -1)
	ctx.Redirect(http.StatusFound, "/")
}

// Me returns the current identity and its permissions.
func (a *AuthController) Me(ctx *gin.Context) {
	identity := middleware.CurrentIdentity(ctx)
	utils.Success(ctx, gin.H{
		"id":          identity.UserID,
		"username":    identity.Username,
		"is_admin":    identity.Admin,
		"permissions": identity.Permissions(),
	})
}

// OAuthRedirect sends the browser to the provider's authorization page.
func (a *AuthController) OAuthRedirect(ctx *gin.Context) {
	cfg, err := oauthConfig(ctx.Param("provider"))
	if err != nil {
		renderError(ctx, http.StatusBadRequest, err.Error())
		return
	}

	state := uuid.NewString()
	utils.SaveState(state, 10*time.Minute)
	ctx.Redirect(http.StatusFound, cfg.AuthCodeURL(state))
}

// OAuthCallback exchanges the authorization code for a user identity and signs it in.
func (a *AuthController) OAuthCallback(ctx *gin.Context) {
	provider := strings.ToLower(ctx.Param("provider"))
	code := ctx.Query("code")
	state := ctx.Query("state")

	if code == "" || state == "" {
		renderError(ctx, http.StatusBadRequest, "Missing code or state.")
		return
	}
	if !utils.ConsumeState(state) {
		renderError(ctx, http.StatusBadRequest, "Invalid or expired login attempt, please try again.")
		return
	}

	cfg, err := oauthConfig(provider)
	if err != nil {
		renderError(ctx, http.StatusBadRequest, err.Error())
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx.Request.Context(), 10*time.Second)
	defer cancel()
	token, err := cfg.Exchange(reqCtx, code)
	if err != nil {
		utils.Sugar.Warnw("oauth code exchange failed", "provider", provider, "err", err)
		renderError(ctx, http.StatusBadRequest, "Failed to sign in with "+provider+".")
		return
	}

	info, err := fetchOAuthUser(reqCtx, cfg.Client(reqCtx, token), provider)
	if err != nil {
		serverError(ctx, "failed to fetch oauth profile", err)
		return
	}

	user, err := a.findOrCreateOAuthUser(provider, info)
	if err != nil {
		serverError(ctx, "failed to persist oauth user", err)
		return
	}

	if !a.startSession(ctx, *user) {
		return
	}
	ctx.Redirect(http.StatusFound, "/")
}

func (a *AuthController) renderLogin(ctx *gin.Context, status int, username, next, errMsg string) {
	render(ctx, status, "login.html", "Log in", gin.H{
		"Username":     username,
		"Next":         next,
		"ErrorMessage": errMsg,
		"Providers":    configuredProviders(),
	})
}

// startSession issues a token and stores it in the session cookie. It answers 500 itself on failure.
func (a *AuthController) startSession(ctx *gin.Context, user models.User) bool {
	token, err := utils.GenerateToken(user.ID, user.Username)
	if err != nil {
		serverError(ctx, "failed to generate token", err)
		return false
	}
	a.setCookie(ctx, token, int(utils.TokenTTL().Seconds()))
	return true
}

func (a *AuthController) setCookie(ctx *gin.Context, value string, maxAge int) {
	ctx.SetSameSite(http.SameSiteLaxMode)
	ctx.SetCookie(middleware.TokenCookie, value, maxAge, "/", "", config.Get().CookieSecure, true)
}

// createWithDefaults inserts user and grants DefaultPermissions in one transaction.
func (a *AuthController) createWithDefaults(user *models.User) error {
	return a.db.Transaction(func(tx *gorm.DB) error {
		var perms []models.Permission
		if err := tx.Where("codename IN ?", DefaultPermissions).Find(&perms).Error; err != nil {
			return err
		}
		user.Permissions = perms
		return tx.Create(user).Error
	})
}

type oauthUser struct {
	ID       string
	Username string
	Email    string
}

func (a *AuthController) findOrCreateOAuthUser(provider string, data *oauthUser) (*models.User, error) {
	var user models.User
	err := a.db.Where("provider = ? AND provider_id = ?", provider, data.ID).First(&user).Error
	if err == nil {
		if email := strings.TrimSpace(data.Email); email != "" && email != user.Email {
			if err := a.db.Model(&user).Update("email", email).Error; err != nil {
				return nil, err
			}
		}
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	username, err := a.ensureUniqueUsername(data.Username, provider, data.ID)
	if err != nil {
		return nil, err
	}
	user = models.User{
		Username:   username,
		Email:      strings.TrimSpace(data.Email),
		Provider:   provider,
		ProviderID: data.ID,
	}
	if err := a.createWithDefaults(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (a *AuthController) ensureUniqueUsername(base, provider, id string) (string, error) {
	base = sanitizeUsername(base)
	if base == "" {
		base = sanitizeUsername(provider + "_" + id)
	}
	if len(base) < 3 {
		base = "user_" + id
	}

	candidate := base
	for suffix := 1; ; suffix++ {
		var count int64
		if err := a.db.Model(&models.User{}).Where("username = ?", candidate).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s_%d", base, suffix)
	}
}

func oauthConfig(provider string) (*oauth2.Config, error) {
	cfg := config.Get()
	redirect := func(p string) string {
		return fmt.Sprintf("%s/oauth/%s/callback/", cfg.OAuthRedirectBase, p)
	}
	switch strings.ToLower(provider) {
	case "github":
		if cfg.GitHubClientID == "" || cfg.GitHubClientSecret == "" {
			return nil, fmt.Errorf("github login is not configured")
		}
		return &oauth2.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  redirect("github"),
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		}, nil
	case "google":
		if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" {
			return nil, fmt.Errorf("google login is not configured")
		}
		return &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  redirect("google"),
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     google.Endpoint,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func configuredProviders() []string {
	var out []string
	for _, p := range []string{"github", "google"} {
		if _, err := oauthConfig(p); err == nil {
			out = append(out, p)
		}
	}
	return out
}

// fetchOAuthUser reads the provider profile with an authorized client.
func fetchOAuthUser(ctx context.Context, client *http.Client, provider string) (*oauthUser, error) {
	switch provider {
	case "github":
		var payload struct {
			ID    int64  `json:"id"`
			Login string `json:"login"`
			Email string `json:"email"`
		}
		if err := getJSON(ctx, client, "https://api.github.com/user", &payload); err != nil {
			return nil, err
		}
		return &oauthUser{ID: fmt.Sprintf("%d", payload.ID), Username: payload.Login, Email: payload.Email}, nil
	case "google":
		var payload struct {
			ID    string `json:"id"`
			Email string `json:"email"`
			Name  string `json:"name"`
		}
		if err := getJSON(ctx, client, "https://www.googleapis.com/oauth2/v2/userinfo", &payload); err != nil {
			return nil, err
		}
		name := payload.Name
		if at := strings.Index(payload.Email, "@"); name == "" && at > 0 {
			name = payload.Email[:at]
		}
		return &oauthUser{ID: payload.ID, Username: name, Email: payload.Email}, nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

func getJSON(ctx context.Context, client *http.Client, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func validUsername(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r == '-' || r == '_' || r == '.':
		default:
			return false
		}
	}
	return true
}

func sanitizeUsername(input string) string {
	input = strings.ToLower(strings.TrimSpace(input))
	var builder strings.Builder
	for _, r := range input {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			builder.WriteRune(r)
		case r == '_' || r == '-' || r == '.' || r == ' ':
			builder.WriteRune('_')
		}
	}
	return strings.Trim(builder.String(), "_")
}
