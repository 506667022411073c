package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/qaforum/config"
	"github.com/cppla/qaforum/controllers"
	"github.com/cppla/qaforum/middleware"
	"github.com/cppla/qaforum/utils"
	"github.com/cppla/qaforum/views"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(db *gorm.DB) (*gin.Engine, error) {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	gl, err := utils.NewRollingFileLogger(cfg, cfg.GinPath)
	if err == nil {
		r.Use(utils.RequestID())
		r.Use(ginzap.GinzapWithConfig(gl, &ginzap.Config{
			TimeFormat: time.RFC3339,
			UTC:        true,
			Context:    utils.AccessLogFields,
		}))
		r.Use(ginzap.RecoveryWithZap(gl, false))
	} else {
		// fallback to default recovery if logger failed to init
		r.Use(utils.RequestID())
		r.Use(gin.Recovery())
	}

	tmpl, err := views.Load()
	if err != nil {
		return nil, err
	}
	r.SetHTMLTemplate(tmpl)

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length", utils.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		// wildcard origins cannot carry cookies
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}

	r.Use(cors.New(corsCfg))
	r.Use(middleware.Authenticate(db))
	r.Use(middleware.PageViewRecorder(db))

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute)
	limited := middleware.RateLimitMiddleware(limiter)

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})

	questionController := controllers.NewQuestionController(db)
	answerController := controllers.NewAnswerController(db)
	commentController := controllers.NewCommentController(db)
	authController := controllers.NewAuthController(db)
	statsController := controllers.NewStatsController(db)
	adminController := controllers.NewAdminController(db)

	// Front page, detail, results and voting
	r.GET("/", questionController.Index)
	r.GET("/:question_id/", questionController.Detail)
	r.GET("/:question_id/answers/", questionController.Answers)
	r.POST("/:question_id/vote/", limited, questionController.Vote)

	r.GET("/questions/", questionController.List)
	r.GET("/questions/:id/", questionController.Show)
	r.GET("/answers/", answerController.List)
	r.GET("/answers/:id/", answerController.Show)
	r.GET("/comments/:id/", commentController.Show)

	editing := r.Group("")
	editing.Use(middleware.LoginRequired())
	for _, route := range []struct {
		path    string
		handler gin.HandlerFunc
	}{
		{"/questions/new/", questionController.Create},
		{"/questions/:id/edit/", questionController.Edit},
		{"/answers/new/", answerController.Create},
		{"/answers/:id/edit/", answerController.Edit},
		{"/comments/new/", commentController.Create},
		{"/comments/:id/edit/", commentController.Edit},
	} {
		editing.GET(route.path, route.handler)
		editing.POST(route.path, limited, route.handler)
	}

	r.GET("/login/", authController.LoginForm)
	r.POST("/login/", limited, authController.Login)
	r.GET("/register/", authController.RegisterForm)
	r.POST("/register/", limited, authController.Register)
	r.POST("/logout/", authController.Logout)
	r.GET("/oauth/:provider/login/", limited, authController.OAuthRedirect)
	r.GET("/oauth/:provider/callback/", limited, authController.OAuthCallback)

	api := r.Group("/api/v1")
	api.GET("/stats", statsController.GetStats)
	api.GET("/questions/:id/stats", statsController.GetQuestionStats)
	api.GET("/me", middleware.AuthRequired(), authController.Me)

	admin := api.Group("/admin")
	admin.Use(middleware.AuthRequired(), middleware.AdminRequired(), limited)
	admin.GET("/users/:id/permissions", adminController.GetPermissions)
	admin.PUT("/users/:id/permissions", adminController.SetPermissions)

	r.NoRoute(func(ctx *gin.Context) {
		if strings.HasPrefix(ctx.Request.URL.Path, "/api/") {
			utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
			return
		}
		controllers.NotFound(ctx)
	})

	return r, nil
}
