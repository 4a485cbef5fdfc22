package routing

import (
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"server-imago/internal/handlers"
	"server-imago/internal/images"
	"server-imago/internal/managers"
	"server-imago/internal/middleware"
	"server-imago/internal/schemas"
	"server-imago/internal/utils"
)

// InitRouter builds the gin engine with the common middleware chain and all
// API routes wired to their handlers.
func InitRouter(databaseMgr managers.DatabaseMgr, mailMgr managers.MailMgr, jwtMgr managers.JWTMgr,
	blacklist managers.BlacklistMgr, store *images.Store, verifyEmail bool) *gin.Engine {
	router := gin.New()
	setupCommonMiddleware(router)
	setupRoutes(router, databaseMgr, mailMgr, jwtMgr, blacklist, store, verifyEmail)

	return router
}

func setupCommonMiddleware(router *gin.Engine) {
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.InjectTrace())
	router.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"http://localhost:5173", "http://localhost:19000"},
		AllowMethods:  []string{"GET", "PATCH", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Accept, Authorization", "Content-Type"},
		ExposeHeaders: []string{"Content-Length", "Content-Type", "X-Correlation-ID"},
		MaxAge:        12 * time.Hour,
	}))
	router.Use(middleware.SanitizePath())
	router.Use(middleware.LogRequest())
}

func setupRoutes(router *gin.Engine, databaseMgr managers.DatabaseMgr, mailMgr managers.MailMgr,
	jwtMgr managers.JWTMgr, blacklist managers.BlacklistMgr, store *images.Store, verifyEmail bool) {
	// Set up version route
	router.GET("/", func(c *gin.Context) {
		apiVersion := os.Getenv("API_VERSION")
		if apiVersion == "" {
			apiVersion = "main:latest"
		}
		metadata := &schemas.MetadataDTO{
			ApiVersion: apiVersion,
			ApiName:    "Imago Server",
		}
		utils.WriteAndLogResponse(c, metadata, http.StatusOK)
	})

	// Set up health route
	router.GET("/health", func(c *gin.Context) {
		if err := databaseMgr.GetPool().Ping(c.Request.Context()); err != nil {
			c.String(http.StatusInternalServerError, "Database not responding")
			return
		}
		c.Status(http.StatusOK)
	})

	// Set up API routes
	apiRouter := router.Group("/api")
	{
		userHdl := handlers.NewUserHandler(databaseMgr, jwtMgr, mailMgr, blacklist, verifyEmail)

		// The confirmation link is public, it carries its own secret
		apiRouter.POST("/confirm/:"+utils.ConfirmationIdKey, userHdl.ConfirmUser)

		userRouter := apiRouter.Group("/users")
		userRoutes(userRouter, userHdl, jwtMgr)

		imageHdl := handlers.NewImageHandler(store)

		imageRouter := apiRouter.Group("/images")
		imageRouter.Use(jwtMgr.JWTMiddleware())
		imageRoutes(imageRouter, imageHdl)

		avatarRouter := apiRouter.Group("/avatar")
		avatarRoutes(avatarRouter, imageHdl, jwtMgr)
	}
}

func userRoutes(userRouter *gin.RouterGroup, userHdl handlers.UserHdl, jwtMgr managers.JWTMgr) {
	userRouter.POST("", middleware.ValidateAndSanitizeStruct[schemas.RegistrationRequest](), userHdl.RegisterUser)
	userRouter.POST("/login", middleware.ValidateAndSanitizeStruct[schemas.LoginRequest](), userHdl.LoginUser)
	userRouter.POST("/refresh", middleware.ValidateAndSanitizeStruct[schemas.RefreshTokenRequest](), userHdl.RefreshToken)
	userRouter.POST("/logout", jwtMgr.JWTMiddleware(), userHdl.LogoutUser)
	userRouter.POST("/set-password", jwtMgr.FreshJWTMiddleware(),
		middleware.ValidateAndSanitizeStruct[schemas.SetPasswordRequest](), userHdl.SetPassword)
	userRouter.POST("/:"+utils.UsernameKey+"/resend-confirmation", jwtMgr.JWTMiddleware(), userHdl.ResendConfirmation)
	// The following routes require the user to be authenticated
	userRouter.Use(jwtMgr.JWTMiddleware())
	userRouter.GET("/:"+utils.UserIdKey, userHdl.GetUser)
	userRouter.DELETE("/:"+utils.UserIdKey, userHdl.DeleteUser)
}

func imageRoutes(imageRouter *gin.RouterGroup, imageHdl handlers.ImageHdl) {
	imageRouter.POST("", imageHdl.UploadImage)
	imageRouter.GET("/:"+utils.FilenameKey, imageHdl.GetImage)
	imageRouter.DELETE("/:"+utils.FilenameKey, imageHdl.DeleteImage)
}

func avatarRoutes(avatarRouter *gin.RouterGroup, imageHdl handlers.ImageHdl, jwtMgr managers.JWTMgr) {
	// Fetching an avatar is public so clients can embed it without credentials
	avatarRouter.GET("/:"+utils.UserIdKey, imageHdl.GetAvatar)
	avatarRouter.PUT("", jwtMgr.JWTMiddleware(), imageHdl.UploadAvatar)
}
