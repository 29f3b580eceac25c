package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/campus-dev/sis-api/api/swagger"
	"github.com/campus-dev/sis-api/internal/handler"
	"github.com/campus-dev/sis-api/internal/middleware"
	"github.com/campus-dev/sis-api/internal/models"
	"github.com/campus-dev/sis-api/internal/repository"
	"github.com/campus-dev/sis-api/internal/service"
	"github.com/campus-dev/sis-api/migrations"
	"github.com/campus-dev/sis-api/pkg/cache"
	"github.com/campus-dev/sis-api/pkg/config"
	"github.com/campus-dev/sis-api/pkg/database"
	"github.com/campus-dev/sis-api/pkg/logger"
	corsmiddleware "github.com/campus-dev/sis-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campus-dev/sis-api/pkg/middleware/requestid"
)

// @title Campus SIS API
// @version 1.0.0
// @description Class scheduling, registration and grade management backend
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	if err := migrations.Up(db.DB); err != nil {
		logr.Sugar().Fatalw("failed to run migrations", "error", err)
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		// Cache is an optimization, the API stays up without it.
		logr.Sugar().Warnw("redis unavailable, catalog cache disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	validate := validator.New()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	termRepo := repository.NewTermRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	sectionRepo := repository.NewSectionRepository(db)
	slotRepo := repository.NewSlotRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	txManager := repository.NewTxManager(db)

	// Services.
	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, service.AccountsConfig{
		EmailDomain:           cfg.Accounts.EmailDomain,
		InitialPasswordLength: cfg.Accounts.InitialPasswordLength,
	}, validate, logr)
	termSvc := service.NewTermService(termRepo, txManager, validate, logr)
	subjectSvc := service.NewSubjectService(subjectRepo, cacheRepo, service.CatalogCacheConfig{
		Enabled: cfg.Catalog.CacheEnabled && redisClient != nil,
		TTL:     cfg.Catalog.CacheTTL,
	}, validate, logr)
	scheduleSvc := service.NewScheduleService(slotRepo, sectionRepo, termRepo, txManager, validate, logr)
	sectionSvc := service.NewSectionService(sectionRepo, slotRepo, termRepo, subjectRepo, enrollmentRepo, scheduleSvc, txManager, validate, logr)
	registrationSvc := service.NewRegistrationService(enrollmentRepo, sectionRepo, termRepo, slotRepo, subjectRepo, txManager, validate, logr)
	gradeSvc := service.NewGradeService(enrollmentRepo, sectionRepo, subjectRepo, txManager, validate, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, sectionRepo, termRepo, slotRepo, enrollmentRepo, validate, logr)
	exportSvc := service.NewExportService(gradeSvc, registrationSvc, sectionSvc, logr)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	termHandler := handler.NewTermHandler(termSvc)
	subjectHandler := handler.NewSubjectHandler(subjectSvc)
	sectionHandler := handler.NewSectionHandler(sectionSvc, metricsSvc)
	scheduleHandler := handler.NewScheduleHandler(scheduleSvc)
	registrationHandler := handler.NewRegistrationHandler(registrationSvc, userSvc, metricsSvc)
	gradeHandler := handler.NewGradeHandler(gradeSvc, userSvc)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc, userSvc)
	exportHandler := handler.NewExportHandler(exportSvc, userSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)

		authed := auth.Group("", middleware.JWT(authSvc))
		authed.POST("/logout", authHandler.Logout)
		authed.PUT("/password", authHandler.ChangePassword)
		authed.GET("/me", authHandler.Me)
	}

	protected := api.Group("", middleware.JWT(authSvc))

	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher)
	studentOnly := middleware.RequireRoles(models.RoleStudent)

	terms := protected.Group("/terms")
	{
		terms.GET("", termHandler.List)
		terms.GET("/active", termHandler.GetActive)
		terms.GET("/:id", termHandler.Get)
		terms.POST("", adminOnly, termHandler.Create)
		terms.PUT("/:id", adminOnly, termHandler.Update)
		terms.POST("/:id/registration/open", adminOnly, termHandler.OpenRegistration)
		terms.POST("/:id/registration/close", adminOnly, termHandler.CloseRegistration)
		terms.POST("/:id/close", adminOnly, termHandler.Close)
		terms.DELETE("/:id", adminOnly, termHandler.Delete)
	}

	subjects := protected.Group("/subjects")
	{
		subjects.GET("", subjectHandler.List)
		subjects.GET("/:id", subjectHandler.Get)
		subjects.POST("", adminOnly, subjectHandler.Create)
		subjects.PUT("/:id", adminOnly, subjectHandler.Update)
		subjects.PUT("/:id/components", adminOnly, subjectHandler.UpdateComponents)
		subjects.DELETE("/:id", adminOnly, subjectHandler.Delete)
	}

	sections := protected.Group("/sections")
	{
		sections.GET("", sectionHandler.List)
		sections.GET("/:id", sectionHandler.Get)
		sections.GET("/:id/slots", scheduleHandler.SectionSlots)
		sections.GET("/:id/roster", staff, registrationHandler.SectionRoster)
		sections.POST("", adminOnly, sectionHandler.Create)
		sections.PUT("/:id", adminOnly, sectionHandler.Update)
		sections.DELETE("/:id", adminOnly, sectionHandler.Delete)
		sections.POST("/:id/slots", adminOnly, sectionHandler.AddSlot)
		sections.DELETE("/:id/slots/:slotId", adminOnly, sectionHandler.RemoveSlot)
		sections.POST("/:id/lock", adminOnly, sectionHandler.Lock)
		sections.POST("/:id/unlock", adminOnly, sectionHandler.Unlock)
	}

	protected.POST("/schedule/check", adminOnly, scheduleHandler.Check)
	protected.GET("/slots/:slotId/dates", scheduleHandler.TeachingDates)

	registrations := protected.Group("/registrations", studentOnly)
	{
		registrations.POST("", registrationHandler.Register)
		registrations.GET("", registrationHandler.MyEnrollments)
		registrations.DELETE("/:id", registrationHandler.Drop)
	}
	protected.GET("/enrollments", adminOnly, registrationHandler.ListEnrollments)

	grades := protected.Group("/grades")
	{
		grades.PUT("/scores", staff, gradeHandler.RecordScore)
		grades.GET("/enrollments/:id/scores", staff, gradeHandler.Scores)
		grades.POST("/sections/:id/finalize", staff, gradeHandler.FinalizeSection)
		grades.GET("/sections/:id/stats", staff, gradeHandler.SectionStats)
		grades.GET("/transcript", studentOnly, gradeHandler.MyTranscript)
		grades.GET("/students/:id/transcript", adminOnly, gradeHandler.StudentTranscript)
	}

	attendance := protected.Group("/attendance")
	{
		attendance.POST("", staff, attendanceHandler.Record)
		attendance.GET("/sections/:id", staff, attendanceHandler.SectionOnDate)
		attendance.GET("/sections/:id/me", studentOnly, attendanceHandler.MyHistory)
	}

	users := protected.Group("/users", adminOnly)
	{
		users.POST("/teachers", userHandler.CreateTeacher)
		users.POST("/students", userHandler.CreateStudent)
		users.GET("/teachers", userHandler.ListTeachers)
		users.GET("/students", userHandler.ListStudents)
	}

	exports := protected.Group("/exports")
	{
		exports.GET("/transcript", studentOnly, exportHandler.MyTranscript)
		exports.GET("/students/:id/transcript", adminOnly, exportHandler.StudentTranscript)
		exports.GET("/sections/:id/grades", staff, exportHandler.SectionGradeSheet)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
