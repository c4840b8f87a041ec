package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/attendease-api/internal/middleware"
	"github.com/noah-isme/attendease-api/internal/models"
	"github.com/noah-isme/attendease-api/pkg/config"
	"github.com/noah-isme/attendease-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/attendease-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/attendease-api/pkg/middleware/requestid"
)

func newRouter(cfg *config.Config, app *application, logr *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(app.metrics, "/health", "/ready", "/metrics"))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", app.metricsH.Health)
	r.GET("/ready", app.metricsH.Ready)
	r.GET("/metrics", app.metricsH.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	staff := middleware.RequireRoles(models.RoleProfessor, models.RoleAdmin)
	admin := middleware.RequireRoles(models.RoleAdmin)
	student := middleware.RequireRoles(models.RoleStudent)

	// browsers cannot set headers on websocket handshakes
	r.GET("/ws/sessions/:id", middleware.QueryJWT(app.auth), staff, app.realtimeH.Subscribe)

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", app.authH.Login)
	auth.POST("/exchange", app.authH.Exchange)
	auth.POST("/refresh", app.authH.Refresh)

	// signed links carry their own authorisation; a bearer token only attributes the audit entry
	api.GET("/export/download/:token", middleware.OptionalJWT(app.auth), middleware.Audit(app.users, "EXPORT_DOWNLOAD", "export"), app.exportH.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(app.auth))

	secured.GET("/auth/me", app.authH.Me)
	secured.POST("/auth/logout", app.authH.Logout)
	secured.POST("/auth/change-password", app.authH.ChangePassword)
	secured.GET("/admin/metrics", admin, app.metricsH.Snapshot)

	courses := secured.Group("/courses")
	courses.GET("", staff, app.courseH.List)
	courses.POST("", staff, middleware.Audit(app.users, "COURSE_CREATE", "course"), app.courseH.Create)
	courses.GET("/professor/:professorId", middleware.RBAC(string(models.RoleAdmin), "SELF"), app.courseH.ProfessorCourses)
	courses.GET("/student/:studentId", middleware.RBAC(string(models.RoleProfessor), string(models.RoleAdmin), "SELF"), app.courseH.StudentCourses)
	courses.GET("/:id", staff, app.courseH.Get)
	courses.PUT("/:id", staff, middleware.Audit(app.users, "COURSE_UPDATE", "course", "id"), app.courseH.Update)
	courses.DELETE("/:id", admin, middleware.Audit(app.users, "COURSE_DELETE", "course", "id"), app.courseH.Delete)
	courses.GET("/:id/students", staff, app.courseH.Students)
	courses.POST("/:id/enroll", staff, middleware.Audit(app.users, "COURSE_ENROLL", "course", "id"), app.courseH.Enroll)
	courses.DELETE("/:id/enroll/:studentId", staff, middleware.Audit(app.users, "COURSE_UNENROLL", "course", "id"), app.courseH.Unenroll)

	sessions := secured.Group("/sessions", staff)
	sessions.POST("/start", middleware.Audit(app.users, "SESSION_START", "session"), app.sessionH.Start)
	sessions.GET("/active/:courseId", app.sessionH.Active)
	sessions.GET("/history/:courseId", app.sessionH.History)
	sessions.GET("/completed", app.sessionH.Completed)
	sessions.GET("/:id", app.sessionH.Get)
	sessions.POST("/:id/end", middleware.Audit(app.users, "SESSION_END", "session", "id"), app.sessionH.End)
	sessions.PUT("/:id/meeting", app.sessionH.LinkMeeting)
	sessions.POST("/:id/online-sync", middleware.Audit(app.users, "SESSION_ONLINE_SYNC", "session", "id"), app.onlineH.Sync)
	sessions.DELETE("/:id", admin, middleware.Audit(app.users, "SESSION_DELETE", "session", "id"), app.sessionH.Delete)

	attendance := secured.Group("/attendance")
	attendance.POST("/record", staff, app.attendanceH.Record)
	attendance.POST("/qr", staff, app.checkInH.Generate)
	attendance.POST("/qr/check-in", student, middleware.Audit(app.users, "ATTENDANCE_QR_CHECKIN", "attendance"), app.checkInH.CheckIn)
	attendance.GET("/session/:sessionId", staff, app.attendanceH.SessionAttendance)
	attendance.GET("/session/:sessionId/summary", staff, app.attendanceH.Summary)
	attendance.GET("/student/:studentId", middleware.RBAC(string(models.RoleProfessor), string(models.RoleAdmin), "SELF"), app.attendanceH.StudentHistory)
	attendance.PUT("/:id", staff, middleware.Audit(app.users, "ATTENDANCE_UPDATE", "attendance", "id"), app.attendanceH.Update)
	attendance.DELETE("/:id", staff, middleware.Audit(app.users, "ATTENDANCE_DELETE", "attendance", "id"), app.attendanceH.Delete)

	online := secured.Group("/attendance/online", staff)
	online.GET("/status", app.onlineH.Status)
	online.GET("/:meetingId", app.onlineH.Roster)

	recognition := secured.Group("/facial-recognition", staff)
	recognition.GET("/camera/list", app.recognizeH.Cameras)
	recognition.GET("/camera/status", app.recognizeH.CameraStatus)
	recognition.POST("/camera/start", app.recognizeH.StartCamera)
	recognition.POST("/camera/stop", app.recognizeH.StopCamera)
	recognition.GET("/camera/frame", app.recognizeH.Frame)
	recognition.POST("/clear-trackers", app.recognizeH.ClearTrackers)
	recognition.POST("/process-frame", app.frameLimit.Middleware(), app.recognizeH.ProcessFrame)

	exports := secured.Group("/export", staff)
	exports.GET("/session/:sessionId/csv", app.exportH.SessionCSV)
	exports.GET("/session/:sessionId/pdf", app.exportH.SessionPDF)
	exports.GET("/session/:sessionId/summary", app.exportH.SessionSummary)
	exports.POST("/bulk/csv", app.exportH.BulkCSV)
	exports.POST("/bulk/link", app.exportH.BulkLink)

	me := secured.Group("/me", student)
	me.GET("/profile", app.studentH.Profile)
	me.PUT("/profile", app.studentH.UpdateProfile)
	me.GET("/courses", app.studentH.MyCourses)
	me.GET("/attendance", app.studentH.MyAttendance)

	return r
}
