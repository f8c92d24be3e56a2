package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/studyhall/studyhall/internal/chat"
	"github.com/studyhall/studyhall/internal/config"
	"github.com/studyhall/studyhall/internal/database"
	"github.com/studyhall/studyhall/internal/stats"
)

type Server struct {
	log            *log.Logger
	db             database.Repository
	mux            *http.Server
	cs             *chat.ChatServer
	stats          stats.StatsProvider
	signingKey     []byte
	passcode       string
	uploadDir      string
	allowedOrigins []string
}

func NewServer(mux *http.ServeMux, logger *log.Logger, cs *chat.ChatServer, db database.Repository, sp stats.StatsProvider, cfg *config.Config) *Server {
	s := &Server{
		log:            logger,
		db:             db,
		cs:             cs,
		stats:          sp,
		signingKey:     cfg.SigningKey,
		passcode:       cfg.RegistrationPasscode,
		uploadDir:      cfg.UploadDir,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.Handle("GET /api/auth/session", s.authMiddleware(s.session))
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.Handle("GET /api/account", s.authMiddleware(s.account))
	mux.Handle("PUT /api/account/status", s.authMiddleware(s.updateStatus))
	mux.Handle("GET /api/student/home", s.authMiddleware(s.studentHome))
	mux.Handle("GET /api/teacher/home", s.authMiddleware(s.teacherHome))
	mux.Handle("GET /api/students", s.authMiddleware(s.searchStudents))
	mux.Handle("GET /api/search", s.authMiddleware(s.search))
	mux.Handle("POST /api/courses", s.authMiddleware(s.createCourse))
	mux.Handle("GET /api/courses/{id}", s.authMiddleware(s.getCourse))
	mux.Handle("POST /api/courses/{id}/modules", s.authMiddleware(s.addModuleToCourse))
	mux.Handle("POST /api/courses/{id}/enrol", s.authMiddleware(s.enrolCourse))
	mux.Handle("POST /api/modules", s.authMiddleware(s.createModule))
	mux.Handle("GET /api/modules/{id}", s.authMiddleware(s.getModule))
	mux.Handle("POST /api/modules/{id}/chat", s.authMiddleware(s.toggleChat))
	mux.Handle("POST /api/modules/{id}/enrol", s.authMiddleware(s.enrolModule))
	mux.Handle("PUT /api/modules/{id}/deadline", s.authMiddleware(s.setDeadline))
	mux.Handle("PUT /api/modules/{id}/feedback", s.authMiddleware(s.editFeedback))
	mux.Handle("PUT /api/modules/{id}/students/{student_id}/score", s.authMiddleware(s.setScore))
	mux.Handle("GET /api/modules/{id}/messages", s.authMiddleware(s.getMessages))
	mux.Handle("GET /api/webchats", s.authMiddleware(s.webchats))
	mux.Handle("POST /api/modules/{id}/files", s.authMiddleware(s.uploadFile))
	mux.Handle("GET /api/modules/{id}/files", s.authMiddleware(s.listFiles))
	mux.Handle("GET /api/files/{id}", s.authMiddleware(s.downloadFile))
	mux.Handle("GET /ws/chat/module/{module_id}", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *Server) Start() error {
	s.log.Printf("Starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Println("Shutting down server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.log.Println("Server shutdown complete")
	return nil
}
