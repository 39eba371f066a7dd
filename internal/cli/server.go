package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"quiz-proctor-service/internal/app"
	"quiz-proctor-service/internal/auth"
	"quiz-proctor-service/internal/config"
	"quiz-proctor-service/internal/logger"
	"quiz-proctor-service/internal/metrics"
	"quiz-proctor-service/internal/proctor"
	transport "quiz-proctor-service/internal/transport/http"
	"quiz-proctor-service/internal/validator"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
	cmd.Flags().StringVar(port, "port", "", "port to listen on (overrides server.port)")
	return cmd
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if portFlag != "" {
		cfg.Server.Port = portFlag
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logger.Setup(cfg.Log.Level, cfg.Log.Format)
	log.Info().
		Str("port", cfg.Server.Port).
		Str("storage", cfg.Storage.Driver).
		Str("quiz", cfg.Quiz.ID).
		Msg("starting quiz proctor service")

	validator.Setup()

	if cfg.Storage.Driver == config.DriverPostgres {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	res := newBackends(cfg, log)
	defer func() {
		if err := res.Close(); err != nil {
			log.Warn().Err(err).Msg("closing backends")
		}
	}()

	store, err := res.Store(ctx)
	if err != nil {
		return err
	}
	questions, err := res.Questions(ctx)
	if err != nil {
		return err
	}

	authenticator, err := auth.New(
		cfg.Instructor.Passcode,
		cfg.Instructor.PasscodeHash,
		cfg.Instructor.TokenSecret,
		config.TTLDuration(cfg.Instructor.TokenTTL, 8*time.Hour),
	)
	if err != nil {
		return err
	}

	attemptCfg := app.AttemptConfig{
		MaxViolations: cfg.Quiz.MaxViolations,
		Debounce:      config.TTLDuration(cfg.Quiz.Debounce, proctor.DefaultDebounce),
	}
	engine := app.NewSubmissionEngine(store, log)
	quiz := app.NewQuizService(store, questions, engine, cfg.Quiz.ID, attemptCfg, log)
	release := app.NewReleaseService(store, log)

	// Fail fast on broken content rather than on the first student.
	if _, err := quiz.QuestionSet(ctx); err != nil {
		return err
	}

	if err := prometheus.Register(metrics.NewSubmissionCollector(store)); err != nil {
		log.Warn().Err(err).Msg("submission collector not registered")
	}

	router := transport.NewRouter(transport.RouterConfig{
		GinMode:        cfg.Server.GinMode,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, transport.Handlers{
		Student:    transport.NewStudentHandler(quiz, app.NewRegistrar(store, log), release),
		Instructor: transport.NewInstructorHandler(authenticator, app.NewDashboard(store), release, log),
		WS:         transport.NewWSHandler(quiz, log, cfg.Server.AllowedOrigins),
	}, transport.RequireInstructor(authenticator))

	// No write timeout: it would also cut long-lived websocket connections.
	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
