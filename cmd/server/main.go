package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/danwrong/yotohero/internal/app"
	"github.com/danwrong/yotohero/internal/config"
	"github.com/danwrong/yotohero/internal/logging"
	"github.com/danwrong/yotohero/internal/platform/memory"
)

// maxBodyBytes bounds request bodies. Story text is small.
const maxBodyBytes = 1 << 20

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, path, exists, err := config.Load(os.Getenv("YOTOHERO_CONFIG"))
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", cfg.Logging.File},
	})
	if err != nil {
		return err
	}
	logger.Info("configuration loaded", logging.String("path", path), logging.Bool("file_exists", exists), logging.Bool("dev_mode", cfg.DevMode))

	application, err := app.NewApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newRouter(application, platformURL(cfg.Server.Addr), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting local server", logging.String("addr", cfg.Server.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func newRouter(application *app.App, publicPlatformURL string, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Synthesis plus transcode polling can take a while.
	r.Use(middleware.Timeout(5 * time.Minute))

	// The in-process platform is also served over HTTP so a CLI configured
	// with platform.base_url pointing here shares its cards.
	if fake := application.Services().FakePlatform; fake != nil {
		r.Mount("/platform", memory.Routes(fake, publicPlatformURL))
		logger.Info("serving in-process platform", logging.String("path", "/platform"))
	}

	r.HandleFunc("/*", lambdaAdapter(application, logger))
	return r
}

// platformURL is the base URL handed out for uploads to the in-process platform.
func platformURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/platform"
}

// lambdaAdapter converts net/http requests to API Gateway events so the local
// server exercises exactly the Lambda code path.
func lambdaAdapter(application *app.App, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			http.Error(w, "read body", http.StatusBadRequest)
			return
		}

		headers := make(map[string]string, len(r.Header))
		for k, v := range r.Header {
			headers[k] = v[0]
		}
		if id := middleware.GetReqID(r.Context()); id != "" && headers["X-Request-Id"] == "" {
			headers["X-Request-Id"] = id
		}

		queryParams := make(map[string]string)
		for k, v := range r.URL.Query() {
			queryParams[k] = v[0]
		}

		req := events.APIGatewayProxyRequest{
			Path:                  r.URL.Path,
			HTTPMethod:            r.Method,
			Headers:               headers,
			QueryStringParameters: queryParams,
			Body:                  string(body),
		}

		resp, err := application.HandleRequest(r.Context(), req)
		if err != nil {
			logging.ErrorWithContext(logger, "request failed", "handler_error", logging.Error(err))
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		for k, v := range resp.Headers {
			w.Header().Set(k, v)
		}
		for k, values := range resp.MultiValueHeaders {
			for _, v := range values {
				w.Header().Add(k, v)
			}
		}
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write([]byte(resp.Body))
	}
}
