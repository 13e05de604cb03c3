// Package app wires configuration into the story pipeline and routes API
// Gateway requests to the handlers.
package app

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"github.com/danwrong/yotohero/internal/config"
	"github.com/danwrong/yotohero/internal/handler"
	"github.com/danwrong/yotohero/internal/logging"
	"github.com/danwrong/yotohero/internal/session"
)

const devSessionSecret = "yotohero-dev-session-secret"

// App holds the handlers for the Lambda function and the local server.
type App struct {
	services     *Services
	authHandler  *handler.AuthHandler
	storyHandler *handler.StoryHandler
	cardHandler  *handler.CardHandler
	originVerify string
	frontendURL  string
	devMode      bool
	logger       *slog.Logger
}

// NewApp builds the services from cfg and the HTTP handlers on top of them.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	svc, err := NewServices(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return New(svc)
}

// New builds the HTTP handlers for already wired services.
func New(svc *Services) (*App, error) {
	cfg := svc.Config
	logger := logging.NewComponentLogger(svc.Logger, "app")

	sessionSecret := svc.Secrets.SessionSecret
	if sessionSecret == "" && cfg.DevMode {
		logging.WarnWithContext(logger, "no session secret configured, using the development secret", "dev_session_secret")
		sessionSecret = devSessionSecret
	}
	codec, err := session.NewCodec(sessionSecret, svc.Encryptor, cfg.SessionTTL())
	if err != nil {
		return nil, err
	}

	if svc.Secrets.OriginVerify == "" && !cfg.DevMode {
		logging.WarnWithContext(logger, "origin verification disabled", "origin_gate_disabled",
			logging.String(logging.FieldImpact, "requests that bypass the CDN are accepted"),
			logging.String(logging.FieldErrorHint, "set the "+cfg.Secrets.OriginVerifyParam+" parameter"),
		)
	}

	cookies := handler.NewCookiePolicy(cfg.DevMode)
	sessions := handler.NewSessions(codec, cookies)

	// A nil *Storyteller must not become a non-nil interface.
	var teller handler.Teller
	if svc.Storyteller != nil {
		teller = svc.Storyteller
	}

	authConfig := handler.AuthConfig{
		ClientID:    cfg.Auth.ClientID,
		RedirectURL: cfg.Auth.RedirectURL,
		FrontendURL: cfg.Server.FrontendURL,
		DemoLogin:   svc.FakePlatform != nil,
	}

	return &App{
		services:     svc,
		authHandler:  handler.NewAuthHandler(svc.Auth, codec, cookies, authConfig, svc.Logger),
		storyHandler: handler.NewStoryHandler(svc.Orchestrator, teller, sessions, svc.Logger),
		cardHandler:  handler.NewCardHandler(svc.Auth, svc.Cards, sessions, svc.Logger),
		originVerify: svc.Secrets.OriginVerify,
		frontendURL:  cfg.Server.FrontendURL,
		devMode:      cfg.DevMode,
		logger:       logger,
	}, nil
}

// Services returns the wired pipeline.
func (app *App) Services() *Services {
	return app.services
}

// HandleRequest routes API Gateway requests to the appropriate handler.
func (app *App) HandleRequest(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	requestID := requestIDOf(req)
	ctx = logging.WithRequestID(ctx, requestID)
	logger := logging.WithContext(ctx, app.logger)

	// Strip /api prefix if present (for CloudFront proxying)
	path := strings.TrimPrefix(req.Path, "/api")
	method := req.HTTPMethod
	logger.Debug("request", logging.String("method", method), logging.String("path", path))

	resp := app.route(ctx, logger, method, path, req)
	resp = app.corsResponse(resp)
	resp.Headers["X-Request-Id"] = requestID
	return resp, nil
}

func (app *App) route(ctx context.Context, logger *slog.Logger, method, path string, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	if method == http.MethodOptions {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent}
	}
	if path == "/healthz" {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusOK, Body: `{"status":"ok"}`}
	}

	// Only the CDN knows the origin secret.
	if !app.devMode && app.originVerify != "" {
		got := handler.GetHeader(req, "X-Origin-Verify")
		if subtle.ConstantTimeCompare([]byte(got), []byte(app.originVerify)) != 1 {
			logging.WarnWithContext(logger, "missing or invalid origin header", "origin_rejected")
			return events.APIGatewayProxyResponse{StatusCode: http.StatusForbidden, Body: "Forbidden: Access denied"}
		}
	}

	var fn func(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)
	switch method + " " + path {
	case "GET /auth/login":
		fn = app.authHandler.Login
	case "GET /auth/callback":
		fn = app.authHandler.Callback
	case "GET /auth/demo-login":
		fn = app.authHandler.DemoLogin
	case "POST /auth/logout":
		fn = app.authHandler.Logout
	case "GET /auth/status":
		fn = app.authHandler.Status
	case "POST /stories":
		fn = app.storyHandler.Submit
	case "POST /stories/generate":
		fn = app.storyHandler.Generate
	case "GET /card":
		fn = app.cardHandler.Get
	default:
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusNotFound,
			Body:       fmt.Sprintf("Not Found: %s %s", method, path),
		}
	}
	resp, err := fn(ctx, req)
	return must(logger, resp, err)
}

// corsResponse adds CORS headers to an API Gateway response.
func (app *App) corsResponse(resp events.APIGatewayProxyResponse) events.APIGatewayProxyResponse {
	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}
	resp.Headers["Access-Control-Allow-Origin"] = app.frontendURL
	resp.Headers["Access-Control-Allow-Credentials"] = "true"
	resp.Headers["Access-Control-Allow-Methods"] = "GET,POST,OPTIONS"
	resp.Headers["Access-Control-Allow-Headers"] = "Content-Type,Authorization,X-Request-Id"
	return resp
}

func requestIDOf(req events.APIGatewayProxyRequest) string {
	if id := handler.GetHeader(req, "X-Request-Id"); id != "" {
		return id
	}
	if req.RequestContext.RequestID != "" {
		return req.RequestContext.RequestID
	}
	return uuid.NewString()
}

// must unwraps a handler response. Handlers report failures in the response,
// so an error here is a bug.
func must(logger *slog.Logger, resp events.APIGatewayProxyResponse, err error) events.APIGatewayProxyResponse {
	if err != nil {
		logging.ErrorWithContext(logger, "handler returned error", "handler_error", logging.Error(err))
		return events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "Internal Server Error"}
	}
	return resp
}
