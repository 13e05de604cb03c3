package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/danwrong/yotohero/internal/app"
	"github.com/danwrong/yotohero/internal/config"
	"github.com/danwrong/yotohero/internal/logging"
)

func main() {
	ctx := context.Background()

	cfg, _, _, err := config.Load(os.Getenv("YOTOHERO_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// CloudWatch wants one JSON object per line.
	logger, err := logging.New(logging.Options{Level: cfg.Logging.Level, Format: "json"})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	application, err := app.NewApp(ctx, cfg, logger)
	if err != nil {
		logging.ErrorWithContext(logger, "startup failed", "startup_failed", logging.Error(err))
		os.Exit(1)
	}
	lambda.Start(application.HandleRequest)
}
