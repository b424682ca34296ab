package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"github.com/huy-cyno/workflow-builder-poc/internal/bootstrap"
	"github.com/huy-cyno/workflow-builder-poc/internal/config"
	"github.com/huy-cyno/workflow-builder-poc/internal/transport/lambdatransport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger, err := cfg.Logger()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	stack, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to build workflow stack", zap.Error(err))
	}
	defer func() { _ = stack.Close(ctx) }()

	h := lambdatransport.NewHandler(stack.Service, logger)
	lambda.Start(h.Route)
}
