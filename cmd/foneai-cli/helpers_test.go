package main

import (
	"context"

	"go.uber.org/zap"

	"foneai-widget/internal/webhook"
)

type stubExchanger struct{}

func (stubExchanger) Exchange(context.Context, webhook.Payload) ([]byte, error) {
	return []byte(`{"text":"1.80 seconds"}`), nil
}

func nopLogger() *zap.Logger { return zap.NewNop() }
