package main

import (
	"log/slog"
	"os"

	"github.com/Adithya-Monish-Kumar-K/kwikdedup/cmd/kwikdedup/cmd"
	apperrors "github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		slog.Error("kwikdedup failed", "error", err)
		os.Exit(apperrors.ExitCode(err))
	}
}
