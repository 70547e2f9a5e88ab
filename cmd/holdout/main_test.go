package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alexflint/go-arg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/holdout/internal/config"
	"github.com/YuminosukeSato/holdout/pkg/log"
	"github.com/YuminosukeSato/holdout/sklearn/linear_model"
)

func TestArgs_ConfigFlag(t *testing.T) {
	for _, argv := range [][]string{
		{"run", "-c", "holdout.yaml"},
		{"run", "--config", "holdout.yaml"},
	} {
		a := args{Command: "run", EnvFile: ".env"}
		p, err := arg.NewParser(arg.Config{}, &a)
		require.NoError(t, err)
		require.NoError(t, p.Parse(argv), argv)
		assert.Equal(t, "holdout.yaml", a.Config, argv)
		assert.Equal(t, "run", a.Command)
	}
}

func writeWindow(t *testing.T, dir, name string, rows int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("HR,SEPSIS\n")
	for i := 0; i < rows; i++ {
		hr := 60 + i%40
		label := 0
		if hr >= 80 {
			label = 1
		}
		fmt.Fprintf(&b, "%d,%d\n", hr, label)
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	return path
}

func TestRun_UnopenableStoreStillEvaluates(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	cfg := config.Default()
	cfg.Training.Source = writeWindow(t, dir, "train.csv", 200)
	cfg.Training.Label = "SEPSIS"
	cfg.Model.Algorithm = linear_model.PassiveAggressiveName
	cfg.Model.Params = nil
	cfg.Persistence = config.Persistence{Backend: "bolt", Path: filepath.Join(blocker, "runs", "holdout.db"), Name: "model"}
	cfg.Evaluation.Sources = []string{
		writeWindow(t, dir, "jul.csv", 40),
		writeWindow(t, dir, "aug.csv", 40),
	}
	require.NoError(t, cfg.Validate())

	logger, _ := log.NewTestLogger(log.LevelInfo)
	err := run(context.Background(), cfg, logger, true)
	require.NoError(t, err, "a store that cannot be opened never stops the run")
	assert.True(t, logger.ContainsMessage("artifact store unavailable, the model will not be saved"))
	assert.True(t, logger.ContainsMessage("model persistence failed, continuing with evaluation"))
	assert.True(t, logger.ContainsMessage("run finished"))
}
