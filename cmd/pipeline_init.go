package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/credit-risk-cli/internal/pipeline"
	"github.com/sells-group/credit-risk-cli/internal/store"
)

// pipelineEnv holds the run log and the pipeline needed by the stage
// commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *pipeline.Pipeline
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens the run log, or a no-op log when it is disabled.
func initStore(ctx context.Context) (store.Store, error) {
	if !cfg.RunLog.Enabled {
		return store.Nop{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.RunLog.Path), 0o755); err != nil {
		return nil, eris.Wrap(err, "create run log directory")
	}
	st, err := store.NewSQLite(cfg.RunLog.Path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// initPipeline validates the config for mode, opens the run log and builds
// the Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	return &pipelineEnv{
		Store:    st,
		Pipeline: pipeline.New(cfg, logger, st),
	}, nil
}
