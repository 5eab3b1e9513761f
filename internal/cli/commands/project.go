package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/apexorm/apexorm/internal/cli/config"
	"github.com/apexorm/apexorm/internal/cli/ui"
	"github.com/apexorm/apexorm/internal/orm/modelfile"
	"github.com/apexorm/apexorm/internal/orm/schema"
	"github.com/apexorm/apexorm/internal/orm/storage"
	"github.com/apexorm/apexorm/pkg/orm"
)

var errNoModels = errors.New(`no model files configured; list them under "models" in apexorm.yaml`)

// project is the loaded configuration and model declarations
type project struct {
	cfg    *config.Config
	decls  []schema.Declaration
	logger *zap.Logger
}

func loadProject(g *globals, stderr io.Writer) (*project, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		fmt.Fprint(stderr, ui.ConfigProblem(err, g.noColor))
		return nil, reported{err}
	}
	if len(cfg.Models) == 0 {
		fmt.Fprint(stderr, ui.ConfigProblem(errNoModels, g.noColor))
		return nil, reported{errNoModels}
	}
	decls, err := modelfile.Load(cfg.Models...)
	if err != nil {
		return nil, err
	}
	return &project{cfg: cfg, decls: decls, logger: newLogger(g.verbose, cfg.Log.Level)}, nil
}

// newLogger builds a development logger with --verbose and a production
// logger otherwise. level overrides the default level of either.
func newLogger(verbose bool, level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	if level != "" {
		var lvl zapcore.Level
		if err := lvl.UnmarshalText([]byte(level)); err == nil {
			cfg.Level = zap.NewAtomicLevelAt(lvl)
		}
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// registry declares the models offline and finalizes them
func (p *project) registry(strict bool) (*schema.Registry, error) {
	opts := []schema.RegistryOption{schema.WithLogger(p.logger)}
	if strict {
		opts = append(opts, schema.WithStrictResolution())
	}
	reg := schema.NewRegistry(opts...)
	for _, decl := range p.decls {
		if _, err := reg.Declare(decl); err != nil {
			return nil, err
		}
	}
	if err := reg.Finalize(); err != nil {
		return nil, err
	}
	return reg, nil
}

// open connects to the configured database and registers the models
func (p *project) open(ctx context.Context) (*orm.ORM, error) {
	db := p.cfg.Database
	dsn, err := db.DSN()
	if err != nil {
		return nil, err
	}
	o, err := orm.Open(ctx, db.Driver, dsn,
		orm.WithLogger(p.logger),
		orm.WithPool(db.Pool()),
		orm.WithStorage(storage.NewLocal(p.cfg.Media.Root, storage.WithBaseURL(p.cfg.Media.BaseURL))),
	)
	if err != nil {
		return nil, err
	}
	if _, err := o.Register(p.decls...); err != nil {
		_ = o.Close()
		return nil, err
	}
	return o, nil
}
