package main

import (
	"context"
	"fmt"

	"github.com/shallowred/shallowred/pkg/config"
	"github.com/shallowred/shallowred/pkg/engine"
	"github.com/shallowred/shallowred/pkg/engine/builtin"
	"github.com/shallowred/shallowred/pkg/engine/container"
	"github.com/shallowred/shallowred/pkg/engine/uciproc"
)

// newEngine builds the configured backend. The returned close function is
// never nil.
func newEngine(ctx context.Context, cfg config.Config, docker *container.Runtime) (engine.Engine, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Engine.Kind {
	case config.EngineBuiltin:
		return builtin.New(builtin.Config{MaxDepth: cfg.Engine.MaxDepth}), noop, nil

	case config.EngineProcess:
		c, err := uciproc.Start(ctx, cfg.Engine.Path, cfg.Engine.Args...)
		if err != nil {
			return nil, noop, err
		}
		return c, c.Close, nil

	case config.EngineContainer:
		if docker == nil {
			return nil, noop, fmt.Errorf("container engine requires a docker runtime")
		}
		c, err := docker.StartEngine(ctx, container.EngineConfig{
			Image:  cfg.Engine.Image,
			Cmd:    cfg.Engine.Cmd,
			Env:    cfg.Engine.Env,
			Mounts: cfg.Engine.Mounts,
			Pull:   cfg.Engine.Pull,
		})
		if err != nil {
			return nil, noop, err
		}
		return c, c.Close, nil

	default:
		return nil, noop, fmt.Errorf("unknown engine kind %q", cfg.Engine.Kind)
	}
}
