// Package container runs a UCI engine inside a Docker container and attaches
// to its standard streams.
package container

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/shallowred/shallowred/pkg/engine/uciproc"
	srlog "github.com/shallowred/shallowred/pkg/log"
)

// Runtime runs external UCI engines inside Docker containers.
type Runtime struct {
	cli *client.Client
}

// NewRuntime connects to the Docker daemon named by the DOCKER_* environment.
func NewRuntime() (*Runtime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	return &Runtime{cli: cli}, nil
}

// EngineConfig describes the engine container.
type EngineConfig struct {
	Image string
	Cmd   []string
	Env   map[string]string
	// Mounts maps host paths to read-only paths inside the container, for
	// example network weights or opening books.
	Mounts map[string]string
	// Pull pulls the image before creating the container.
	Pull bool
}

// Ping checks that the daemon is reachable.
func (r *Runtime) Ping(ctx context.Context) error {
	if _, err := r.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon not reachable: %w", err)
	}
	return nil
}

// Close releases the daemon connection.
func (r *Runtime) Close() error {
	return r.cli.Close()
}

// StartEngine creates and starts the engine container, attaches to it and
// completes the UCI handshake. Closing the returned client stops the
// container, which removes itself.
func (r *Runtime) StartEngine(ctx context.Context, cfg EngineConfig) (*uciproc.Client, error) {
	if cfg.Image == "" {
		return nil, fmt.Errorf("engine image is required")
	}
	if cfg.Pull {
		srlog.Info("pulling engine image", "image", cfg.Image)
		reader, err := r.cli.ImagePull(ctx, cfg.Image, image.PullOptions{})
		if err != nil {
			srlog.Warn("failed to pull engine image", "image", cfg.Image, "error", err)
		} else {
			_, _ = io.Copy(io.Discard, reader)
			reader.Close()
		}
	}

	containerCfg, hostCfg := buildContainerConfig(cfg)
	resp, err := r.cli.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create engine container: %w", err)
	}

	hijacked, err := r.cli.ContainerAttach(ctx, resp.ID, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		r.remove(resp.ID)
		return nil, fmt.Errorf("failed to attach to engine container: %w", err)
	}

	if err := r.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		hijacked.Close()
		r.remove(resp.ID)
		return nil, fmt.Errorf("failed to start engine container: %w", err)
	}
	srlog.Info("engine container started", "image", cfg.Image, "id", shortID(resp.ID))

	// Without a TTY the daemon multiplexes stdout and stderr on one stream.
	stdoutR, stdoutW := io.Pipe()
	go func() {
		_, err := stdcopy.StdCopy(stdoutW, &stderrLogger{id: shortID(resp.ID)}, hijacked.Reader)
		stdoutW.CloseWithError(err)
	}()

	closeFn := func() error {
		hijacked.Close()
		stopCtx := context.WithoutCancel(ctx)
		if err := r.cli.ContainerStop(stopCtx, resp.ID, container.StopOptions{}); err != nil {
			return fmt.Errorf("failed to stop engine container: %w", err)
		}
		return nil
	}

	c, err := uciproc.NewClient(ctx, hijacked.Conn, stdoutR, closeFn)
	if err != nil {
		_ = closeFn()
		return nil, err
	}
	return c, nil
}

func (r *Runtime) remove(id string) {
	err := r.cli.ContainerRemove(context.Background(), id, container.RemoveOptions{Force: true})
	if err != nil {
		srlog.Warn("failed to remove engine container", "id", shortID(id), "error", err)
	}
}

func buildContainerConfig(cfg EngineConfig) (*container.Config, *container.HostConfig) {
	env := make([]string, 0, len(cfg.Env))
	for k, v := range cfg.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(env)

	hosts := make([]string, 0, len(cfg.Mounts))
	for host := range cfg.Mounts {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)
	mounts := make([]mount.Mount, 0, len(hosts))
	for _, host := range hosts {
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   host,
			Target:   cfg.Mounts[host],
			ReadOnly: true,
		})
	}

	return &container.Config{
			Image:        cfg.Image,
			Cmd:          cfg.Cmd,
			Env:          env,
			Tty:          false,
			OpenStdin:    true,
			StdinOnce:    true,
			AttachStdin:  true,
			AttachStdout: true,
			AttachStderr: true,
		}, &container.HostConfig{
			Mounts:     mounts,
			AutoRemove: true,
		}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// stderrLogger forwards the engine's stderr to the diagnostic log.
type stderrLogger struct {
	id string
}

func (l *stderrLogger) Write(p []byte) (int, error) {
	srlog.Debug("engine stderr", "id", l.id, "output", string(p))
	return len(p), nil
}
