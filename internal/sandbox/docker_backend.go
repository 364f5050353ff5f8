package sandbox

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
)

const workDir = "/workspace"

// DockerBackend manages the containers used for code runs.
type DockerBackend struct {
	client *client.Client
}

// NewDockerBackend connects to the Docker daemon from the environment.
func NewDockerBackend() (*DockerBackend, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("docker not reachable: %w", err)
	}

	return &DockerBackend{client: cli}, nil
}

// CreateContainer starts an idle container from img with cfg's limits.
func (b *DockerBackend) CreateContainer(ctx context.Context, img string, cfg Config) (string, error) {
	if err := b.ensureImage(ctx, img); err != nil {
		return "", fmt.Errorf("ensure image: %w", err)
	}

	containerCfg := &container.Config{
		Image:           img,
		Cmd:             []string{"sh", "-c", "while true; do sleep 3600; done"},
		WorkingDir:      workDir,
		NetworkDisabled: cfg.NetworkOff,
		Labels: map[string]string{
			"streakline.sandbox": "true",
		},
	}
	hostCfg := &container.HostConfig{
		AutoRemove: false,
		Resources: container.Resources{
			Memory:   int64(cfg.MemoryMB) * 1024 * 1024,
			NanoCPUs: int64(cfg.CPULimit * 1e9),
		},
	}

	resp, err := b.client.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}
	if err := b.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = b.client.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("start container: %w", err)
	}
	return resp.ID, nil
}

// CopyFiles writes files into the container's work directory.
func (b *DockerBackend) CopyFiles(ctx context.Context, containerID string, files map[string]string) error {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, content := range files {
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0644, Size: int64(len(content))}); err != nil {
			return fmt.Errorf("write tar header: %w", err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			return fmt.Errorf("write tar content: %w", err)
		}
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar: %w", err)
	}
	return b.client.CopyToContainer(ctx, containerID, workDir, &buf, container.CopyToContainerOptions{})
}

// Exec runs cmd in the container, bounded by timeout.
func (b *DockerBackend) Exec(ctx context.Context, containerID string, cmd []string, timeout time.Duration) (*ExecResult, error) {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	execResp, err := b.client.ContainerExecCreate(execCtx, containerID, container.ExecOptions{
		Cmd:          cmd,
		WorkingDir:   workDir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create exec: %w", err)
	}

	start := time.Now()
	attachResp, err := b.client.ContainerExecAttach(execCtx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("attach exec: %w", err)
	}
	defer attachResp.Close()

	var raw bytes.Buffer
	if _, err := io.Copy(&raw, attachResp.Reader); err != nil && execCtx.Err() != nil {
		return nil, fmt.Errorf("exec timed out after %s", timeout)
	}
	duration := time.Since(start)

	inspect, err := b.client.ContainerExecInspect(execCtx, execResp.ID)
	if err != nil {
		return nil, fmt.Errorf("inspect exec: %w", err)
	}

	stdout, stderr := demuxOutput(raw.Bytes())
	return &ExecResult{
		ExitCode: inspect.ExitCode,
		Stdout:   stdout,
		Stderr:   stderr,
		Duration: duration,
	}, nil
}

// DestroyContainer force-removes a container.
func (b *DockerBackend) DestroyContainer(ctx context.Context, containerID string) error {
	return b.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
}

// Close closes the Docker client.
func (b *DockerBackend) Close() error {
	return b.client.Close()
}

func (b *DockerBackend) ensureImage(ctx context.Context, img string) error {
	if _, err := b.client.ImageInspect(ctx, img); err == nil {
		return nil
	}
	reader, err := b.client.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", img, err)
	}
	defer reader.Close()
	_, _ = io.Copy(io.Discard, reader)
	return nil
}

// demuxOutput splits Docker's multiplexed stream. Each frame starts with an
// 8-byte header: stream type (1 stdout, 2 stderr), three zero bytes and a
// big-endian payload size.
func demuxOutput(data []byte) (stdout, stderr string) {
	if len(data) > 0 && data[0] != 1 && data[0] != 2 {
		// Not multiplexed (TTY mode).
		return string(data), ""
	}

	var outBuf, errBuf strings.Builder
	for len(data) >= 8 {
		streamType := data[0]
		size := int(data[4])<<24 | int(data[5])<<16 | int(data[6])<<8 | int(data[7])
		data = data[8:]
		if size > len(data) {
			size = len(data)
		}
		switch streamType {
		case 1:
			outBuf.Write(data[:size])
		case 2:
			errBuf.Write(data[:size])
		}
		data = data[size:]
	}
	return outBuf.String(), errBuf.String()
}
