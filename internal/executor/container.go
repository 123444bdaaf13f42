package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/moby/moby/api/pkg/stdcopy"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/mount"
	"github.com/moby/moby/client"
)

// ContainerWorkDir is where the job directory is mounted inside the container.
const ContainerWorkDir = "/workspace"

// Container runs commands in a Docker image with the job directory bind-mounted
// at /workspace. The solver image must provide sh.
type Container struct {
	// UserID, when set, runs the container as uid:gid so files written into the
	// job directory stay owned by the caller.
	UserID string
}

// NewContainer returns a container executor running as the current user.
func NewContainer() *Container {
	return &Container{UserID: fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid())}
}

func (c *Container) Run(ctx context.Context, spec Spec) Outcome {
	if spec.Image == "" {
		return Outcome{ExitCode: -1, StartErr: fmt.Errorf("container executor: no image for %q", spec.CommandLine)}
	}
	if _, err := os.Stat(spec.Dir); err != nil {
		return Outcome{ExitCode: -1, StartErr: fmt.Errorf("job directory: %w", err)}
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return Outcome{ExitCode: -1, StartErr: fmt.Errorf("creating docker client: %w", err)}
	}
	defer cli.Close()

	initTrue := true
	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: spec.Dir,
			Target: ContainerWorkDir,
		}},
		Init: &initTrue,
	}
	if spec.CPUs > 0 {
		hostCfg.NanoCPUs = int64(spec.CPUs * 1e9)
	}
	if spec.MemoryMB > 0 {
		hostCfg.Memory = spec.MemoryMB << 20
	}

	containerCfg := &container.Config{
		Image:      spec.Image,
		Cmd:        []string{"sh", "-c", spec.CommandLine},
		Env:        envSlice(spec.Env),
		WorkingDir: ContainerWorkDir,
		Labels:     map[string]string{"simharness": "true"},
	}
	if c.UserID != "" {
		containerCfg.User = c.UserID
	}

	createResp, err := cli.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config:     containerCfg,
		HostConfig: hostCfg,
	})
	if err != nil {
		return Outcome{ExitCode: -1, StartErr: fmt.Errorf("creating container: %w", err)}
	}
	containerID := createResp.ID
	defer func() {
		cli.ContainerRemove(context.Background(), containerID, client.ContainerRemoveOptions{Force: true})
	}()

	start := time.Now()
	if _, err := cli.ContainerStart(ctx, containerID, client.ContainerStartOptions{}); err != nil {
		return Outcome{ExitCode: -1, StartErr: fmt.Errorf("starting container: %w", err)}
	}

	waitCtx := ctx
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	waitResult := cli.ContainerWait(waitCtx, containerID, client.ContainerWaitOptions{
		Condition: container.WaitConditionNotRunning,
	})
	for {
		select {
		case err := <-waitResult.Error:
			if err == nil {
				continue
			}
			cli.ContainerKill(context.Background(), containerID, client.ContainerKillOptions{Signal: "SIGKILL"})
			out := Outcome{
				ExitCode: TimeoutExitCode,
				TimedOut: true,
				Duration: time.Since(start),
			}
			out.Stdout, out.Stderr = containerLogs(cli, containerID)
			if ctx.Err() != nil {
				out.ExitCode = -1
				out.TimedOut = false
				out.StartErr = fmt.Errorf("waiting for container: %w", ctx.Err())
			}
			return out
		case status := <-waitResult.Result:
			out := Outcome{
				ExitCode: int(status.StatusCode),
				Duration: time.Since(start),
			}
			out.Stdout, out.Stderr = containerLogs(cli, containerID)
			return out
		}
	}
}

// containerLogs returns the container's stdout and stderr.
func containerLogs(cli *client.Client, id string) (string, string) {
	logReader, err := cli.ContainerLogs(context.Background(), id, client.ContainerLogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil || logReader == nil {
		return "", ""
	}
	defer logReader.Close()
	data, _ := io.ReadAll(logReader)
	return splitLogs(data)
}

// splitLogs separates a multiplexed log stream. A stream that is not
// multiplexed (a TTY container) is returned whole as stdout.
func splitLogs(data []byte) (string, string) {
	if !multiplexed(data) {
		return string(data), ""
	}
	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, bytes.NewReader(data)); err != nil {
		return string(data), ""
	}
	return stdout.String(), stderr.String()
}

func multiplexed(data []byte) bool {
	return len(data) >= 8 && data[0] <= byte(stdcopy.Systemerr) && data[1] == 0 && data[2] == 0 && data[3] == 0
}
