package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"funcbox/internal/config"
	"funcbox/internal/container"
	"funcbox/internal/invoke"
	"funcbox/internal/runtime"
	"funcbox/internal/streamio"
)

var invokeFlags struct {
	image      string
	event      string
	eventFile  string
	fullPath   string
	hostDir    string
	workingDir string
	memoryMB   int
	ports      []string
	envVars    []string
	entrypoint []string
	network    string
	timeout    int
}

var invokeCmd = &cobra.Command{
	Use:   "invoke",
	Short: "Run one invocation inside an ephemeral container",
	Long: `Create a container from the given image, start it, send the event to its
runtime endpoint and print the response. The container is removed when the
invocation finishes.`,
	RunE: runInvoke,
}

func init() {
	rootCmd.AddCommand(invokeCmd)

	invokeCmd.Flags().StringVar(&invokeFlags.image, "image", "", "container image to run (required)")
	invokeCmd.Flags().StringVar(&invokeFlags.event, "event", "{}", "invocation event body")
	invokeCmd.Flags().StringVar(&invokeFlags.eventFile, "event-file", "", "read the event body from a file instead")
	invokeCmd.Flags().StringVar(&invokeFlags.fullPath, "function", "function", "function path; the last segment names the function")
	invokeCmd.Flags().StringVar(&invokeFlags.hostDir, "host-dir", ".", "host directory mounted as the code directory")
	invokeCmd.Flags().StringVar(&invokeFlags.workingDir, "working-dir", "/var/task", "working directory inside the container")
	invokeCmd.Flags().IntVar(&invokeFlags.memoryMB, "memory", 0, "memory limit in MB (0 = unlimited)")
	invokeCmd.Flags().StringSliceVar(&invokeFlags.ports, "port", nil, "extra port mapping container:host (repeatable)")
	invokeCmd.Flags().StringSliceVar(&invokeFlags.envVars, "env", nil, "environment variable KEY=VALUE (repeatable)")
	invokeCmd.Flags().StringSliceVar(&invokeFlags.entrypoint, "entrypoint", nil, "entrypoint override")
	invokeCmd.Flags().StringVar(&invokeFlags.network, "network", "", "attach the container to this pre-existing network ('host' for host networking)")
	invokeCmd.Flags().IntVar(&invokeFlags.timeout, "timeout", 0, "hard invocation deadline in seconds (0 = none)")

	_ = invokeCmd.MarkFlagRequired("image")
}

func runInvoke(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	event := []byte(invokeFlags.event)
	if invokeFlags.eventFile != "" {
		event, err = os.ReadFile(invokeFlags.eventFile)
		if err != nil {
			return fmt.Errorf("failed to read event file: %w", err)
		}
	}

	exposedPorts, err := parsePorts(invokeFlags.ports)
	if err != nil {
		return err
	}

	rt, err := runtime.NewDockerRuntime(cfg.DockerSocket)
	if err != nil {
		return err
	}

	hostDir, err := os.Getwd()
	if err != nil {
		return err
	}
	if invokeFlags.hostDir != "." {
		hostDir = invokeFlags.hostDir
	}

	c, err := container.New(rt, container.Spec{
		Image:                  invokeFlags.image,
		WorkingDir:             invokeFlags.workingDir,
		HostDir:                hostDir,
		MemoryLimitMB:          invokeFlags.memoryMB,
		ExposedPorts:           exposedPorts,
		Entrypoint:             invokeFlags.entrypoint,
		EnvVars:                parseEnv(invokeFlags.envVars),
		ContainerHost:          cfg.ContainerHost,
		ContainerHostInterface: cfg.ContainerHostInterface,
		ConnectionTimeout:      cfg.ContainerConnectionTimeout,
	})
	if err != nil {
		return err
	}
	if invokeFlags.network != "" {
		c.SetNetworkID(invokeFlags.network)
	}

	id, err := c.Create(ctx, container.ExecContextInvoke)
	if err != nil {
		return err
	}
	log.Debug("created invoke container", "id", id)

	defer func() {
		// Teardown runs on its own context so a canceled invocation still
		// cleans up.
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.Stop(cleanupCtx, nil); err != nil {
			log.Warn("failed to stop container", "id", id, "error", err)
		}
		if err := c.Delete(cleanupCtx); err != nil {
			log.Warn("failed to delete container", "id", id, "error", err)
		}
	}()

	if err := c.Start(ctx, nil); err != nil {
		return err
	}

	var startTimer invoke.TimerFunc
	if invokeFlags.timeout > 0 {
		deadline := time.Duration(invokeFlags.timeout) * time.Second
		startTimer = func() func() {
			timer := time.AfterFunc(deadline, func() {
				log.Warn("invocation deadline reached, stopping container", "id", id)
				stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := c.Stop(stopCtx, nil); err != nil {
					log.Warn("failed to stop container at deadline", "id", id, "error", err)
				}
			})
			return func() { timer.Stop() }
		}
	}

	stdout := streamio.NewStreamWriter(os.Stdout)
	stderr := streamio.NewStreamWriter(os.Stderr)

	if err := c.WaitForResult(ctx, event, invokeFlags.fullPath, stdout, stderr, startTimer); err != nil {
		return err
	}

	fmt.Fprintln(os.Stdout)
	return nil
}

func parsePorts(specs []string) (map[int]int, error) {
	if len(specs) == 0 {
		return nil, nil
	}

	ports := make(map[int]int, len(specs))
	for _, spec := range specs {
		containerPart, hostPart, ok := strings.Cut(spec, ":")
		if !ok {
			return nil, fmt.Errorf("invalid port mapping %q, expected container:host", spec)
		}
		containerPort, err := strconv.Atoi(containerPart)
		if err != nil {
			return nil, fmt.Errorf("invalid container port %q: %w", containerPart, err)
		}
		hostPort, err := strconv.Atoi(hostPart)
		if err != nil {
			return nil, fmt.Errorf("invalid host port %q: %w", hostPart, err)
		}
		ports[containerPort] = hostPort
	}
	return ports, nil
}

func parseEnv(pairs []string) map[string]string {
	if len(pairs) == 0 {
		return nil
	}

	env := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, _ := strings.Cut(pair, "=")
		env[key] = value
	}
	return env
}
