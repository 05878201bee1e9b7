package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/kardianos/service"

	"github.com/hyperkishore/home-internet/config"
)

const serviceStopTimeout = 30 * time.Second

// program implements service.Interface
type program struct {
	configPath string
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	svcLogger  service.Logger
}

func (p *program) Start(s service.Service) error {
	p.svcLogger, _ = s.Logger(nil)
	if p.svcLogger != nil {
		p.svcLogger.Info("Speed Monitor service starting")
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.done = make(chan struct{})

	go p.run()
	return nil
}

func (p *program) run() {
	defer close(p.done)

	if err := runServer(p.ctx, p.configPath, true); err != nil {
		logError("Server exited with error", "error", err)
		if p.svcLogger != nil {
			p.svcLogger.Error(err)
		}
	}

	if p.svcLogger != nil {
		p.svcLogger.Info("Speed Monitor service stopping")
	}
}

func (p *program) Stop(s service.Service) error {
	if p.cancel != nil {
		p.cancel()
	}

	select {
	case <-p.done:
		if p.svcLogger != nil {
			p.svcLogger.Info("Speed Monitor service stopped gracefully")
		}
	case <-time.After(serviceStopTimeout):
		if p.svcLogger != nil {
			p.svcLogger.Warning("Speed Monitor service stopped with timeout")
		}
	}
	return nil
}

// getServiceConfig returns the service configuration for the current platform
func getServiceConfig(configPath string) *service.Config {
	var workingDir string
	switch runtime.GOOS {
	case "windows":
		workingDir = filepath.Join(os.Getenv("ProgramData"), "SpeedMonitor")
	case "darwin":
		workingDir = "/Library/Application Support/SpeedMonitor"
	default:
		workingDir = filepath.Join("/var/lib", config.AppDirName)
	}

	args := []string{"--service", "run"}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}

	return &service.Config{
		Name:             "SpeedMonitorServer",
		DisplayName:      "Speed Monitor Server",
		Description:      "Collects speed-test results from devices and serves fleet network statistics.",
		WorkingDirectory: workingDir,
		Arguments:        args,
		Option: service.KeyValue{
			// Windows
			"StartType":              "automatic",
			"DelayedAutoStart":       true,
			"OnFailure":              "restart",
			"OnFailureDelayDuration": "5s",
			"OnFailureResetPeriod":   30,

			// systemd
			"Restart":           "on-failure",
			"RestartSec":        5,
			"SuccessExitStatus": "0 SIGTERM",
			"KillMode":          "mixed",
			"KillSignal":        "SIGTERM",

			// launchd
			"RunAtLoad": true,
			"KeepAlive": true,
		},
	}
}

// setupServiceDirectories creates the data, log and config directories a
// service install needs and writes a default config if none exists.
func setupServiceDirectories() error {
	dataDir, err := config.GetDataDirectory(true)
	if err != nil {
		return err
	}

	var configPath string
	dirs := []string{filepath.Join(dataDir, "logs")}
	switch runtime.GOOS {
	case "windows":
		configPath = filepath.Join(dataDir, "server.toml")
	case "darwin":
		configPath = filepath.Join("/Library/Application Support", "SpeedMonitor", "server.toml")
	default:
		dirs = append(dirs, filepath.Join("/var/log", config.AppDirName), filepath.Join("/etc", config.AppDirName))
		configPath = filepath.Join("/etc", config.AppDirName, "server.toml")
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if err := WriteDefaultConfig(configPath); err != nil {
		if strings.Contains(err.Error(), "already exists") {
			fmt.Printf("Configuration already exists at: %s\n", configPath)
			return nil
		}
		return fmt.Errorf("failed to generate default config at %s: %w", configPath, err)
	}
	fmt.Printf("Generated default configuration at: %s\n", configPath)
	return nil
}

// handleServiceCommand runs install/uninstall/start/stop/restart/run.
func handleServiceCommand(cmd, configPath string) error {
	prg := &program{configPath: configPath}
	s, err := service.New(prg, getServiceConfig(configPath))
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	switch cmd {
	case "install":
		if err := setupServiceDirectories(); err != nil {
			return err
		}
		if err := s.Install(); err != nil && !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to install service: %w", err)
		}
		fmt.Println("Service installed. Use '--service start' to start it.")
	case "uninstall":
		if status, _ := s.Status(); status == service.StatusRunning {
			_ = s.Stop()
		}
		if err := s.Uninstall(); err != nil {
			return fmt.Errorf("failed to uninstall service: %w", err)
		}
		fmt.Println("Service uninstalled.")
	case "run":
		return s.Run()
	default:
		if err := service.Control(s, cmd); err != nil {
			return fmt.Errorf("service %s failed: %w", cmd, err)
		}
		fmt.Printf("Service %s: ok\n", cmd)
	}
	return nil
}
