package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourusername/fundl-go/api"
	"github.com/yourusername/fundl-go/api/handlers"
)

const shutdownTimeout = 30 * time.Second

var detach bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API with a live status stream",
	RunE: func(cmd *cobra.Command, args []string) error {
		if detach {
			return startDetached()
		}
		return runServer(cmd)
	},
}

func init() {
	serveCmd.Flags().BoolVarP(&detach, "detach", "d", false, "Run the server in the background")
}

func runServer(cmd *cobra.Command) error {
	a, err := setup(cmd, false)
	if err != nil {
		return err
	}
	defer a.Close()

	hub := handlers.NewStatusHub(a.queue.Status, a.log)
	a.queue.AddListener(hub)
	a.directory.AddListener(hub)

	router := api.SetupRouter(api.Dependencies{
		Queue:       a.queue,
		Catalog:     a.catalog,
		Directory:   a.directory,
		History:     a.history,
		StatusHub:   hub,
		Logger:      a.log,
		MultiLogger: a.multiLog,
		LogsDir:     a.config.Download.LogsDir,
		Version:     version,

		AllowedOrigins: a.config.Server.AllowedOrigins,
		ServerHost:     a.config.Server.Host,
	})

	addr := fmt.Sprintf("%s:%d", a.config.Server.Host, a.config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.log.Info("Starting fundl server",
		zap.String("version", version),
		zap.String("addr", addr),
		zap.String("provider", a.provider.Name()),
		zap.String("directory", a.directory.CurrentDirectory()))

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-cmd.Context().Done():
		a.log.Info("Received shutdown signal")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	a.log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.queue.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.log.Error("Server forced to shutdown", zap.Error(err))
	}

	a.log.Info("Server exited")
	return nil
}

// startDetached runs `serve` again as a background process without --detach
func startDetached() error {
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	args := make([]string, 0, len(os.Args))
	for _, arg := range os.Args[1:] {
		if arg == "--detach" || arg == "-d" || arg == "--detach=true" {
			continue
		}
		args = append(args, arg)
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()

	child := exec.Command(execPath, args...)
	child.Env = os.Environ()
	child.Stdin = devNull
	child.Stdout = devNull
	child.Stderr = devNull
	setSysProcAttr(child)

	if err := child.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	fmt.Printf("Server started in the background (PID: %d)\n", child.Process.Pid)
	return child.Process.Release()
}
