package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/felixgeelhaar/streakline/internal/config"
)

var httpClient = &http.Client{Timeout: 2 * time.Second}

// daemonURL returns the base URL the configured daemon listens on
func daemonURL() (string, error) {
	cfg, err := config.Load()
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	bind := cfg.Daemon.Bind
	if bind == "" || bind == "0.0.0.0" {
		bind = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", bind, cfg.Daemon.Port), nil
}

// cmdStart starts the daemon in the background
func cmdStart() error {
	addr, err := daemonURL()
	if err != nil {
		return err
	}
	if isRunning(addr) {
		fmt.Println("✓ Daemon is already running")
		return nil
	}

	dir, err := config.EnsureStreaklineDir()
	if err != nil {
		return fmt.Errorf("setup streakline directory: %w", err)
	}

	bin, err := findDaemonBinary()
	if err != nil {
		return fmt.Errorf("find daemon binary: %w", err)
	}

	cmd := exec.Command(bin)
	cmd.Dir = dir
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	fmt.Print("Starting daemon...")
	for i := 0; i < 30; i++ {
		time.Sleep(100 * time.Millisecond)
		if isRunning(addr) {
			fmt.Println(" ✓")
			fmt.Printf("Daemon running at %s\n", addr)
			return nil
		}
		fmt.Print(".")
	}

	fmt.Println(" ✗")
	return fmt.Errorf("daemon failed to start (check logs with 'streakline logs')")
}

// cmdStop sends SIGTERM to the daemon named in the PID file
func cmdStop() error {
	addr, err := daemonURL()
	if err != nil {
		return err
	}
	if !isRunning(addr) {
		fmt.Println("Daemon is not running")
		return nil
	}

	pid, err := readPID()
	if err != nil {
		return err
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find process: %w", err)
	}

	fmt.Print("Stopping daemon...")
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("send signal: %w", err)
	}

	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		if !isRunning(addr) {
			fmt.Println(" ✓")
			return nil
		}
		fmt.Print(".")
	}

	fmt.Println(" ✗")
	return fmt.Errorf("daemon did not stop gracefully")
}

func readPID() (int, error) {
	dir, err := config.StreaklineDir()
	if err != nil {
		return 0, err
	}
	data, err := os.ReadFile(filepath.Join(dir, pidFile))
	if err != nil {
		return 0, fmt.Errorf("read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse PID: %w", err)
	}
	return pid, nil
}

// cmdStatus shows daemon health
func cmdStatus() error {
	addr, err := daemonURL()
	if err != nil {
		return err
	}

	resp, err := httpClient.Get(addr + "/v1/health")
	if err != nil {
		fmt.Println("Status: stopped")
		return nil
	}
	defer resp.Body.Close()

	var health struct {
		Status       string `json:"status"`
		Timestamp    string `json:"timestamp"`
		StorageError string `json:"storage_error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("parse health: %w", err)
	}

	fmt.Printf("Status:    %s\n", health.Status)
	fmt.Printf("Address:   %s\n", addr)
	fmt.Printf("Checked:   %s\n", health.Timestamp)
	if health.StorageError != "" {
		fmt.Printf("Storage:   %s\n", health.StorageError)
	}
	return nil
}

// cmdLogs prints the tail of the daemon log
func cmdLogs() error {
	dir, err := config.StreaklineDir()
	if err != nil {
		return err
	}
	return tailLog(os.Stdout, filepath.Join(dir, "logs", "streaklined.log"), 4096)
}

func tailLog(w io.Writer, path string, window int64) error {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		fmt.Fprintln(w, "No log file found. Start the daemon first.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat log file: %w", err)
	}
	offset := info.Size() - window
	if offset < 0 {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReader(file)
	if offset > 0 {
		// Skip the partial first line.
		_, _ = reader.ReadString('\n')
	}

	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		fmt.Fprintln(w, scanner.Text())
	}
	return scanner.Err()
}

func isRunning(addr string) bool {
	resp, err := httpClient.Get(addr + "/v1/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// findDaemonBinary locates the streaklined binary
func findDaemonBinary() (string, error) {
	if path, err := exec.LookPath("streaklined"); err == nil {
		return path, nil
	}

	if self, err := os.Executable(); err == nil {
		path := filepath.Join(filepath.Dir(self), "streaklined")
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	for _, path := range []string{"/usr/local/bin/streaklined", "./streaklined"} {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("streaklined binary not found (build with 'go build ./cmd/streaklined')")
}
