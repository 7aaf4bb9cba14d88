// Package git wraps git command execution for the versioned inventory store.
package git

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Client wraps git command execution with a global file-based lock for process safety.
type Client struct {
	WorkDir  string
	Logger   *slog.Logger
	lockPath string
}

// LogEntry is one parsed record of git log output.
type LogEntry struct {
	ID         string
	Author     string
	CommitTime time.Time
	Message    string
}

// NewClient creates a new git client for the given working directory.
func NewClient(workDir string, logger *slog.Logger) *Client {
	return &Client{
		WorkDir:  workDir,
		Logger:   logger,
		lockPath: ".inventory.lock", // Lock file name
	}
}

// IsInstalled checks whether the git binary is available.
func IsInstalled() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

// Lock acquires a file-based lock. It blocks until the lock is acquired.
func (c *Client) Lock() (func(), error) {
	fullLockPath := filepath.Join(c.WorkDir, c.lockPath)

	for {
		// Try to create lock file atomically
		f, err := os.OpenFile(fullLockPath, os.O_CREATE|os.O_EXCL, 0666)
		if err == nil {
			f.Close()
			return func() {
				os.Remove(fullLockPath)
			}, nil
		}

		if os.IsExist(err) {
			// Lock exists, wait and retry.
			time.Sleep(10 * time.Millisecond)
			continue
		}

		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
}

// Run executes a raw git command in the working directory.
// NOTE: It does NOT acquire the lock automatically. The caller must manage transaction safety via Client.Lock().
func (c *Client) Run(args ...string) (string, error) {
	if c.Logger != nil {
		c.Logger.Debug("executing git", "args", args, "dir", c.WorkDir)
	}

	cmd := exec.Command("git", args...)
	cmd.Dir = c.WorkDir

	out, err := cmd.CombinedOutput()
	output := string(out)

	if err != nil {
		return output, fmt.Errorf("git %s failed: %w\nOutput: %s", args[0], err, output)
	}

	return strings.TrimSpace(output), nil
}

// Init initializes a new git repository if one doesn't exist.
func (c *Client) Init() error {
	_, err := c.Run("init")
	return err
}

// IsRepo reports whether the working directory is inside a git repository.
func (c *Client) IsRepo() bool {
	_, err := c.Run("rev-parse", "--git-dir")
	return err == nil
}

// Add adds files to the stage.
func (c *Client) Add(files ...string) error {
	if len(files) == 0 {
		return nil
	}
	args := append([]string{"add"}, files...)
	_, err := c.Run(args...)
	return err
}

// CommitAs records changes with an explicit author signature. The identity
// is supplied on the command line so commits work without global git config.
// Empty commits are allowed: a patch may legitimately produce a document
// identical to HEAD, and the author's action is still recorded.
func (c *Client) CommitAs(name, email, msg string) error {
	_, err := c.Run(
		"-c", "user.name="+name,
		"-c", "user.email="+email,
		"commit",
		"--allow-empty",
		"--author", fmt.Sprintf("%s <%s>", name, email),
		"-m", msg,
	)
	return err
}

// Head returns the commit id the HEAD reference currently points at.
func (c *Client) Head() (string, error) {
	return c.Run("rev-parse", "HEAD")
}

// Status returns the porcelain status of the repo.
func (c *Client) Status() (string, error) {
	return c.Run("status", "--porcelain")
}

// Unit and record separators keep commit messages with newlines parseable.
const (
	logFieldSep  = "\x1f"
	logRecordSep = "\x1e"
)

// Log walks the commit graph from HEAD in reverse-topological order,
// returning at most max entries, newest first.
func (c *Client) Log(max int) ([]LogEntry, error) {
	format := strings.Join([]string{"%H", "%an", "%ct", "%B"}, logFieldSep) + logRecordSep
	out, err := c.Run("log", "--topo-order", "-n", strconv.Itoa(max), "--pretty=format:"+format)
	if err != nil {
		return nil, err
	}

	var entries []LogEntry
	for _, record := range strings.Split(out, logRecordSep) {
		record = strings.TrimLeft(record, "\n")
		if record == "" {
			continue
		}
		fields := strings.SplitN(record, logFieldSep, 4)
		if len(fields) != 4 {
			return nil, fmt.Errorf("unparseable log record: %q", record)
		}
		unix, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("unparseable commit time %q: %w", fields[2], err)
		}
		entries = append(entries, LogEntry{
			ID:         fields[0],
			Author:     fields[1],
			CommitTime: time.Unix(unix, 0),
			Message:    strings.TrimRight(fields[3], "\n"),
		})
	}
	return entries, nil
}
