// Package proc reads resource usage of the managed server from /proc.
package proc

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Stats is a subset of /proc/[pid]/stat that the status command reports.
type Stats struct {
	PID       int    `json:"pid"`
	State     string `json:"state"`
	Threads   int    `json:"threads"`
	MemoryRSS int64  `json:"memory_rss"`
	MemoryMB  int64  `json:"memory_mb"`
	VirtualMB int64  `json:"virtual_mb"`
	// CPUTicks is utime+stime in clock ticks.
	CPUTicks uint64 `json:"cpu_ticks"`
}

func ReadStats(pid int) (*Stats, error) {
	if pid <= 0 {
		return nil, errors.New("invalid PID")
	}
	b, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return nil, errors.Wrap(err, "read stat file")
	}
	return parseStat(pid, string(b), int64(os.Getpagesize()))
}

func parseStat(pid int, content string, pageSize int64) (*Stats, error) {
	// comm may contain spaces and parens; fields start after the last ')'.
	i := strings.LastIndex(content, ")")
	if i < 0 {
		return nil, errors.New("malformed stat file: no closing paren")
	}
	fields := strings.Fields(content[i+1:])
	if len(fields) < 22 {
		return nil, errors.Errorf("malformed stat file: expected 22+ fields, got %d", len(fields))
	}

	// Indices are relative to the state field (field 3 in proc(5)).
	utime, err := strconv.ParseUint(fields[11], 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "parse utime")
	}
	stime, err := strconv.ParseUint(fields[12], 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "parse stime")
	}
	threads, err := strconv.Atoi(fields[17])
	if err != nil {
		return nil, errors.Wrap(err, "parse num_threads")
	}
	vsize, err := strconv.ParseUint(fields[20], 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "parse vsize")
	}
	rss, err := strconv.ParseInt(fields[21], 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "parse rss")
	}

	rssBytes := rss * pageSize
	return &Stats{
		PID:       pid,
		State:     fields[0],
		Threads:   threads,
		MemoryRSS: rssBytes,
		MemoryMB:  rssBytes / (1024 * 1024),
		VirtualMB: int64(vsize) / (1024 * 1024),
		CPUTicks:  utime + stime,
	}, nil
}
