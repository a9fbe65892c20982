package state

import (
	"bufio"
	"io"
	"os"

	"github.com/pkg/errors"
)

// TailLines returns the last n lines of path. Only the final maxBytes of the
// file are scanned; a line cut by that window is dropped.
func TailLines(path string, n int, maxBytes int64) ([]string, error) {
	if path == "" {
		return nil, errors.New("missing path")
	}
	if n <= 0 {
		n = 20
	}
	if maxBytes <= 0 {
		maxBytes = 2 << 20
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open log")
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "stat log")
	}
	offset := info.Size() - maxBytes
	if offset < 0 {
		offset = 0
	}

	sc := bufio.NewScanner(io.NewSectionReader(f, offset, info.Size()-offset))
	sc.Buffer(make([]byte, 64*1024), int(maxBytes)+1)

	ring := make([]string, n)
	count := 0
	skipFirst := offset > 0
	for sc.Scan() {
		if skipFirst {
			skipFirst = false
			continue
		}
		ring[count%n] = sc.Text()
		count++
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "scan log")
	}

	if count <= n {
		return append([]string{}, ring[:count]...), nil
	}
	start := count % n
	return append(append([]string{}, ring[start:]...), ring[:start]...), nil
}
