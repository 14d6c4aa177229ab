package sink

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
)

var csvHeaders = []string{"time", "key", "name", "value", "count"}

// CSV writes one row per sample. Rows are buffered by Publish and written by Flush.
type CSV struct {
	key   string
	clock clock.Clock

	m       sync.Mutex
	pending [][]string
	out     rowWriter
}

type rowWriter interface {
	write(ctx context.Context, rows [][]string) error
	io.Closer
}

// NewCSV returns a CSV sink writing to path. Paths starting with gs:// are written to a Google
// Cloud Storage object; local files are appended to.
func NewCSV(ctx context.Context, path, key string) (*CSV, error) {
	var out rowWriter
	if strings.HasPrefix(path, "gs://") {
		bucket, object, err := parseObjectPath(path)
		if err != nil {
			return nil, err
		}
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		handle := client.Bucket(bucket).Object(object)
		out = &objectRows{
			open: func(ctx context.Context) io.WriteCloser {
				w := handle.NewWriter(ctx)
				w.ContentType = "text/csv"
				return w
			},
			closer: client,
		}
	} else {
		f, err := newFileRows(path)
		if err != nil {
			return nil, err
		}
		out = f
	}
	return newCSV(out, key), nil
}

func newCSV(out rowWriter, key string) *CSV {
	return &CSV{
		key:   key,
		clock: clock.New(),
		out:   out,
	}
}

// SetClock replaces the clock used for row timestamps.
func (c *CSV) SetClock(cl clock.Clock) {
	c.clock = cl
}

// Publish satisfies the monitor.Sink interface
func (c *CSV) Publish(name string, value float64, count int) {
	c.m.Lock()
	defer c.m.Unlock()
	c.pending = append(c.pending, []string{
		c.clock.Now().UTC().Format(time.RFC3339),
		c.key,
		name,
		strconv.FormatFloat(value, 'f', -1, 64),
		strconv.Itoa(count),
	})
}

// Flush satisfies the monitor.Sink interface
func (c *CSV) Flush(ctx context.Context) error {
	c.m.Lock()
	defer c.m.Unlock()
	if len(c.pending) == 0 {
		return nil
	}
	if err := c.out.write(ctx, c.pending); err != nil {
		return err
	}
	c.pending = nil
	return nil
}

// Close releases the file or storage client.
func (c *CSV) Close() error {
	return c.out.Close()
}

func parseObjectPath(path string) (bucket, object string, err error) {
	parts := strings.SplitN(strings.TrimPrefix(path, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", errors.Errorf("%s is not a gs://bucket/object path", path)
	}
	return parts[0], parts[1], nil
}

type fileRows struct {
	file *os.File
	w    *csv.Writer
}

func newFileRows(path string) (*fileRows, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	fr := &fileRows{file: f, w: csv.NewWriter(f)}
	s, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.WithStack(err)
	}
	if s.Size() == 0 {
		if err := fr.write(context.Background(), [][]string{csvHeaders}); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return fr, nil
}

func (f *fileRows) write(ctx context.Context, rows [][]string) error {
	if err := f.w.WriteAll(rows); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

func (f *fileRows) Close() error {
	return errors.WithStack(f.file.Close())
}

// objectRows keeps every row, and rewrites the whole object on each write. Storage objects can't
// be appended to.
type objectRows struct {
	open   func(ctx context.Context) io.WriteCloser
	closer io.Closer
	rows   [][]string
}

func (o *objectRows) write(ctx context.Context, rows [][]string) error {
	all := append(o.rows, rows...)
	w := o.open(ctx)
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeaders); err != nil {
		_ = w.Close()
		return errors.WithStack(err)
	}
	if err := cw.WriteAll(all); err != nil {
		_ = w.Close()
		return errors.WithStack(err)
	}
	// the object is only committed by Close
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "writing object")
	}
	o.rows = all
	return nil
}

func (o *objectRows) Close() error {
	if o.closer == nil {
		return nil
	}
	return errors.WithStack(o.closer.Close())
}
