package dataset

import (
	"archive/tar"
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Record is one paired entry of a shard: a feature vector and its class.
type Record struct {
	Key    string
	Vector []float64
	Label  int
}

// ErrPendingOverflow indicates the pairing map exceeded the configured bound.
var ErrPendingOverflow = errors.New("shard: pending pair buffer exceeded")

const defaultPendingCap = 1024

// StreamShard streams paired records from the shard at path. A record is
// emitted once both its .vec and .cls members have been read.
func StreamShard(ctx context.Context, path string, pendingCap int) (<-chan Record, <-chan error) {
	if pendingCap <= 0 {
		pendingCap = defaultPendingCap
	}
	out := make(chan Record)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		f, err := os.Open(path)
		if err != nil {
			errCh <- errors.Wrap(err, "open shard")
			return
		}
		defer f.Close()

		tr := tar.NewReader(bufio.NewReader(f))
		pending := make(map[string]*partial)

		for {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			default:
			}

			hdr, err := tr.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				errCh <- errors.Wrap(err, "read tar")
				return
			}
			if hdr.FileInfo().IsDir() {
				continue
			}
			name := filepath.Base(hdr.Name)
			ext := strings.ToLower(filepath.Ext(name))
			key := strings.TrimSuffix(name, ext)

			switch ext {
			case ".vec", ".cls":
			default:
				continue
			}
			payload, err := io.ReadAll(tr)
			if err != nil {
				errCh <- errors.Wrapf(err, "read %s", name)
				return
			}
			part := pending[key]
			if part == nil {
				part = &partial{}
				pending[key] = part
			}
			if ext == ".vec" {
				if part.vector, err = parseVector(payload); err != nil {
					errCh <- errors.Wrapf(err, "parse vector %s", name)
					return
				}
			} else {
				label, err := strconv.Atoi(strings.TrimSpace(string(payload)))
				if err != nil {
					errCh <- errors.Wrapf(err, "parse label %s", name)
					return
				}
				part.label = &label
			}

			if len(pending) > pendingCap {
				errCh <- ErrPendingOverflow
				return
			}

			if part.ready() {
				rec := Record{Key: key, Vector: part.vector, Label: *part.label}
				delete(pending, key)
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case out <- rec:
				}
			}
		}

		if len(pending) > 0 {
			errCh <- errors.Errorf("%d records incomplete", len(pending))
		}
	}()

	return out, errCh
}

// ReadShard drains StreamShard into a slice.
func ReadShard(ctx context.Context, path string, pendingCap int) ([]Record, error) {
	recs, errCh := StreamShard(ctx, path, pendingCap)
	var out []Record
	for rec := range recs {
		out = append(out, rec)
	}
	if err := <-errCh; err != nil {
		return nil, errors.Wrap(err, path)
	}
	return out, nil
}

func parseVector(payload []byte) ([]float64, error) {
	fields := strings.Fields(string(payload))
	vec := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		vec[i] = v
	}
	return vec, nil
}

type partial struct {
	vector []float64
	label  *int
}

func (p *partial) ready() bool {
	return p.vector != nil && p.label != nil
}
