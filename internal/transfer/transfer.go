// Package transfer streams a firmware image from an HTTP endpoint into a
// flash sink using a small fixed buffer.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/tinoosan/fota/internal/data"
	"github.com/tinoosan/fota/internal/fetch"
	"github.com/tinoosan/fota/internal/metrics"
)

const (
	DefaultChunkSize     = 128
	DefaultProgressBlock = 10240
)

// Sink is the flash-update destination. Begin reserves room for size bytes,
// Write stores the next chunk, End commits the image and IsFinished reports
// whether the committed image is complete and bootable.
type Sink interface {
	io.Writer
	Begin(size int64) error
	End() error
	IsFinished() bool
}

// ProgressFunc receives (written, total) at a bounded rate.
type ProgressFunc func(written, total int64)

// Request describes one firmware download. ExpectedSize is optional; when
// set it must match the declared content length.
type Request struct {
	URL          string
	ExpectedSize int64
}

type Transfer struct {
	client        *fetch.Client
	chunkSize     int
	progressBlock int64
	log           *slog.Logger
}

// New returns a Transfer. Non-positive sizes select the defaults.
func New(log *slog.Logger, client *fetch.Client, chunkSize int, progressBlock int64) *Transfer {
	if log == nil {
		log = slog.Default()
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if progressBlock <= 0 {
		progressBlock = DefaultProgressBlock
	}
	return &Transfer{client: client, chunkSize: chunkSize, progressBlock: progressBlock, log: log}
}

// Run downloads req.URL into sink. It never restarts the device. Cancelling
// ctx abandons the transfer without calling sink.End.
func (t *Transfer) Run(ctx context.Context, req Request, sink Sink, onProgress ProgressFunc) (data.Progress, error) {
	var p data.Progress

	resp, err := t.client.Get(ctx, fetch.EndpointFirmware, req.URL)
	if err != nil {
		return p, fmt.Errorf("%w: %w", data.ErrDownloadFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return p, fmt.Errorf("%w: %w", data.ErrDownloadFailed, &data.StatusError{Code: resp.StatusCode})
	}

	total := resp.ContentLength
	if total <= 0 {
		return p, data.ErrEmptySource
	}
	p.Total = total
	if req.ExpectedSize > 0 && req.ExpectedSize != total {
		return p, fmt.Errorf("%w: content length %d, expected %d", data.ErrSizeMismatch, total, req.ExpectedSize)
	}
	t.log.Info("firmware download", "url", req.URL, "size", total)

	if err := sink.Begin(total); err != nil {
		return p, fmt.Errorf("%w: %w", data.ErrInsufficientSpace, err)
	}

	cause := t.copy(ctx, resp.Body, sink, &p, onProgress)
	if ctx.Err() != nil {
		return p, ctx.Err()
	}
	t.log.Info("firmware written", "written", p.Written, "total", total)

	endErr := sink.End()
	finished := sink.IsFinished()
	switch {
	case endErr != nil:
		return p, fmt.Errorf("%w: %w", data.ErrWriteIncomplete, endErr)
	case !finished:
		return p, fmt.Errorf("%w: sink not finished", data.ErrWriteIncomplete)
	case p.Written < total:
		if cause != nil {
			return p, fmt.Errorf("%w: wrote %d of %d bytes: %w", data.ErrWriteIncomplete, p.Written, total, cause)
		}
		return p, fmt.Errorf("%w: wrote %d of %d bytes", data.ErrWriteIncomplete, p.Written, total)
	}
	return p, nil
}

// copy moves bytes until the body is exhausted, total is reached, the sink
// rejects a write or ctx is cancelled. It returns the condition that stopped
// it early, if any.
func (t *Transfer) copy(ctx context.Context, body io.Reader, sink Sink, p *data.Progress, onProgress ProgressFunc) error {
	buf := make([]byte, t.chunkSize)
	for p.Written < p.Total {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, rerr := body.Read(buf)
		if n > 0 {
			w, werr := sink.Write(buf[:n])
			if w > 0 {
				prev := p.Written
				p.Written += int64(w)
				metrics.BytesWritten.Add(float64(w))
				if onProgress != nil && (prev/t.progressBlock != p.Written/t.progressBlock || p.Written == p.Total) {
					onProgress(p.Written, p.Total)
				}
			}
			if werr != nil {
				return fmt.Errorf("sink write: %w", werr)
			}
			if w < n {
				return io.ErrShortWrite
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return nil
			}
			return rerr
		}
	}
	return nil
}
