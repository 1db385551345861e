package storage

import (
	"errors"
	"io"
	"sync"
)

// ProgressFunc receives the cumulative bytes transferred out of total.
type ProgressFunc func(transferred, total int64)

// progressReader reports bytes read from the underlying body.
//
// The S3 client may rewind a seekable body after hashing it, so Seek resets
// the count to the new offset instead of double counting.
type progressReader struct {
	r     io.Reader
	total int64
	fn    ProgressFunc

	mu   sync.Mutex
	read int64
}

func newProgressReader(r io.Reader, total int64, fn ProgressFunc) *progressReader {
	return &progressReader{r: r, total: total, fn: fn}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.advance(int64(n))
	}
	return n, err
}

func (p *progressReader) Seek(offset int64, whence int) (int64, error) {
	s, ok := p.r.(io.Seeker)
	if !ok {
		return 0, errors.New("progress reader: body is not seekable")
	}
	pos, err := s.Seek(offset, whence)
	if err != nil {
		return pos, err
	}
	p.mu.Lock()
	p.read = pos
	p.mu.Unlock()
	return pos, nil
}

func (p *progressReader) advance(n int64) {
	p.mu.Lock()
	p.read += n
	read := p.read
	p.mu.Unlock()
	if p.fn != nil {
		p.fn(read, p.total)
	}
}

// progressSink counts bytes the MinIO client reports as sent.
type progressSink struct {
	total int64
	fn    ProgressFunc

	mu   sync.Mutex
	sent int64
}

func (p *progressSink) Read(b []byte) (int, error) {
	p.mu.Lock()
	p.sent += int64(len(b))
	sent := p.sent
	p.mu.Unlock()
	if p.fn != nil {
		p.fn(sent, p.total)
	}
	return len(b), nil
}
