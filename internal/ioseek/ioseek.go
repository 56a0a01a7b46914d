// Package ioseek implements the byte I/O layer (spec §4.1): a seekable
// reader/writer abstraction over a local file, with absolute/relative seek,
// size query, line reads (for @file option expansion), and typed I/O errors.
//
// The style mirrors matroska.EBMLReader (github.com/ebmlmux/gomkvmerge/matroska):
// a thin struct wrapping an os.File, tracking its own position so seeks and
// reads agree even across the buffered writer below.
package ioseek

import (
	"bufio"
	"errors"
	"io"
	"os"

	"github.com/ebmlmux/gomkvmerge/internal/mkverrors"
)

// Whence mirrors io.Seeker's whence constants under spec-named identifiers.
const (
	WhenceStart   = io.SeekStart
	WhenceCurrent = io.SeekCurrent
	WhenceEnd     = io.SeekEnd
)

// Reader is a seekable input: one per demultiplexer's underlying file.
type Reader struct {
	f    *os.File
	br   *bufio.Reader
	pos  int64
	path string
}

// OpenForRead opens path for reading.
func OpenForRead(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, classifyOpenErr("open", path, err)
	}
	return &Reader{f: f, br: bufio.NewReaderSize(f, 64*1024), path: path}, nil
}

// Size returns the total size of the underlying file.
func (r *Reader) Size() (int64, error) {
	fi, err := r.f.Stat()
	if err != nil {
		return 0, &mkverrors.IOError{Kind: mkverrors.IOErrorOther, Op: "stat", Path: r.path, Err: err}
	}
	return fi.Size(), nil
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.br.Read(p)
	r.pos += int64(n)
	if err != nil && err != io.EOF {
		err = &mkverrors.IOError{Kind: mkverrors.IOErrorShortRead, Op: "read", Path: r.path, Err: err}
	}
	return n, err
}

// Seek implements io.Seeker. Because Read goes through a bufio.Reader, any
// seek discards the read-ahead buffer.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	if whence == io.SeekCurrent {
		// The OS file offset runs ahead of the logical position by whatever
		// the bufio.Reader holds, so resolve relative seeks against r.pos.
		offset += r.pos
		whence = io.SeekStart
	}
	pos, err := r.f.Seek(offset, whence)
	if err != nil {
		return 0, &mkverrors.IOError{Kind: mkverrors.IOErrorSeekFailed, Op: "seek", Path: r.path, Err: err}
	}
	r.br.Reset(r.f)
	r.pos = pos
	return pos, nil
}

// Tell returns the current logical position.
func (r *Reader) Tell() int64 { return r.pos }

// ReadLine reads one '\n'-delimited line (used by @file option expansion),
// stripping the trailing newline and any carriage return.
func (r *Reader) ReadLine() (string, error) {
	line, err := r.br.ReadString('\n')
	r.pos += int64(len(line))
	if len(line) > 0 && line[len(line)-1] == '\n' {
		line = line[:len(line)-1]
	}
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}
	if err != nil && err != io.EOF {
		return line, &mkverrors.IOError{Kind: mkverrors.IOErrorOther, Op: "readline", Path: r.path, Err: err}
	}
	return line, err
}

// Close closes the underlying file.
func (r *Reader) Close() error { return r.f.Close() }

// Writer is the container writer's output file handle. Writes are
// buffered, but WriteAt flushes first so a back-patch write lands on top of
// the latest bytes (spec §4.1).
type Writer struct {
	f    *os.File
	bw   *bufio.Writer
	pos  int64
	path string
}

// Create opens path for writing, truncating any existing file.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, classifyOpenErr("create", path, err)
	}
	return &Writer{f: f, bw: bufio.NewWriterSize(f, 64*1024), path: path}, nil
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.bw.Write(p)
	w.pos += int64(n)
	if err != nil {
		err = &mkverrors.IOError{Kind: mkverrors.IOErrorWriteFailed, Op: "write", Path: w.path, Err: err}
	}
	return n, err
}

// Tell returns the current logical write position (post-buffering).
func (w *Writer) Tell() int64 { return w.pos }

// WriteAt writes p at an earlier absolute offset without disturbing the
// writer's current logical position or truncating bytes already written
// past offset+len(p). This is how the container writer back-patches the
// reserved seek-head void, the duration placeholder, and the final segment
// size (spec §4.6 phases 8–10).
func (w *Writer) WriteAt(offset int64, p []byte) error {
	if err := w.bw.Flush(); err != nil {
		return &mkverrors.IOError{Kind: mkverrors.IOErrorWriteFailed, Op: "flush", Path: w.path, Err: err}
	}
	if _, err := w.f.WriteAt(p, offset); err != nil {
		return &mkverrors.IOError{Kind: mkverrors.IOErrorWriteFailed, Op: "writeat", Path: w.path, Err: err}
	}
	return nil
}

// Flush flushes the buffered writer without moving the file position.
func (w *Writer) Flush() error {
	if err := w.bw.Flush(); err != nil {
		return &mkverrors.IOError{Kind: mkverrors.IOErrorWriteFailed, Op: "flush", Path: w.path, Err: err}
	}
	return nil
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}
	return w.f.Close()
}

func classifyOpenErr(op, path string, err error) error {
	kind := mkverrors.IOErrorOther
	switch {
	case errors.Is(err, os.ErrNotExist):
		kind = mkverrors.IOErrorNotFound
	case errors.Is(err, os.ErrPermission):
		kind = mkverrors.IOErrorPermission
	}
	return &mkverrors.IOError{Kind: kind, Op: op, Path: path, Err: err}
}
