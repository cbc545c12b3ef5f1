// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package file provides local file access with deferred commit. A
// file opened by Create is written to a temporary sibling and only
// appears under its final name when Close succeeds; Discard removes
// the temporary. Codec output is written this way so that a failed
// operation never leaves a partial container behind.
package file

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"time"
)

// File defines operations on a file. Implementations must be thread safe.
type File interface {
	// Name returns the path name given to file.Open or file.Create when this
	// object was created.
	Name() string

	// Stat returns file metadata.
	//
	// REQUIRES: Close has not been called
	Stat(ctx context.Context) (Info, error)

	// Reader returns the file's reader. Calls share the seek pointer.
	//
	// REQUIRES: Close has not been called
	Reader(ctx context.Context) io.ReadSeeker

	// Writer returns the file's writer. Calls share the seek pointer.
	//
	// REQUIRES: Close has not been called
	Writer(ctx context.Context) io.Writer

	// Discard abandons a file opened by Create, removing pending
	// writes. It is a no-op for files opened for reading. Exactly one
	// of Discard or Close should be called.
	Discard(ctx context.Context) error

	// Close commits the contents of a written file under its final
	// name, or releases a file opened for reading.
	Close(ctx context.Context) error
}

// Info represents file metadata.
type Info interface {
	// Size returns the length of the file in bytes.
	Size() int64
	// ModTime returns the modification time.
	ModTime() time.Time
}

// Open opens path for reading.
func Open(ctx context.Context, path string) (File, error) {
	return local.open(ctx, path)
}

// Create opens path for writing. The contents become visible under
// path on Close.
func Create(ctx context.Context, path string) (File, error) {
	return local.create(ctx, path)
}

// Stat returns the metadata of the file at path.
func Stat(ctx context.Context, path string) (Info, error) {
	return local.stat(ctx, path)
}

// Remove removes the file at path.
func Remove(ctx context.Context, path string) error {
	return local.remove(ctx, path)
}

// ReadFile reads the given file and returns the contents. A successful call
// returns err == nil, not err == EOF.
func ReadFile(ctx context.Context, path string) ([]byte, error) {
	in, err := Open(ctx, path)
	if err != nil {
		return nil, err
	}
	data, err := ioutil.ReadAll(in.Reader(ctx))
	if err != nil {
		in.Close(ctx) // nolint: errcheck
		return nil, err
	}
	return data, in.Close(ctx)
}

// WriteFile writes data to the given file, replacing it atomically if
// it exists.
func WriteFile(ctx context.Context, path string, data []byte) error {
	out, err := Create(ctx, path)
	if err != nil {
		return err
	}
	n, err := out.Writer(ctx).Write(data)
	if n != len(data) && err == nil {
		err = fmt.Errorf("writefile %s: requested to write %d bytes, actually wrote %d bytes", path, len(data), n)
	}
	if err != nil {
		out.Discard(ctx) // nolint: errcheck
		return err
	}
	return out.Close(ctx)
}

type errorReaderWriter struct{ err error }

func (r *errorReaderWriter) Read([]byte) (int, error)       { return -1, r.err }
func (r *errorReaderWriter) Seek(int64, int) (int64, error) { return -1, r.err }
func (r *errorReaderWriter) Write([]byte) (int, error)      { return -1, r.err }
