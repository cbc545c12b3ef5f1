// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package file

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"github.com/grailbio/bgcode/errors"
	"github.com/grailbio/bgcode/log"
)

type localImpl struct{}

var local localImpl

type accessMode int

const (
	readonly      accessMode = iota // file opened by Open.
	writeonlyFile                   // regular file opened by Create.
	writeonlyDev                    // device, pipe or socket opened by Create.
)

type localInfo struct {
	size    int64
	modTime time.Time
}

func (i *localInfo) Size() int64        { return i.size }
func (i *localInfo) ModTime() time.Time { return i.modTime }

type localFile struct {
	f        *os.File
	mode     accessMode
	path     string // User-supplied path.
	realPath string // Path after symlink resolution.
	done     bool
}

func (localImpl) open(_ context.Context, path string) (File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.E("file.Open", path, err)
	}
	return &localFile{f: f, mode: readonly, path: path}, nil
}

// create makes writes appear atomic: it writes a temporary file named
// <path>.tmp* in the same directory, then renames it to <path> on
// Close. Devices such as /dev/stdout are written directly.
func (localImpl) create(_ context.Context, path string) (File, error) {
	if path == "" {
		return nil, errors.E(errors.Invalid, "file.Create: empty pathname")
	}
	realPath, err := filepath.EvalSymlinks(path)
	if err != nil {
		// The file, or the destination of a symlink, doesn't exist yet.
		realPath = path
	}
	if stat, err := os.Stat(path); err == nil {
		if stat.IsDir() {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("file.Create %s: is a directory", path))
		}
		if stat.Mode()&(os.ModeDevice|os.ModeNamedPipe|os.ModeSocket) != 0 {
			f, err := os.OpenFile(path, os.O_WRONLY, 0)
			if err != nil {
				return nil, errors.E("file.Create", path, err)
			}
			return &localFile{f: f, mode: writeonlyDev, path: path, realPath: realPath}, nil
		}
	}
	dir := filepath.Dir(realPath)
	f, err := ioutil.TempFile(dir, filepath.Base(realPath)+".tmp")
	if err != nil {
		if err := os.MkdirAll(dir, 0777); err != nil {
			log.Error.Printf("mkdir %v: error %v", dir, err)
		}
		f, err = ioutil.TempFile(dir, filepath.Base(realPath)+".tmp")
		if err != nil {
			return nil, errors.E("file.Create", path, err)
		}
	}
	return &localFile{f: f, mode: writeonlyFile, path: path, realPath: realPath}, nil
}

func (localImpl) stat(_ context.Context, path string) (Info, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.E("file.Stat", path, err)
	}
	if info.IsDir() {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("stat %v: is a directory", path))
	}
	return &localInfo{size: info.Size(), modTime: info.ModTime()}, nil
}

func (localImpl) remove(_ context.Context, path string) error {
	if err := os.Remove(path); err != nil {
		return errors.E("file.Remove", path, err)
	}
	return nil
}

// Name implements file.File.
func (f *localFile) Name() string { return f.path }

// String returns the user-supplied path.
func (f *localFile) String() string { return f.path }

// Reader implements file.File.
func (f *localFile) Reader(context.Context) io.ReadSeeker {
	if f.mode != readonly {
		return &errorReaderWriter{fmt.Errorf("reader %v: file is not opened in read mode", f.path)}
	}
	return f.f
}

// Writer implements file.File.
func (f *localFile) Writer(context.Context) io.Writer {
	if f.mode == readonly {
		return &errorReaderWriter{fmt.Errorf("writer %v: file is not opened in write mode", f.path)}
	}
	return f.f
}

// Stat implements file.File.
func (f *localFile) Stat(context.Context) (Info, error) {
	info, err := f.f.Stat()
	if err != nil {
		return nil, err
	}
	return &localInfo{size: info.Size(), modTime: info.ModTime()}, nil
}

// Close implements file.File.
func (f *localFile) Close(context.Context) error {
	if f.done {
		return errors.E(errors.Invalid, fmt.Sprintf("close %v: file already closed", f.path))
	}
	f.done = true
	if f.mode != writeonlyFile {
		return f.f.Close()
	}
	err := f.f.Sync()
	if e := f.f.Close(); e != nil && err == nil {
		err = e
	}
	if err != nil {
		_ = os.Remove(f.f.Name())
		return err
	}
	return os.Rename(f.f.Name(), f.realPath)
}

// Discard implements file.File.
func (f *localFile) Discard(context.Context) error {
	if f.done || f.mode != writeonlyFile {
		return nil
	}
	f.done = true
	if err := f.f.Close(); err != nil {
		log.Printf("discard %s: close: %v", f.path, err)
	}
	if err := os.Remove(f.f.Name()); err != nil {
		log.Error.Printf("discard %s: remove: %v", f.path, err)
		return err
	}
	return nil
}
