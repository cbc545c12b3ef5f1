// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package file_test

import (
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/bgcode/errors"
	"github.com/grailbio/bgcode/file"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/stretchr/testify/require"
)

func TestReadWrite(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()
	path := filepath.Join(dir, "out.bgcode")

	require.NoError(t, file.WriteFile(ctx, path, []byte("GCDE")))
	data, err := file.ReadFile(ctx, path)
	require.NoError(t, err)
	require.Equal(t, "GCDE", string(data))

	info, err := file.Stat(ctx, path)
	require.NoError(t, err)
	require.EqualValues(t, 4, info.Size())
}

func TestCreateDeferredCommit(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()
	path := filepath.Join(dir, "out.bgcode")

	f, err := file.Create(ctx, path)
	require.NoError(t, err)
	_, err = f.Writer(ctx).Write([]byte("partial"))
	require.NoError(t, err)
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err), "file visible before Close")
	require.NoError(t, f.Close(ctx))
	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestDiscard(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()
	path := filepath.Join(dir, "out.bgcode")

	f, err := file.Create(ctx, path)
	require.NoError(t, err)
	_, err = f.Writer(ctx).Write([]byte("unauthenticated"))
	require.NoError(t, err)
	require.NoError(t, f.Discard(ctx))

	entries, err := ioutil.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
	// Close after Discard is an error, not a commit.
	require.Error(t, f.Close(ctx))
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestOpenNotExist(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	_, err := file.Open(context.Background(), filepath.Join(dir, "missing"))
	require.True(t, errors.Is(errors.NotExist, err), "got %v", err)
}

func TestEmptyPath(t *testing.T) {
	_, err := file.Create(context.Background(), "")
	require.Regexp(t, "empty pathname", err)
}

// Test that Create on a symlink will preserve it.
func TestCreateSymlink(t *testing.T) {
	dir0, cleanup0 := testutil.TempDir(t, "", "")
	dir1, cleanup1 := testutil.TempDir(t, "", "")
	defer cleanup1()
	defer cleanup0()

	newPath := filepath.Join(dir1, "new")
	oldPath := filepath.Join(dir0, "old")
	require.NoError(t, os.Symlink(oldPath, newPath))
	require.NoError(t, ioutil.WriteFile(oldPath, []byte("hoofah"), 0777))

	ctx := context.Background()
	require.NoError(t, file.WriteFile(ctx, newPath, []byte("hello")))

	data, err := ioutil.ReadFile(newPath)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	// The file should have been created in the symlink dest dir.
	data, err = ioutil.ReadFile(oldPath)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestCreateDirectory(t *testing.T) {
	tmp, cleanup0 := testutil.TempDir(t, "", "")
	defer cleanup0()

	dirPath := filepath.Join(tmp, "dir")
	assert.Nil(t, os.Mkdir(dirPath, 0777))

	_, err := file.Create(context.Background(), dirPath)
	require.EqualError(t, err, fmt.Sprintf("file.Create %s: is a directory: invalid argument", dirPath))
}
