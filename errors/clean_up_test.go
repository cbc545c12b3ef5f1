// Copyright 2024 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package errors_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/grailbio/bgcode/errors"
	"github.com/grailbio/bgcode/file"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

// writeContainer writes a stub container to path and returns ret.
// With closeTwice, the deferred Close fails because the file was
// already committed.
func writeContainer(ctx context.Context, path string, closeTwice, useCtx bool, ret error) (err error) {
	f, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	if useCtx {
		defer errors.CleanUpCtx(ctx, f.Close, &err)
	} else {
		defer errors.CleanUp(func() error { return f.Close(ctx) }, &err)
	}
	if _, err = f.Writer(ctx).Write([]byte("GCDE")); err != nil {
		return err
	}
	if closeTwice {
		if err = f.Close(ctx); err != nil {
			return err
		}
	}
	return ret
}

func TestCleanUp(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()
	for _, useCtx := range []bool{false, true} {
		path := filepath.Join(dir, "out.bgcode")

		// Close commits the file.
		require.NoError(t, writeContainer(ctx, path, false, useCtx, nil))
		data, err := file.ReadFile(ctx, path)
		require.NoError(t, err)
		expect.EQ(t, string(data), "GCDE")

		// The returned error is kept when Close succeeds.
		badTag := errors.E(errors.Integrity, "decrypt [block 3]: authentication tag mismatch")
		err = writeContainer(ctx, path, false, useCtx, badTag)
		expect.True(t, err == badTag)

		// A failed Close is reported when nothing else failed.
		err = writeContainer(ctx, path, true, useCtx, nil)
		require.Error(t, err)
		expect.True(t, errors.Is(errors.Invalid, err))
		expect.HasSubstr(t, err.Error(), "file already closed")

		// A failed Close is mentioned after the returned error, which
		// keeps its kind.
		badTag = errors.E(errors.Integrity, "decrypt [block 3]: authentication tag mismatch")
		err = writeContainer(ctx, path, true, useCtx, badTag)
		require.Error(t, err)
		expect.True(t, errors.Is(errors.Integrity, err))
		expect.HasSubstr(t, err.Error(), "authentication tag mismatch")
		expect.HasSubstr(t, err.Error(), "second error in Close")
		expect.HasSubstr(t, err.Error(), "file already closed")
	}
}
