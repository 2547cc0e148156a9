package filemanager_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gobeaver/filemanager"
)

func uploadOne(t *testing.T, env *testEnv, folder string, f filemanager.UploadFile) filemanager.UploadResult {
	t.Helper()
	results, err := env.manager.Upload(context.Background(), folder, []filemanager.UploadFile{f})
	require.NoError(t, err)
	require.Len(t, results, 1)
	return results[0]
}

func TestUpload_Store(t *testing.T) {
	env := newTestEnv(t)

	res := uploadOne(t, env, "/", filemanager.UploadFile{Name: "notes.txt", Reader: strings.NewReader("hello world")})
	require.NoError(t, res.Err)
	assert.Equal(t, "notes.txt", res.Name)
	assert.Equal(t, int64(11), res.Size)

	sum, err := filemanager.CalculateChecksum(strings.NewReader("hello world"))
	require.NoError(t, err)
	assert.Equal(t, sum, res.Checksum)

	require.NotNil(t, res.Item)
	assert.Equal(t, "/notes.txt", res.Item.RelativePath)
	assert.Equal(t, int64(11), res.Item.Size)
	assert.Equal(t, "hello world", env.read(t, "/notes.txt"))

	e := env.events.last(t)
	assert.Equal(t, filemanager.EventFileUpload, e.Name)
	assert.Equal(t, []string{"/notes.txt"}, relativePaths(e.Items))
}

func TestUpload_NormalizesName(t *testing.T) {
	env := newTestEnv(t)

	res := uploadOne(t, env, "/", filemanager.UploadFile{Name: "../my report.txt", Reader: strings.NewReader("r")})
	require.NoError(t, res.Err)
	assert.Equal(t, "my_report.txt", res.Name)
	assert.True(t, env.exists("/my_report.txt"))

	res = uploadOne(t, env, "/", filemanager.UploadFile{Name: "...", Reader: strings.NewReader("r")})
	assertLabel(t, res.Err, filemanager.ErrRestrictedPattern, filemanager.LabelForbiddenName)
}

func TestUpload_UniqueNames(t *testing.T) {
	env := newTestEnv(t)
	env.write(t, "/a.txt", "first")
	env.write(t, "/a (1).txt", "second")

	res := uploadOne(t, env, "/", filemanager.UploadFile{Name: "a.txt", Reader: strings.NewReader("third")})
	require.NoError(t, res.Err)
	assert.Equal(t, "a (2).txt", res.Name)
	assert.Equal(t, "first", env.read(t, "/a.txt"))
	assert.Equal(t, "third", env.read(t, "/a (2).txt"))

	env.mkdir(t, "/docs")
	res = uploadOne(t, env, "/", filemanager.UploadFile{Name: "docs", Reader: strings.NewReader("x")})
	require.NoError(t, res.Err)
	assert.Equal(t, "docs (1)", res.Name)
}

func TestUpload_Overwrite(t *testing.T) {
	env := newTestEnv(t, func(c *filemanager.Config) {
		c.Upload.Overwrite = true
	})
	env.write(t, "/a.txt", "first")
	env.mkdir(t, "/docs")

	res := uploadOne(t, env, "/", filemanager.UploadFile{Name: "a.txt", Reader: strings.NewReader("replaced")})
	require.NoError(t, res.Err)
	assert.Equal(t, "a.txt", res.Name)
	assert.Equal(t, "replaced", env.read(t, "/a.txt"))

	res = uploadOne(t, env, "/", filemanager.UploadFile{Name: "docs", Reader: strings.NewReader("x")})
	assertLabel(t, res.Err, filemanager.ErrConflict, filemanager.LabelDirAlreadyExists)
}

func TestUpload_Restrictions(t *testing.T) {
	env := newTestEnv(t, func(c *filemanager.Config) {
		c.Security.Patterns.Restrictions = append(c.Security.Patterns.Restrictions, "*/secret*")
	})

	tests := []struct {
		name   string
		file   string
		target error
		label  string
	}{
		{"extension", "shell.php", filemanager.ErrRestrictedExtension, filemanager.LabelInvalidFileType},
		{"extension ignores case", "tool.EXE", filemanager.ErrRestrictedExtension, filemanager.LabelInvalidFileType},
		{"pattern", "secret-plans.txt", filemanager.ErrRestrictedPattern, filemanager.LabelForbiddenName},
		{"server config", "web.config", filemanager.ErrRestrictedPattern, filemanager.LabelForbiddenName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := uploadOne(t, env, "/", filemanager.UploadFile{Name: tt.file, Reader: strings.NewReader("x")})
			assertLabel(t, res.Err, tt.target, tt.label)
			assert.Nil(t, res.Item)
		})
	}

	assert.Empty(t, env.events.events, "rejected uploads dispatch no event")
}

func TestUpload_SizeLimit(t *testing.T) {
	env := newTestEnv(t, func(c *filemanager.Config) {
		c.Upload.FileSizeLimit = 1_000_000
	})

	t.Run("announced", func(t *testing.T) {
		res := uploadOne(t, env, "/", filemanager.UploadFile{Name: "big.bin", Reader: strings.NewReader("x"), Size: 2_000_000})
		assertLabel(t, res.Err, filemanager.ErrSizeLimit, filemanager.LabelUploadTooBig)

		var pe *filemanager.PathError
		require.True(t, errors.As(res.Err, &pe))
		assert.Equal(t, []string{"1 Mb"}, pe.Args)
	})

	t.Run("seekable stream", func(t *testing.T) {
		res := uploadOne(t, env, "/", filemanager.UploadFile{Name: "big.bin", Reader: bytes.NewReader(make([]byte, 1_000_001))})
		assertLabel(t, res.Err, filemanager.ErrSizeLimit, filemanager.LabelUploadTooBig)
	})

	t.Run("received", func(t *testing.T) {
		r := io.LimitReader(strings.NewReader(strings.Repeat("x", 1_500_000)), 1_500_000)
		res := uploadOne(t, env, "/", filemanager.UploadFile{Name: "big.bin", Reader: r})
		assertLabel(t, res.Err, filemanager.ErrSizeLimit, filemanager.LabelUploadTooBig)
	})

	assert.False(t, env.exists("/big.bin"), "nothing is stored")

	res := uploadOne(t, env, "/", filemanager.UploadFile{Name: "fits.bin", Reader: bytes.NewReader(make([]byte, 1_000_000))})
	require.NoError(t, res.Err)
}

func TestUpload_Quota(t *testing.T) {
	env := newTestEnv(t, func(c *filemanager.Config) {
		c.Options.FileRootSizeLimit = 10
	})
	env.write(t, "/a.txt", "abcdef")

	res := uploadOne(t, env, "/", filemanager.UploadFile{Name: "b.txt", Reader: strings.NewReader("hello")})
	assertLabel(t, res.Err, filemanager.ErrStorageFull, filemanager.LabelStorageSizeExceed)
	assert.False(t, env.exists("/b.txt"))

	res = uploadOne(t, env, "/", filemanager.UploadFile{Name: "c.txt", Reader: strings.NewReader("abcd")})
	require.NoError(t, res.Err)
}

func TestUpload_FileCountLimit(t *testing.T) {
	env := newTestEnv(t, func(c *filemanager.Config) {
		c.Upload.FileCountLimit = 1
		c.Upload.Overwrite = true
	})
	env.write(t, "/a.txt", "a")
	env.mkdir(t, "/docs")

	res := uploadOne(t, env, "/", filemanager.UploadFile{Name: "b.txt", Reader: strings.NewReader("b")})
	assertLabel(t, res.Err, filemanager.ErrFileCount, filemanager.LabelMaxNumberOfFiles)

	res = uploadOne(t, env, "/", filemanager.UploadFile{Name: "a.txt", Reader: strings.NewReader("replaced")})
	require.NoError(t, res.Err, "replacing a file does not add one")

	res = uploadOne(t, env, "/docs/", filemanager.UploadFile{Name: "b.txt", Reader: strings.NewReader("b")})
	require.NoError(t, res.Err, "the limit applies per folder")
}

func TestUpload_ImageBounds(t *testing.T) {
	env := newTestEnv(t, func(c *filemanager.Config) {
		c.Images.Main = filemanager.ImageBounds{MaxWidth: 50, MaxHeight: 50}
	})

	res := uploadOne(t, env, "/", filemanager.UploadFile{Name: "wide.png", Reader: bytes.NewReader(pngData(t, 100, 10))})
	assertLabel(t, res.Err, filemanager.ErrImageDimensions, filemanager.LabelImageTooWide)

	res = uploadOne(t, env, "/", filemanager.UploadFile{Name: "high.png", Reader: bytes.NewReader(pngData(t, 10, 100))})
	assertLabel(t, res.Err, filemanager.ErrImageDimensions, filemanager.LabelImageTooHigh)

	res = uploadOne(t, env, "/", filemanager.UploadFile{Name: "small.png", Reader: bytes.NewReader(pngData(t, 40, 40))})
	require.NoError(t, res.Err)

	// content that is no image is not measured
	res = uploadOne(t, env, "/", filemanager.UploadFile{Name: "fake.png", Reader: strings.NewReader("not a png")})
	require.NoError(t, res.Err)
}

func TestUpload_Thumbnail(t *testing.T) {
	env := newTestEnv(t)

	res := uploadOne(t, env, "/", filemanager.UploadFile{Name: "pic.png", Reader: bytes.NewReader(pngData(t, 200, 100))})
	require.NoError(t, res.Err)
	require.NotNil(t, res.Item)
	assert.True(t, res.Item.IsImage)
	require.NotNil(t, res.Item.Image)
	assert.Equal(t, 200, res.Item.Image.Width)
	assert.Equal(t, 100, res.Item.Image.Height)
	assert.Equal(t, "/_thumbs/pic.png", res.Item.Image.ThumbnailPath)
	assert.True(t, env.exists("/_thumbs/pic.png"))

	items, err := env.manager.ReadFolder(context.Background(), "/")
	require.NoError(t, err)
	assert.Equal(t, []string{"/pic.png"}, relativePaths(items), "the thumbnail folder is hidden")
}

func TestUpload_ThumbnailsDisabled(t *testing.T) {
	env := newTestEnv(t, func(c *filemanager.Config) {
		c.Images.Thumbnail.Enabled = false
	})

	res := uploadOne(t, env, "/", filemanager.UploadFile{Name: "pic.png", Reader: bytes.NewReader(pngData(t, 200, 100))})
	require.NoError(t, res.Err)
	assert.False(t, env.exists("/_thumbs"))
}

func TestUpload_Progress(t *testing.T) {
	var last, total int64
	calls := 0
	progress := func(name string, read, size int64) {
		assert.Equal(t, "data.bin", name)
		calls++
		last, total = read, size
	}
	env := newTestEnvWith(t, nil, []filemanager.ManagerOption{
		filemanager.WithUploadOptions(filemanager.WithProgress(progress)),
	})

	res := uploadOne(t, env, "/", filemanager.UploadFile{Name: "data.bin", Reader: bytes.NewReader(make([]byte, 5000))})
	require.NoError(t, res.Err)
	assert.Positive(t, calls)
	assert.Equal(t, int64(5000), last)
	assert.Equal(t, int64(5000), total)
}

func TestUpload_MixedBatch(t *testing.T) {
	env := newTestEnv(t)

	results, err := env.manager.Upload(context.Background(), "/", []filemanager.UploadFile{
		{Name: "ok.txt", Reader: strings.NewReader("ok")},
		{Name: "bad.php", Reader: strings.NewReader("<?php")},
		{Name: "also ok.txt", Reader: strings.NewReader("ok")},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.NoError(t, results[0].Err)
	assert.Error(t, results[1].Err)
	assert.NoError(t, results[2].Err)

	e := env.events.last(t)
	assert.Equal(t, []string{"/ok.txt", "/also_ok.txt"}, relativePaths(e.Items))
}

func TestUpload_InvalidFolder(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.write(t, "/a.txt", "a")

	_, err := env.manager.Upload(ctx, "/missing/", []filemanager.UploadFile{{Name: "x.txt", Reader: strings.NewReader("x")}})
	assertLabel(t, err, filemanager.ErrNotFound, filemanager.LabelDirNotExist)

	_, err = env.manager.Upload(ctx, "/a.txt", []filemanager.UploadFile{{Name: "x.txt", Reader: strings.NewReader("x")}})
	assertLabel(t, err, filemanager.ErrNotFound, filemanager.LabelDirNotExist)
}

func TestUpload_TraversalWithoutNormalization(t *testing.T) {
	env := newTestEnv(t, func(cfg *filemanager.Config) {
		cfg.Security.NormalizeFilename = false
	})
	outside := filepath.Dir(env.root)

	for _, name := range []string{"../escaped.txt", "../../escaped-deep.txt"} {
		t.Run(name, func(t *testing.T) {
			res := uploadOne(t, env, "/", filemanager.UploadFile{Name: name, Reader: strings.NewReader("payload")})
			assertLabel(t, res.Err, filemanager.ErrInvalidPath, filemanager.LabelInvalidFilePath)
			assert.Nil(t, res.Item)
		})
	}
	assert.NoFileExists(t, filepath.Join(outside, "escaped.txt"))
	assert.NoFileExists(t, filepath.Join(filepath.Dir(outside), "escaped-deep.txt"))
	assert.Empty(t, env.events.events)
}
