package filemanager_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/gobeaver/filemanager"
	"github.com/gobeaver/filemanager/driver/local"
)

func exampleManager() (*filemanager.Manager, func()) {
	dir, _ := os.MkdirTemp("", "filemanager-example-*")
	cfg := filemanager.DefaultConfig()
	cfg.Options.FileRoot = dir

	s, err := local.New(filemanager.StorageLocal, cfg, filemanager.WithLogger(slog.New(slog.DiscardHandler)))
	if err != nil {
		panic(err)
	}
	return filemanager.NewManager(s), func() {
		s.Close()
		os.RemoveAll(dir)
	}
}

func ExampleManager_Upload() {
	ctx := context.Background()
	m, cleanup := exampleManager()
	defer cleanup()

	_, _ = m.AddFolder(ctx, "/", "docs")

	results, _ := m.Upload(ctx, "/docs/", []filemanager.UploadFile{
		{Name: "report.txt", Reader: strings.NewReader("quarterly numbers")},
		{Name: "report.txt", Reader: strings.NewReader("second draft")},
		{Name: "install.sh", Reader: strings.NewReader("#!/bin/sh")},
	})

	for _, res := range results {
		if res.Err != nil {
			fmt.Printf("%s: %s\n", res.Name, filemanager.LabelOf(res.Err))
			continue
		}
		fmt.Printf("%s: %d bytes\n", res.Item.RelativePath, res.Item.Size)
	}
	// Output:
	// /docs/report.txt: 17 bytes
	// /docs/report (1).txt: 12 bytes
	// install.sh: INVALID_FILE_TYPE
}

func ExampleManager_ReadFolder() {
	ctx := context.Background()
	m, cleanup := exampleManager()
	defer cleanup()

	_, _ = m.AddFolder(ctx, "/", "photos")
	_, _ = m.Upload(ctx, "/", []filemanager.UploadFile{
		{Name: "notes.txt", Reader: strings.NewReader("hello")},
	})

	items, _ := m.ReadFolder(ctx, "/")
	for _, item := range items {
		fmt.Println(item.RelativePath, item.IsDirectory)
	}
	// Output:
	// /notes.txt false
	// /photos/ true
}

func ExampleLabelOf() {
	ctx := context.Background()
	m, cleanup := exampleManager()
	defer cleanup()

	_, err := m.GetInfo(ctx, "/missing.txt")
	fmt.Println(filemanager.LabelOf(err), filemanager.StatusCode(err))
	// Output:
	// FILE_DOES_NOT_EXIST 404
}
