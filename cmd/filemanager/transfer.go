package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gobeaver/filemanager"
)

var (
	downloadOutput string
	catRange       string
)

var uploadCmd = &cobra.Command{
	Use:   "upload <folder> <file> [file...]",
	Short: "Upload local files into a folder",
	Long: `Upload local files into a folder of the storage. Every file is
checked against the restriction policies and upload limits on its own.

Examples:
  filemanager upload /photos/ cat.jpg dog.jpg`,
	Args: cobra.MinimumNArgs(2),
	RunE: runUpload,
}

var downloadCmd = &cobra.Command{
	Use:   "download <path>",
	Short: "Download a file, or a folder as a zip archive",
	Long: `Download a file, or a folder as a zip archive.

Examples:
  filemanager download /reports/summary.pdf
  filemanager download /photos/ -O photos.zip`,
	Args: cobra.ExactArgs(1),
	RunE: runDownload,
}

var catCmd = &cobra.Command{
	Use:   "cat <path>",
	Short: "Print the content of a file",
	Long: `Print the content of a file, optionally a single byte range.

Examples:
  filemanager cat /notes.txt
  filemanager cat /notes.txt --range bytes=0-99`,
	Args: cobra.ExactArgs(1),
	RunE: runCat,
}

var extractCmd = &cobra.Command{
	Use:   "extract <archive> <target-folder>",
	Short: "Extract a zip archive into a folder",
	Args:  cobra.ExactArgs(2),
	RunE:  runExtract,
}

func init() {
	downloadCmd.Flags().StringVarP(&downloadOutput, "output-file", "O", "", "local file to write (default: name of the item)")
	catCmd.Flags().StringVar(&catRange, "range", "", "byte range, e.g. bytes=0-99")

	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(catCmd)
	rootCmd.AddCommand(extractCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	m, err := managerFromContext(cmd.Context())
	if err != nil {
		return err
	}

	files := make([]filemanager.UploadFile, 0, len(args)-1)
	for _, name := range args[1:] {
		f, err := os.Open(name)
		if err != nil {
			return err
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return err
		}
		files = append(files, filemanager.UploadFile{
			Name:   filepath.Base(name),
			Reader: f,
			Size:   info.Size(),
		})
	}

	results, err := m.Upload(cmd.Context(), args[0], files)
	if err != nil {
		return err
	}
	if err := newPrinter(os.Stdout).Uploads(results); err != nil {
		return err
	}
	for _, res := range results {
		if res.Err != nil {
			return errors.New("some files were rejected")
		}
	}
	return nil
}

func runDownload(cmd *cobra.Command, args []string) error {
	m, err := managerFromContext(cmd.Context())
	if err != nil {
		return err
	}

	info, err := m.GetInfo(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	target := downloadOutput
	if target == "" {
		target = info.Basename
		if info.IsDirectory {
			target += ".zip"
		}
	}

	f, err := os.Create(target)
	if err != nil {
		return err
	}
	if err := m.Download(cmd.Context(), newStreamWriter(f), args[0]); err != nil {
		f.Close()
		os.Remove(target)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "saved %s\n", target)
	return nil
}

func runCat(cmd *cobra.Command, args []string) error {
	m, err := managerFromContext(cmd.Context())
	if err != nil {
		return err
	}
	return m.ReadFile(cmd.Context(), newStreamWriter(os.Stdout), args[0], catRange)
}

func runExtract(cmd *cobra.Command, args []string) error {
	m, err := managerFromContext(cmd.Context())
	if err != nil {
		return err
	}
	items, err := m.Extract(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}
	return newPrinter(os.Stdout).Items(items)
}
