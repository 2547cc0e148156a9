package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/gobeaver/filemanager"
)

// Output formats.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// printer renders command results in the selected output format.
type printer struct {
	w      io.Writer
	format string
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w, format: viper.GetString("output")}
}

func (p *printer) encode(v any) (bool, error) {
	switch p.format {
	case formatJSON:
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	case formatTable, "":
		return false, nil
	default:
		return true, fmt.Errorf("unknown output format %q", p.format)
	}
}

// Items prints item snapshots, one per row.
func (p *printer) Items(items []*filemanager.ItemData) error {
	if done, err := p.encode(items); done {
		return err
	}

	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tSIZE\tMODIFIED\tPATH")
	for _, item := range items {
		kind, size := filemanager.TypeFile, strconv.FormatInt(item.Size, 10)
		if item.IsDirectory {
			kind, size = filemanager.TypeFolder, "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", kind, size, formatTime(item.Modified), item.RelativePath)
	}
	return tw.Flush()
}

// Item prints a single snapshot.
func (p *printer) Item(item *filemanager.ItemData) error {
	if done, err := p.encode(item); done {
		return err
	}

	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Path:\t%s\n", item.RelativePath)
	fmt.Fprintf(tw, "Public path:\t%s\n", item.DynamicPath)
	fmt.Fprintf(tw, "Directory:\t%t\n", item.IsDirectory)
	fmt.Fprintf(tw, "Readable:\t%t\n", item.IsReadable)
	fmt.Fprintf(tw, "Writable:\t%t\n", item.IsWritable)
	fmt.Fprintf(tw, "Modified:\t%s\n", formatTime(item.Modified))
	if !item.IsDirectory {
		fmt.Fprintf(tw, "Size:\t%d\n", item.Size)
	}
	if item.Image != nil {
		fmt.Fprintf(tw, "Dimensions:\t%dx%d\n", item.Image.Width, item.Image.Height)
		fmt.Fprintf(tw, "Thumbnail:\t%s\n", item.Image.ThumbnailPath)
	}
	return tw.Flush()
}

// uploadRow is the serialized form of an upload result.
type uploadRow struct {
	Name     string `json:"name" yaml:"name"`
	Size     int64  `json:"size" yaml:"size"`
	Checksum string `json:"checksum,omitempty" yaml:"checksum,omitempty"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
	Label    string `json:"label,omitempty" yaml:"label,omitempty"`
}

// Uploads prints one row per uploaded file.
func (p *printer) Uploads(results []filemanager.UploadResult) error {
	rows := make([]uploadRow, 0, len(results))
	for _, res := range results {
		row := uploadRow{Name: res.Name, Size: res.Size, Checksum: res.Checksum}
		if res.Err != nil {
			row.Error = res.Err.Error()
			row.Label = filemanager.LabelOf(res.Err)
		}
		rows = append(rows, row)
	}
	if done, err := p.encode(rows); done {
		return err
	}

	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSIZE\tCHECKSUM\tSTATUS")
	for _, row := range rows {
		status := "ok"
		if row.Label != "" {
			status = row.Label
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", row.Name, row.Size, row.Checksum, status)
	}
	return tw.Flush()
}

// Summary prints storage totals.
func (p *printer) Summary(s filemanager.Summary) error {
	if done, err := p.encode(s); done {
		return err
	}

	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Files:\t%d\n", s.Files)
	fmt.Fprintf(tw, "Folders:\t%d\n", s.Folders)
	fmt.Fprintf(tw, "Size:\t%d\n", s.Size)
	limit := "none"
	if s.SizeLimit > 0 {
		limit = strconv.FormatInt(s.SizeLimit, 10)
	}
	fmt.Fprintf(tw, "Size limit:\t%s\n", limit)
	return tw.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

// streamWriter adapts an io.Writer to the http.ResponseWriter the streaming
// operations write to.
type streamWriter struct {
	w      io.Writer
	header http.Header
	status int
}

func newStreamWriter(w io.Writer) *streamWriter {
	return &streamWriter{w: w, header: make(http.Header)}
}

func (s *streamWriter) Header() http.Header { return s.header }

func (s *streamWriter) WriteHeader(status int) {
	if s.status == 0 {
		s.status = status
	}
}

func (s *streamWriter) Write(p []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.w.Write(p)
}
