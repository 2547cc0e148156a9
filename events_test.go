package filemanager

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMultiSink(t *testing.T) {
	var got []string
	record := func(prefix string) EventSink {
		return EventSinkFunc(func(_ context.Context, e Event) {
			got = append(got, prefix+":"+e.Name)
		})
	}

	sink := MultiSink{record("a"), NopSink{}, record("b")}
	sink.Dispatch(context.Background(), Event{Name: EventItemDelete})

	assert.Equal(t, []string{"a:" + EventItemDelete, "b:" + EventItemDelete}, got)
}

func TestSlogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	SlogSink{Logger: logger}.Dispatch(context.Background(), Event{
		Name:    EventItemRename,
		Storage: "local",
		Items:   []*ItemData{{RelativePath: "/a.txt"}, {RelativePath: "/b.txt"}},
	})

	out := buf.String()
	assert.Contains(t, out, "name="+EventItemRename)
	assert.Contains(t, out, "storage=local")
	assert.Contains(t, out, "/a.txt")
	assert.Contains(t, out, "/b.txt")
}
