package filemanager

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/", "/"},
		{"//a///b/", "/a/b/"},
		{`\a\b.txt`, "/a/b.txt"},
		{`a\\b//c`, "a/b/c"},
		{"/a/../b", "/a/../b"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := CleanPath(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, CleanPath(got), "cleaning is idempotent")
		})
	}
}

func TestSubtractPath(t *testing.T) {
	tests := []struct {
		name   string
		full   string
		prefix string
		want   string
	}{
		{"prefix at start", "/var/files/a/b.txt", "/var/files/", "/a/b.txt"},
		{"prefix elsewhere", "/x/var/files/a", "/var/files/", ""},
		{"prefix repeated later", "/a/root/root/x", "/root", ""},
		{"equal", "/var/files/", "/var/files/", ""},
		{"empty prefix", "/a", "", ""},
		{"keeps trailing slash", "/root/dir/", "/root", "/dir/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SubtractPath(tt.full, tt.prefix))
		})
	}
}

func TestResolver(t *testing.T) {
	r := NewResolver("/var/www//files", "/files")

	assert.Equal(t, "/var/www/files/", r.Root())
	assert.Equal(t, "/var/www/files/docs/a.txt", r.Absolute("docs/a.txt"))
	assert.Equal(t, "/var/www/files/docs/", r.Absolute("/docs/"))
	assert.Equal(t, "/docs/a.txt", r.Relative("/var/www/files/docs/a.txt"))
	assert.Equal(t, "/files/docs/a.txt", r.Dynamic("/docs/a.txt"))

	assert.True(t, r.IsRoot("/var/www/files"))
	assert.True(t, r.IsRoot("/var/www/files/"))
	assert.False(t, r.IsRoot("/var/www/files/docs/"))

	for _, p := range []string{"/var/www/files/", "/var/www/files", "/var/www/files/a/b.txt"} {
		assert.True(t, r.IsValid(p), p)
	}
	for _, p := range []string{"/var/www/other/a", "/var/www/files/../secret", "/var/www/files/./a", "/etc/passwd"} {
		assert.False(t, r.IsValid(p), p)
	}

	sub := r.Sub("_thumbs")
	assert.Equal(t, "/var/www/files/_thumbs/", sub.Root())
	assert.Equal(t, "/files/_thumbs", sub.DynamicRoot())
}

func TestResolverURLRoot(t *testing.T) {
	r := NewResolver("s3://bucket//media", "")

	assert.Equal(t, "s3://bucket/media/", r.Root())
	assert.Equal(t, "s3://bucket/media/a/b.png", r.Absolute("/a/b.png"))
	assert.Equal(t, "/a/b.png", r.Relative("s3://bucket/media/a/b.png"))
}

func TestDirBaseJoin(t *testing.T) {
	assert.Equal(t, "/", Dir("/"))
	assert.Equal(t, "/", Dir("/a.txt"))
	assert.Equal(t, "/a/", Dir("/a/b/"))
	assert.Equal(t, "/a/b/", Dir("/a/b/c.txt"))

	assert.Equal(t, "", Base("/"))
	assert.Equal(t, "b", Base("/a/b/"))
	assert.Equal(t, "c.txt", Base("/a/b/c.txt"))

	assert.Equal(t, "/a/b.txt", Join("/a/", "b.txt"))
	assert.Equal(t, "/a/b/", Join("/a", "b/"))
}
