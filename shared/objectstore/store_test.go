package objectstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUploadPath(t *testing.T) {
	p := UploadPath("user-1", "My Report (final).pdf")

	assert.True(t, strings.HasPrefix(p, "uploads/user-1/"))
	assert.True(t, strings.HasSuffix(p, "-My_Report__final_.pdf"))
	assert.True(t, OwnedBy(p, "user-1"))
	assert.Equal(t, "My_Report__final_.pdf", BaseName(p))
}

func TestResultPath(t *testing.T) {
	assert.Equal(t, "results/user-1/job-1/out.pdf", ResultPath("user-1", "job-1", "out.pdf"))
	assert.Equal(t, "results/user-1/job-1/passwd", ResultPath("user-1", "job-1", "../../etc/passwd"))
}

func TestOwnedBy(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		userID string
		want   bool
	}{
		{name: "own upload", path: "uploads/u1/abc.pdf", userID: "u1", want: true},
		{name: "other user", path: "uploads/u2/abc.pdf", userID: "u1", want: false},
		{name: "user id prefix", path: "uploads/u10/abc.pdf", userID: "u1", want: false},
		{name: "results are not inputs", path: "results/u1/job/abc.pdf", userID: "u1", want: false},
		{name: "traversal", path: "uploads/u1/../u2/abc.pdf", userID: "u1", want: false},
		{name: "absolute", path: "/uploads/u1/abc.pdf", userID: "u1", want: false},
		{name: "directory only", path: "uploads/u1/", userID: "u1", want: false},
		{name: "empty user", path: "uploads//abc.pdf", userID: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OwnedBy(tt.path, tt.userID))
		})
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "report.pdf", want: "report.pdf"},
		{in: "C:\\docs\\scan 01.pdf", want: "scan_01.pdf"},
		{in: "..", want: "file"},
		{in: "", want: "file"},
		{in: "résumé.docx", want: "r_sum_.docx"},
		{in: strings.Repeat("a", 200) + ".pdf", want: strings.Repeat("a", 116) + ".pdf"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeName(tt.in), tt.in)
	}
}

func TestBaseName_WithoutUploadID(t *testing.T) {
	assert.Equal(t, "plain.pdf", BaseName("results/u1/j1/plain.pdf"))
}
