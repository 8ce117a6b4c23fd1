package cmc

import (
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/motrack/internal/fsutil"
)

func TestNew(t *testing.T) {
	t.Parallel()

	est, err := New(Options{Method: "none"})
	require.NoError(t, err)
	tr, err := est.Estimate(image.NewGray(image.Rect(0, 0, 4, 4)), nil)
	require.NoError(t, err)
	assert.True(t, tr.IsIdentity())

	_, err = New(Options{Method: "telepathy"})
	assert.ErrorIs(t, err, ErrUnsupportedMethod)

	_, err = New(Options{Method: "file"})
	assert.Error(t, err, "file method without a path")

	assert.Contains(t, Methods(), "none")
	assert.Contains(t, Methods(), "file")
}

func TestRegister_Duplicate(t *testing.T) {
	t.Parallel()
	assert.Panics(t, func() {
		Register("none", func(Options) (Estimator, error) { return None{}, nil })
	})
	assert.Panics(t, func() { Register("nil-factory", nil) })
}

func TestFileEstimator(t *testing.T) {
	t.Parallel()
	fs := fsutil.NewMemoryFileSystem()
	content := "# frame a b tx c d ty\n" +
		"1 1 0 0 0 1 0\n" +
		"\n" +
		"2,1,0,5.5,0,1,-2\n" +
		"3\t1.01\t0\t0\t0\t1.01\t0\n"
	require.NoError(t, fs.WriteFile("/seq/gmc.txt", []byte(content), 0644))

	est, err := New(Options{Method: "file", File: "/seq/gmc.txt", FS: fs})
	require.NoError(t, err)
	fe := est.(*FileEstimator)
	assert.Equal(t, 3, fe.Len())

	tr, err := est.Estimate(nil, nil)
	require.NoError(t, err)
	assert.True(t, tr.IsIdentity())

	tr, err = est.Estimate(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, Translation(5.5, -2), tr)

	tr, err = est.Estimate(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.01, tr[0])

	tr, err = est.Estimate(nil, nil)
	assert.True(t, errors.Is(err, ErrNoTransform))
	assert.True(t, tr.IsIdentity())
}

func TestParseFile_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name, content string
	}{
		{"too few fields", "1 1 0 0 0 1\n"},
		{"bad number", "1 1 0 x 0 1 0\n"},
		{"bad frame", "a 1 0 0 0 1 0\n"},
		{"frames out of order", "2 1 0 0 0 1 0\n1 1 0 0 0 1 0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFile([]byte(tt.content))
			assert.Error(t, err)
		})
	}
}
