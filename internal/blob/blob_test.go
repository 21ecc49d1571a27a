package blob

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseGSURI(t *testing.T) {
	bucket, key, err := ParseGSURI("gs://uploads/users/1/doc.md")
	require.NoError(t, err)
	assert.Equal(t, "uploads", bucket)
	assert.Equal(t, "users/1/doc.md", key)

	for _, bad := range []string{"s3://x/y", "gs://bucket", "gs:///key"} {
		_, _, err := ParseGSURI(bad)
		assert.Error(t, err, bad)
	}
}

func TestLocal_Get(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.md"), []byte("# hi"), 0o600))

	l := NewLocal(root, 0)
	obj, err := l.Get(context.Background(), "file://notes.md")
	require.NoError(t, err)
	assert.Equal(t, "# hi", string(obj.Data))
	assert.Equal(t, "notes.md", obj.Name)

	// cannot escape the root
	_, err = l.Get(context.Background(), "../notes.md")
	require.NoError(t, err)
	_, err = l.Get(context.Background(), "../../etc/passwd")
	assert.Error(t, err)
}

func TestLocal_SizeLimit(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "big.txt"), []byte("0123456789"), 0o600))

	_, err := NewLocal(root, 5).Get(context.Background(), "big.txt")
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestMux_WithoutGCS(t *testing.T) {
	m, err := NewMux(context.Background(), Config{LocalRoot: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)
	_, err = m.Get(context.Background(), "gs://bucket/key")
	assert.Error(t, err)
	assert.NoError(t, m.Close())
}
