package hashutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shoenig/test/must"
)

func TestBlake3File(t *testing.T) {
	data := []byte("cesilk")
	path := filepath.Join(t.TempDir(), "data.bin")
	must.NoError(t, os.WriteFile(path, data, 0o644))

	got, err := Blake3File(path)
	must.NoError(t, err)
	must.EqOp(t, Blake3Hash(data), got)
	must.EqOp(t, 64, len(got))
	must.NotEq(t, Blake3Hash([]byte("other")), got)
}
