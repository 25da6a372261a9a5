package manifest

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// WriteConcat writes the ffconcat list. A still last file is repeated without a duration so the
// demuxer honours the final hold. A trailing clip is not repeated.
func WriteConcat(w io.Writer, m *Manifest) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "ffconcat version 1.0")

	all := m.All()
	for _, p := range all {
		fmt.Fprintf(bw, "file '%s'\n", quote(abs(p.Path)))
		fmt.Fprintf(bw, "duration %.3f\n", p.Duration)
	}
	if n := len(all); n > 0 && !all[n-1].Clip {
		fmt.Fprintf(bw, "file '%s'\n", quote(abs(all[n-1].Path)))
	}
	return bw.Flush()
}

func WriteConcatFile(path string, m *Manifest) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	if err := WriteConcat(f, m); err != nil {
		f.Close()
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return f.Close()
}

func quote(path string) string {
	return strings.ReplaceAll(path, "'", `'\''`)
}
