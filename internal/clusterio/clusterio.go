// Package clusterio reads and writes clusterings as text: one cluster per
// line, document ids separated by single spaces.
package clusterio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/cluster"
	apperrors "github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/errors"
	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// Write emits c in formation order with ids ascending within each line.
func Write(w io.Writer, c cluster.Clustering) error {
	bw := bufio.NewWriter(w)
	for _, bm := range c {
		it := bm.Iterator()
		first := true
		for it.HasNext() {
			if !first {
				if err := bw.WriteByte(' '); err != nil {
					return err
				}
			}
			first = false
			if _, err := bw.WriteString(strconv.FormatUint(it.Next(), 10)); err != nil {
				return err
			}
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Read parses the Write format. Blank lines are ignored; any whitespace
// separates ids.
func Read(r io.Reader) (cluster.Clustering, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 64*1024*1024)
	out := make(cluster.Clustering, 0)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		bm := roaring64.New()
		for _, f := range fields {
			id, err := strconv.ParseUint(f, 10, 64)
			if err != nil {
				return nil, apperrors.Newf(apperrors.ErrInvalidInput, "line %d: bad document id %q", line, f)
			}
			bm.Add(id)
		}
		out = append(out, bm)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading clustering: %w", err)
	}
	return out, nil
}

// ReadFile reads a clustering from path.
func ReadFile(path string) (cluster.Clustering, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening clustering %s: %w", path, err)
	}
	defer f.Close()
	c, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}
