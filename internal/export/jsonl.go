package export

import (
	"bufio"
	"encoding/json"
	"io"
	"math"
	"strconv"

	"github.com/ppiankov/splot/internal/record"
)

type jsonlWriter struct {
	buf *bufio.Writer
	enc *json.Encoder
}

// jsonFloat encodes NaN and ±Inf as strings, since JSON has no literal for
// them.
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte(strconv.Quote(strconv.FormatFloat(v, 'g', -1, 64))), nil
	}
	return []byte(strconv.FormatFloat(v, 'g', -1, 64)), nil
}

type jsonTuple struct {
	Index  uint64      `json:"index"`
	Values []jsonFloat `json:"values"`
}

type jsonLine struct {
	Index uint64 `json:"index"`
	Line  string `json:"line"`
}

func newJSONLWriter(dst io.Writer) *jsonlWriter {
	buf := bufio.NewWriter(dst)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return &jsonlWriter{buf: buf, enc: enc}
}

func (w *jsonlWriter) WriteTuple(index uint64, t record.Tuple) error {
	values := make([]jsonFloat, len(t))
	for i, v := range t {
		values[i] = jsonFloat(v)
	}
	return w.enc.Encode(jsonTuple{Index: index, Values: values})
}

func (w *jsonlWriter) WriteLine(index uint64, line string) error {
	return w.enc.Encode(jsonLine{Index: index, Line: line})
}

func (w *jsonlWriter) Close() error {
	return w.buf.Flush()
}
