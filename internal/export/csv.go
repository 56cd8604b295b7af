package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/ppiankov/splot/internal/client"
	"github.com/ppiankov/splot/internal/record"
)

type csvWriter struct {
	w   *csv.Writer
	row []string
}

func newCSVWriter(dst io.Writer, snap *client.Snapshot) (*csvWriter, error) {
	w := csv.NewWriter(dst)
	header := []string{"index", "line"}
	if snap.Store == client.StoreData {
		header = []string{"index"}
		for i := 0; i < snap.Arity; i++ {
			header = append(header, "v"+strconv.Itoa(i))
		}
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	return &csvWriter{w: w, row: make([]string, len(header))}, nil
}

func (w *csvWriter) WriteTuple(index uint64, t record.Tuple) error {
	row := w.row[:1]
	row[0] = strconv.FormatUint(index, 10)
	for _, v := range t {
		row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
	}
	return w.w.Write(row)
}

func (w *csvWriter) WriteLine(index uint64, line string) error {
	return w.w.Write([]string{strconv.FormatUint(index, 10), line})
}

func (w *csvWriter) Close() error {
	w.w.Flush()
	return w.w.Error()
}
