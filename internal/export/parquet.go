package export

import (
	"io"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"

	"github.com/ppiankov/splot/internal/client"
	"github.com/ppiankov/splot/internal/record"
)

const parquetBatchSize = 50000

type parquetTuple struct {
	Index  int64     `parquet:"index"`
	Values []float64 `parquet:"values,list"`
}

type parquetLine struct {
	Index int64  `parquet:"index"`
	Line  string `parquet:"line"`
}

// parquetWriter batches rows of one store; only the writer for that store
// is created.
type parquetWriter struct {
	tuples *parquet.GenericWriter[parquetTuple]
	lines  *parquet.GenericWriter[parquetLine]
	tbatch []parquetTuple
	lbatch []parquetLine
}

func newParquetWriter(dst io.Writer, store string) *parquetWriter {
	w := &parquetWriter{}
	codec := parquet.Compression(&zstd.Codec{})
	if store == client.StoreData {
		w.tuples = parquet.NewGenericWriter[parquetTuple](dst, codec)
		w.tbatch = make([]parquetTuple, 0, parquetBatchSize)
	} else {
		w.lines = parquet.NewGenericWriter[parquetLine](dst, codec)
		w.lbatch = make([]parquetLine, 0, parquetBatchSize)
	}
	return w
}

func (w *parquetWriter) WriteTuple(index uint64, t record.Tuple) error {
	w.tbatch = append(w.tbatch, parquetTuple{Index: int64(index), Values: t})
	if len(w.tbatch) >= parquetBatchSize {
		return w.flush()
	}
	return nil
}

func (w *parquetWriter) WriteLine(index uint64, line string) error {
	w.lbatch = append(w.lbatch, parquetLine{Index: int64(index), Line: line})
	if len(w.lbatch) >= parquetBatchSize {
		return w.flush()
	}
	return nil
}

func (w *parquetWriter) flush() error {
	var err error
	if w.tuples != nil && len(w.tbatch) > 0 {
		_, err = w.tuples.Write(w.tbatch)
		w.tbatch = w.tbatch[:0]
	}
	if w.lines != nil && len(w.lbatch) > 0 {
		_, err = w.lines.Write(w.lbatch)
		w.lbatch = w.lbatch[:0]
	}
	return err
}

func (w *parquetWriter) Close() error {
	if err := w.flush(); err != nil {
		w.closeWriters()
		return err
	}
	return w.closeWriters()
}

func (w *parquetWriter) closeWriters() error {
	if w.tuples != nil {
		return w.tuples.Close()
	}
	return w.lines.Close()
}
