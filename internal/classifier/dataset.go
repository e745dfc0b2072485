package classifier

import (
	"bytes"
	"fmt"

	writerfile "github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type datasetRow struct {
	LocationSimilarity float64 `parquet:"name=location_similarity, type=DOUBLE"`
	NameSimilarity     float64 `parquet:"name=name_similarity, type=DOUBLE"`
	IDMatch            float64 `parquet:"name=id_match, type=DOUBLE"`
	SpatialOverlap     float64 `parquet:"name=spatial_overlap, type=DOUBLE"`
	Label              int32   `parquet:"name=label, type=INT32"`
	Split              string  `parquet:"name=split, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// EncodeDataset writes the synthesized rows as a snappy-compressed Parquet
// file. testFrom is the index of the first held-out row.
func EncodeDataset(examples []Example, testFrom int) ([]byte, error) {
	buf := &bytes.Buffer{}
	pfw := writerfile.NewWriterFile(buf)
	pw, err := writer.NewParquetWriter(pfw, new(datasetRow), 2)
	if err != nil {
		return nil, fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i, ex := range examples {
		split := "train"
		if i >= testFrom {
			split = "test"
		}
		row := datasetRow{
			LocationSimilarity: ex.Features.LocationSimilarity,
			NameSimilarity:     ex.Features.NameSimilarity,
			IDMatch:            ex.Features.IDMatch,
			SpatialOverlap:     ex.Features.SpatialOverlap,
			Label:              int32(ex.Label),
			Split:              split,
		}
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			_ = pfw.Close()
			return nil, fmt.Errorf("write parquet row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = pfw.Close()
		return nil, fmt.Errorf("finish parquet file: %w", err)
	}
	_ = pfw.Close()
	return buf.Bytes(), nil
}
