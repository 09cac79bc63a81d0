package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

const exportPageSize = 500

var csvHeader = []string{"sequence", "position", "timestamp", "type", "attributes"}

type parquetRow struct {
	Sequence   int64  `parquet:"name=sequence, type=INT64"`
	Position   int32  `parquet:"name=position, type=INT32"`
	Timestamp  int64  `parquet:"name=timestamp, type=INT64"`
	Type       string `parquet:"name=type, type=BYTE_ARRAY, convertedtype=UTF8"`
	Attributes string `parquet:"name=attributes, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// each walks every journal event in commit order.
func (j *Journal) each(ctx context.Context, fn func(EventRecord) error) (int, error) {
	var (
		lastID uint
		count  int
	)
	for {
		var page []EventRecord
		err := j.db.WithContext(ctx).
			Where("id > ?", lastID).
			Order("id ASC").
			Limit(exportPageSize).
			Find(&page).Error
		if err != nil {
			return count, fmt.Errorf("journal: export page: %w", err)
		}
		for _, ev := range page {
			if err := fn(ev); err != nil {
				return count, err
			}
			count++
			lastID = ev.ID
		}
		if len(page) < exportPageSize {
			return count, nil
		}
	}
}

// ExportCSV writes every journal event to path. It returns the row count.
func (j *Journal) ExportCSV(ctx context.Context, path string) (int, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("journal: create csv: %w", err)
	}
	defer file.Close()
	w := csv.NewWriter(file)
	if err := w.Write(csvHeader); err != nil {
		return 0, fmt.Errorf("journal: write csv header: %w", err)
	}
	count, err := j.each(ctx, func(ev EventRecord) error {
		record := []string{
			strconv.FormatUint(ev.Sequence, 10),
			strconv.Itoa(ev.Position),
			time.Unix(int64(ev.Timestamp), 0).UTC().Format(time.RFC3339),
			ev.Type,
			ev.Attributes,
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("journal: write csv row: %w", err)
		}
		return nil
	})
	if err != nil {
		return count, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return count, fmt.Errorf("journal: flush csv: %w", err)
	}
	return count, nil
}

// ExportParquet writes every journal event to path as snappy-compressed
// parquet. It returns the row count.
func (j *Journal) ExportParquet(ctx context.Context, path string) (int, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("journal: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(parquetRow), 1)
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("journal: parquet schema: %w", err)
	}
	pw.RowGroupSize = 128 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	count, err := j.each(ctx, func(ev EventRecord) error {
		row := &parquetRow{
			Sequence:   int64(ev.Sequence),
			Position:   int32(ev.Position),
			Timestamp:  int64(ev.Timestamp),
			Type:       ev.Type,
			Attributes: ev.Attributes,
		}
		if err := pw.Write(row); err != nil {
			return fmt.Errorf("journal: parquet write: %w", err)
		}
		return nil
	})
	if err != nil {
		pw.WriteStop()
		file.Close()
		return count, err
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return count, fmt.Errorf("journal: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return count, fmt.Errorf("journal: close parquet file: %w", err)
	}
	return count, nil
}
