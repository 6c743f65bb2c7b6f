package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"crowdsale/integrations/exports"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

type purchaseRow struct {
	Sequence  int64  `parquet:"name=sequence, type=INT64"`
	Buyer     string `parquet:"name=buyer, type=BYTE_ARRAY, convertedtype=UTF8"`
	Currency  string `parquet:"name=currency, type=BYTE_ARRAY, convertedtype=UTF8"`
	Value     string `parquet:"name=value, type=BYTE_ARRAY, convertedtype=UTF8"`
	Amount    string `parquet:"name=amount, type=BYTE_ARRAY, convertedtype=UTF8"`
	Referral  string `parquet:"name=referral, type=BYTE_ARRAY, convertedtype=UTF8"`
	IndexedAt string `parquet:"name=indexed_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// ExportPurchases writes every indexed purchase to path and returns the
// number of rows written. The format follows the extension: .csv and .jsonl
// produce text exports, anything else is written as parquet.
func (ix *Indexer) ExportPurchases(ctx context.Context, path string) (int, error) {
	purchases, err := ix.Purchases(ctx, "")
	if err != nil {
		return 0, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ix.exportText(path, purchases, exports.PurchasesCSV)
	case ".jsonl":
		return ix.exportText(path, purchases, exports.PurchasesJSONL)
	default:
		return ix.exportParquet(path, purchases)
	}
}

func (ix *Indexer) exportText(path string, purchases []Purchase, encode func([]exports.Purchase) ([]byte, string, error)) (int, error) {
	rows := make([]exports.Purchase, 0, len(purchases))
	for _, p := range purchases {
		rows = append(rows, exports.Purchase{
			Sequence:  p.Sequence,
			Buyer:     p.Buyer,
			Currency:  p.Currency,
			Value:     p.Value,
			Amount:    p.Amount,
			Referral:  p.Referral,
			IndexedAt: p.IndexedAt,
		})
	}
	data, checksum, err := encode(rows)
	if err != nil {
		return 0, fmt.Errorf("indexer: encode export: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, fmt.Errorf("indexer: write export: %w", err)
	}
	ix.logger.Info("indexer: exported purchases", "path", path, "rows", len(rows), "sha256", checksum)
	return len(rows), nil
}

func (ix *Indexer) exportParquet(path string, purchases []Purchase) (int, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("indexer: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(purchaseRow), 1)
	if err != nil {
		file.Close()
		return 0, fmt.Errorf("indexer: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, p := range purchases {
		row := &purchaseRow{
			Sequence:  int64(p.Sequence),
			Buyer:     p.Buyer,
			Currency:  p.Currency,
			Value:     p.Value,
			Amount:    p.Amount,
			Referral:  p.Referral,
			IndexedAt: p.IndexedAt.UTC().Format(time.RFC3339),
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			file.Close()
			return 0, fmt.Errorf("indexer: write parquet row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return 0, fmt.Errorf("indexer: finalize parquet: %w", err)
	}
	if err := file.Close(); err != nil {
		return 0, fmt.Errorf("indexer: close parquet: %w", err)
	}
	ix.logger.Info("indexer: exported purchases", "path", path, "rows", len(purchases))
	return len(purchases), nil
}
