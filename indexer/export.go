package indexer

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
)

// ExportResult lists the files written by ExportRewards.
type ExportResult struct {
	Rows        int    `json:"rows"`
	CSVPath     string `json:"csv,omitempty"`
	ParquetPath string `json:"parquet,omitempty"`
}

// ExportRewards writes every reward with slot >= fromSlot to rewards.csv and
// rewards.parquet under dir, oldest first. Nothing is written when no reward
// matches.
func (ix *Indexer) ExportRewards(ctx context.Context, dir string, fromSlot uint64) (*ExportResult, error) {
	var rows []RewardRecord
	err := ix.db.WithContext(ctx).
		Where("slot >= ?", fromSlot).
		Order("slot ASC").Order("event_index ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("indexer: export query: %w", err)
	}
	result := &ExportResult{Rows: len(rows)}
	if len(rows) == 0 {
		return result, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("indexer: export dir: %w", err)
	}
	csvPath := filepath.Join(dir, "rewards.csv")
	parquetPath := filepath.Join(dir, "rewards.parquet")
	// Both files land under temporary names and are renamed only once both
	// were written, so a failed export never leaves a partial pair behind.
	csvTmp, parquetTmp := csvPath+".tmp", parquetPath+".tmp"
	defer os.Remove(csvTmp)
	defer os.Remove(parquetTmp)
	if err := writeRewardsCSV(csvTmp, rows); err != nil {
		return nil, err
	}
	if err := writeRewardsParquet(parquetTmp, rows); err != nil {
		return nil, err
	}
	if err := os.Rename(csvTmp, csvPath); err != nil {
		return nil, fmt.Errorf("indexer: publish csv: %w", err)
	}
	if err := os.Rename(parquetTmp, parquetPath); err != nil {
		os.Remove(csvPath)
		return nil, fmt.Errorf("indexer: publish parquet: %w", err)
	}
	result.CSVPath = csvPath
	result.ParquetPath = parquetPath
	ix.logger.Info("rewards exported",
		slog.Int("rows", len(rows)),
		slog.String("csv", result.CSVPath),
		slog.String("parquet", result.ParquetPath))
	return result, nil
}

var rewardCSVHeader = []string{
	"tx_hash", "event_index", "slot", "timestamp", "recipient", "recipient_token",
	"vault_authority", "mint", "amount", "account_created",
}

func writeRewardsCSV(path string, rows []RewardRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("indexer: create csv: %w", err)
	}
	defer file.Close()
	w := csv.NewWriter(file)
	if err := w.Write(rewardCSVHeader); err != nil {
		return fmt.Errorf("indexer: write csv header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.TxHash,
			strconv.Itoa(row.EventIndex),
			strconv.FormatUint(row.Slot, 10),
			strconv.FormatInt(row.Timestamp, 10),
			row.Recipient,
			row.RecipientToken,
			row.VaultAuthority,
			row.Mint,
			strconv.FormatUint(row.Amount, 10),
			strconv.FormatBool(row.AccountCreated),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("indexer: write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("indexer: flush csv: %w", err)
	}
	return file.Close()
}

type rewardParquetRow struct {
	TxHash         string `parquet:"name=tx_hash, type=UTF8, encoding=PLAIN_DICTIONARY"`
	EventIndex     int32  `parquet:"name=event_index, type=INT32"`
	Slot           int64  `parquet:"name=slot, type=INT64"`
	Timestamp      int64  `parquet:"name=timestamp, type=INT64"`
	Recipient      string `parquet:"name=recipient, type=UTF8, encoding=PLAIN_DICTIONARY"`
	RecipientToken string `parquet:"name=recipient_token, type=UTF8, encoding=PLAIN_DICTIONARY"`
	VaultAuthority string `parquet:"name=vault_authority, type=UTF8, encoding=PLAIN_DICTIONARY"`
	Mint           string `parquet:"name=mint, type=UTF8, encoding=PLAIN_DICTIONARY"`
	// Amount is decimal text; u64 amounts overflow INT64.
	Amount         string `parquet:"name=amount, type=UTF8, encoding=PLAIN_DICTIONARY"`
	AccountCreated bool   `parquet:"name=account_created, type=BOOLEAN"`
}

func writeRewardsParquet(path string, rows []RewardRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("indexer: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(rewardParquetRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("indexer: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		pr := &rewardParquetRow{
			TxHash:         row.TxHash,
			EventIndex:     int32(row.EventIndex),
			Slot:           int64(row.Slot),
			Timestamp:      row.Timestamp,
			Recipient:      row.Recipient,
			RecipientToken: row.RecipientToken,
			VaultAuthority: row.VaultAuthority,
			Mint:           row.Mint,
			Amount:         strconv.FormatUint(row.Amount, 10),
			AccountCreated: row.AccountCreated,
		}
		if err := pw.Write(pr); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("indexer: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("indexer: parquet flush: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("indexer: close parquet file: %w", err)
	}
	return nil
}
