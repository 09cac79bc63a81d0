package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"yieldsplit/core/events"
	"yieldsplit/core/host"
	"yieldsplit/crypto"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	journal, err := Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { journal.Close() })
	return journal
}

func sampleReceipt(seq uint64) *host.Receipt {
	ch := crypto.ComponentAddress("clearinghouse", nil)
	raw := make([]byte, crypto.AddressLength)
	raw[0] = byte(seq)
	user := crypto.MustNewAddress(crypto.AccountPrefix, raw)
	r := &host.Receipt{
		Sequence:  seq,
		Timestamp: 1_700_000_000 + seq,
		Signers:   []crypto.Address{user},
		Events: []events.Event{
			events.RateUpdated{Clearinghouse: ch, Previous: big.NewInt(1_000_000), Rate: big.NewInt(1_010_000)},
			events.YieldDistributed{Clearinghouse: ch, Account: user, Shares: big.NewInt(10)},
		},
	}
	r.Hash[0] = byte(seq)
	return r
}

func TestRecordAndQuery(t *testing.T) {
	ctx := context.Background()
	journal := openTestJournal(t)
	for seq := uint64(1); seq <= 3; seq++ {
		if err := journal.Record(ctx, "claim", sampleReceipt(seq)); err != nil {
			t.Fatalf("record %d: %v", seq, err)
		}
	}

	all, err := journal.Events(ctx, Query{})
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(all) != 6 {
		t.Fatalf("expected 6 events, got %d", len(all))
	}

	filtered, err := journal.Events(ctx, Query{Type: events.TypeYieldDistributed, After: 1})
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(filtered) != 2 || filtered[0].Sequence != 2 {
		t.Fatalf("unexpected filtered events %+v", filtered)
	}
	if filtered[0].Attrs()["shares"] != "10" {
		t.Fatalf("attributes not preserved: %v", filtered[0].Attrs())
	}

	receipt, err := journal.Receipt(ctx, sampleReceipt(2).HashHex())
	if err != nil {
		t.Fatalf("receipt: %v", err)
	}
	if receipt.Op != "claim" || len(receipt.Events) != 2 || receipt.Events[0].Type != events.TypeRateUpdated {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if _, err := journal.Receipt(ctx, "ff"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	last, err := journal.LastSequence(ctx)
	if err != nil || last != 3 {
		t.Fatalf("unexpected last sequence %d (err %v)", last, err)
	}
}

func TestRecordRejectsDuplicateSequence(t *testing.T) {
	ctx := context.Background()
	journal := openTestJournal(t)
	if err := journal.Record(ctx, "deposit", sampleReceipt(1)); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := journal.Record(ctx, "deposit", sampleReceipt(1)); err == nil {
		t.Fatalf("expected duplicate sequence to fail")
	}
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	journal := openTestJournal(t)
	for seq := uint64(1); seq <= 2; seq++ {
		if err := journal.Record(ctx, "claim", sampleReceipt(seq)); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	dir := t.TempDir()

	csvPath := filepath.Join(dir, "events.csv")
	n, err := journal.ExportCSV(ctx, csvPath)
	if err != nil || n != 4 {
		t.Fatalf("export csv: %d rows (err %v)", n, err)
	}
	file, err := os.Open(csvPath)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 5 || rows[0][0] != "sequence" || rows[1][3] != events.TypeRateUpdated {
		t.Fatalf("unexpected csv rows %v", rows)
	}

	parquetPath := filepath.Join(dir, "events.parquet")
	n, err = journal.ExportParquet(ctx, parquetPath)
	if err != nil || n != 4 {
		t.Fatalf("export parquet: %d rows (err %v)", n, err)
	}
	info, err := os.Stat(parquetPath)
	if err != nil || info.Size() == 0 {
		t.Fatalf("parquet file missing (err %v)", err)
	}
}
