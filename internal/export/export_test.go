package export

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/hyperfeed/internal/positions"
)

func newTestExporter() *PositionExporter {
	exporter := NewPositionExporter(zap.NewNop())
	exporter.now = func() time.Time { return time.Date(2026, 3, 7, 14, 5, 9, 0, time.UTC) }
	return exporter
}

func generateTestAggregate() positions.Aggregate {
	return positions.Aggregate{
		positions.Succeeded("BTC", []positions.Position{
			{Side: positions.SideLong, Address: "0xaaa", AddressLabel: "Whale, Inc", PositionValueUSD: 1.5e6, UpnlUSD: 2500.5, EntryPrice: 97000, MarkPrice: 98000, Leverage: "20X", LiquidationPrice: 81000},
			{Side: positions.SideShort, Address: "0xbbb", PositionValueUSD: 9e5, UpnlUSD: -100, EntryPrice: 99000, MarkPrice: 98000, Leverage: "5X", LiquidationPrice: 120000},
		}),
		positions.Failed("ETH", errors.New("failed to fetch ETH after 3 attempts")),
		positions.Succeeded("SOL", nil),
	}
}

func TestPositionExportCSV(t *testing.T) {
	exporter := newTestExporter()
	tempDir := t.TempDir()

	outputPath, err := exporter.Export(generateTestAggregate(), ExportOptions{
		Format:    FormatCSV,
		OutputDir: tempDir,
	})
	if err != nil {
		t.Fatalf("Failed to export positions: %v", err)
	}

	if want := filepath.Join(tempDir, "positions_20260307_140509.csv"); outputPath != want {
		t.Errorf("output path = %s, want %s", outputPath, want)
	}

	file, err := os.Open(outputPath)
	if err != nil {
		t.Fatalf("Failed to open export: %v", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("Failed to parse CSV: %v", err)
	}

	// header + 2 positions + 1 error row
	if len(records) != 4 {
		t.Fatalf("got %d records, want 4", len(records))
	}
	if strings.Join(records[0], ",") != strings.Join(CSVHeaders(), ",") {
		t.Errorf("unexpected headers: %v", records[0])
	}
	if got := records[1]; got[0] != "BTC" || got[1] != "1" || got[4] != "Whale, Inc" || got[6] != "2500.5" || got[9] != "20X" {
		t.Errorf("unexpected first row: %v", got)
	}
	if got := records[3]; got[0] != "ETH" || got[len(got)-1] != "failed to fetch ETH after 3 attempts" {
		t.Errorf("unexpected error row: %v", got)
	}
}

func TestPositionExportJSONRoundTrip(t *testing.T) {
	exporter := newTestExporter()
	tempDir := t.TempDir()

	outputPath, err := exporter.Export(generateTestAggregate(), ExportOptions{
		Format:    FormatJSON,
		OutputDir: tempDir,
	})
	if err != nil {
		t.Fatalf("Failed to export positions: %v", err)
	}

	loaded, err := Load(outputPath)
	if err != nil {
		t.Fatalf("Failed to load export: %v", err)
	}

	if got := strings.Join(loaded.Tokens(), ","); got != "BTC,ETH,SOL" {
		t.Errorf("tokens = %s, want BTC,ETH,SOL", got)
	}
	if loaded[1].OK() {
		t.Error("ETH should load as failed")
	}
	if len(loaded[0].Positions) != 2 || loaded[0].Positions[0].Leverage != "20X" {
		t.Errorf("unexpected BTC positions: %+v", loaded[0].Positions)
	}
}

func TestPositionExportFilters(t *testing.T) {
	exporter := newTestExporter()
	tempDir := t.TempDir()

	outputPath, err := exporter.Export(generateTestAggregate(), ExportOptions{
		Format:      FormatJSON,
		OutputDir:   tempDir,
		TokenFilter: "btc",
	})
	if err != nil {
		t.Fatalf("Failed to export positions: %v", err)
	}
	if filepath.Base(outputPath) != "positions_btc_20260307_140509.json" {
		t.Errorf("unexpected filename: %s", filepath.Base(outputPath))
	}

	_, err = exporter.Export(generateTestAggregate(), ExportOptions{
		Format:      FormatJSON,
		OutputDir:   tempDir,
		TokenFilter: "ETH",
		OnlySuccess: true,
	})
	if err == nil {
		t.Error("expected error when no token matches")
	}
}

func TestParseFormat(t *testing.T) {
	for _, in := range []string{"json", "CSV", " json "} {
		if _, err := ParseFormat(in); err != nil {
			t.Errorf("ParseFormat(%q) failed: %v", in, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Error("expected error for xml")
	}
}

func TestSummarize(t *testing.T) {
	summary := Summarize(generateTestAggregate())

	if summary.Tokens != 3 || summary.FailedTokens != 1 {
		t.Errorf("unexpected token counts: %+v", summary)
	}
	if summary.Positions != 2 || summary.Longs != 1 || summary.Shorts != 1 {
		t.Errorf("unexpected position counts: %+v", summary)
	}
	if summary.TotalValueUSD != 2.4e6 {
		t.Errorf("total value = %v, want 2.4e6", summary.TotalValueUSD)
	}
}
