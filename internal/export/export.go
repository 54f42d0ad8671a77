package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/hyperfeed/internal/positions"
)

// ExportFormat represents the export file format
type ExportFormat string

const (
	FormatCSV  ExportFormat = "csv"
	FormatJSON ExportFormat = "json"
)

// ParseFormat validates a --export value.
func ParseFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported export format: %q (want json or csv)", s)
	}
}

// ExportOptions configures the export behavior
type ExportOptions struct {
	Format      ExportFormat
	OutputDir   string
	TokenFilter string // Only export this token
	OnlySuccess bool   // Skip tokens whose fetch failed
}

// PositionExporter writes fetched positions to disk
type PositionExporter struct {
	now    func() time.Time
	logger *zap.Logger
}

// NewPositionExporter creates a new position exporter
func NewPositionExporter(logger *zap.Logger) *PositionExporter {
	return &PositionExporter{
		now:    time.Now,
		logger: logger.Named("export"),
	}
}

// Export writes the aggregate and returns the output path
func (pe *PositionExporter) Export(agg positions.Aggregate, options ExportOptions) (string, error) {
	filtered := pe.filter(agg, options)
	if len(filtered) == 0 {
		return "", fmt.Errorf("no tokens match the export criteria")
	}

	if err := os.MkdirAll(options.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	outputPath := filepath.Join(options.OutputDir, pe.generateFilename(options))

	var err error
	switch options.Format {
	case FormatCSV:
		err = exportToCSV(filtered, outputPath)
	case FormatJSON:
		err = exportToJSON(filtered, outputPath)
	default:
		err = fmt.Errorf("unsupported format: %s", options.Format)
	}
	if err != nil {
		return "", err
	}

	summary := Summarize(filtered)
	pe.logger.Info("Positions exported",
		zap.String("file", outputPath),
		zap.String("format", string(options.Format)),
		zap.Int("tokens", summary.Tokens),
		zap.Int("failed", summary.FailedTokens),
		zap.Int("positions", summary.Positions))

	return outputPath, nil
}

func (pe *PositionExporter) filter(agg positions.Aggregate, options ExportOptions) positions.Aggregate {
	var filtered positions.Aggregate
	for _, r := range agg {
		if options.TokenFilter != "" && !strings.EqualFold(r.Token, options.TokenFilter) {
			continue
		}
		if options.OnlySuccess && !r.OK() {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered
}

func (pe *PositionExporter) generateFilename(options ExportOptions) string {
	prefix := "positions"
	if options.TokenFilter != "" {
		prefix += "_" + strings.ToLower(options.TokenFilter)
	}
	return fmt.Sprintf("%s_%s.%s", prefix, pe.now().Format("20060102_150405"), options.Format)
}

// CSVHeaders returns the column names of a CSV export
func CSVHeaders() []string {
	return []string{
		"token", "rank", "side", "address", "address_label",
		"position_value_usd", "upnl_usd", "entry_price", "mark_price",
		"leverage", "liquidation_price", "error",
	}
}

func csvRow(token string, rank int, p positions.Position) []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	return []string{
		token, strconv.Itoa(rank), string(p.Side), p.Address, p.AddressLabel,
		f(p.PositionValueUSD), f(p.UpnlUSD), f(p.EntryPrice), f(p.MarkPrice),
		string(p.Leverage), f(p.LiquidationPrice), "",
	}
}

func exportToCSV(agg positions.Aggregate, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	if err := writer.Write(CSVHeaders()); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, r := range agg {
		if !r.OK() {
			row := make([]string, len(CSVHeaders()))
			row[0] = r.Token
			row[len(row)-1] = r.Err.Error()
			if err := writer.Write(row); err != nil {
				return fmt.Errorf("failed to write error row: %w", err)
			}
			continue
		}
		for i, p := range r.Positions {
			if err := writer.Write(csvRow(r.Token, i+1, p)); err != nil {
				return fmt.Errorf("failed to write position: %w", err)
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

// exportToJSON writes the token mapping that --input reads back
func exportToJSON(agg positions.Aggregate, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create JSON file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(agg); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// Load reads an aggregate previously written by a JSON export
func Load(path string) (positions.Aggregate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var agg positions.Aggregate
	if err := json.Unmarshal(data, &agg); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return agg, nil
}

// ExportSummary contains summary statistics for an export
type ExportSummary struct {
	Tokens        int     `json:"tokens"`
	FailedTokens  int     `json:"failed_tokens"`
	Positions     int     `json:"positions"`
	Longs         int     `json:"longs"`
	Shorts        int     `json:"shorts"`
	TotalValueUSD float64 `json:"total_value_usd"`
	TotalUpnlUSD  float64 `json:"total_upnl_usd"`
}

// Summarize calculates summary statistics for an aggregate
func Summarize(agg positions.Aggregate) ExportSummary {
	summary := ExportSummary{Tokens: len(agg)}
	for _, r := range agg {
		if !r.OK() {
			summary.FailedTokens++
			continue
		}
		summary.Positions += len(r.Positions)
		summary.Longs += r.Longs()
		summary.Shorts += r.Shorts()
		for _, p := range r.Positions {
			summary.TotalValueUSD += p.PositionValueUSD
			summary.TotalUpnlUSD += p.UpnlUSD
		}
	}
	return summary
}
