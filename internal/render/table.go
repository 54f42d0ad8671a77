// internal/render/table.go
package render

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/gomonobold"

	"github.com/rovshanmuradov/hyperfeed/internal/positions"
	"github.com/rovshanmuradov/hyperfeed/internal/thread"
	"github.com/rovshanmuradov/hyperfeed/internal/ui/style"
)

const (
	canvasWidth  = 2400
	marginTop    = 40
	titleHeight  = 70
	countsHeight = 60
	headerHeight = 64
	rowHeight    = 56
	footerHeight = 80

	titleSize  = 44
	countsSize = 30
	cellSize   = 24
	footerSize = 22

	labelMaxRunes = 18
	dateLayout    = "January 02, 2006"
	footerText    = "Data: Nansen  |  Powered by hyper-signals"
)

var (
	columns     = []string{"#", "Label", "Wallet", "Side", "Size", "Leverage", "Entry", "Mark", "Liq Price", "uPnL"}
	columnWidth = []float64{0.03, 0.16, 0.12, 0.06, 0.09, 0.07, 0.10, 0.10, 0.12, 0.10}

	emojiPattern = regexp.MustCompile("[" +
		`\x{1F600}-\x{1F64F}` +
		`\x{1F300}-\x{1F5FF}` +
		`\x{1F680}-\x{1F6FF}` +
		`\x{1F1E0}-\x{1F1FF}` +
		`\x{2702}-\x{27B0}` +
		`\x{1F900}-\x{1F9FF}` +
		`\x{1FA00}-\x{1FA6F}` +
		`\x{1FA70}-\x{1FAFF}` +
		`\x{2600}-\x{26FF}` +
		`\x{200B}-\x{200D}` +
		`\x{FE0F}` +
		"]+")
)

const (
	colSide = 3
	colPnL  = 9
)

type fonts struct {
	regular *truetype.Font
	bold    *truetype.Font
}

var (
	loadOnce   sync.Once
	loadedFont fonts
	loadErr    error
)

func loadFonts() (fonts, error) {
	loadOnce.Do(func() {
		regular, err := truetype.Parse(gomono.TTF)
		if err != nil {
			loadErr = fmt.Errorf("parse mono font: %w", err)
			return
		}
		bold, err := truetype.Parse(gomonobold.TTF)
		if err != nil {
			loadErr = fmt.Errorf("parse mono bold font: %w", err)
			return
		}
		loadedFont = fonts{regular: regular, bold: bold}
	})
	return loadedFont, loadErr
}

// Image is a rendered table on disk.
type Image struct {
	Token string
	Path  string
}

// TableRenderer draws position tables as PNG images.
type TableRenderer struct {
	Now     func() time.Time
	palette style.Palette
	logger  *zap.Logger
}

// NewTableRenderer creates a renderer using the dark palette.
func NewTableRenderer(logger *zap.Logger) *TableRenderer {
	return &TableRenderer{
		Now:     time.Now,
		palette: style.DefaultPalette(),
		logger:  logger.Named("render"),
	}
}

// RenderAll writes one image per successful, non-empty token into dir and
// returns them in aggregate order. Only the first image carries the date.
func (r *TableRenderer) RenderAll(agg positions.Aggregate, dir string) ([]Image, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	var images []Image
	for _, res := range agg {
		if !res.OK() || len(res.Positions) == 0 {
			continue
		}
		path := filepath.Join(dir, strings.ToLower(res.Token)+"_positions.png")
		if err := r.renderFile(res.Token, res.Positions, len(images) == 0, path); err != nil {
			return nil, err
		}
		r.logger.Info("Generated image", zap.String("token", res.Token), zap.String("path", path))
		images = append(images, Image{Token: res.Token, Path: path})
	}
	return images, nil
}

func (r *TableRenderer) renderFile(token string, ps []positions.Position, showDate bool, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := r.Render(token, ps, showDate, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Render draws the table for one token and encodes it as PNG into w.
func (r *TableRenderer) Render(token string, ps []positions.Position, showDate bool, w io.Writer) error {
	ff, err := loadFonts()
	if err != nil {
		return err
	}

	height := marginTop + titleHeight + countsHeight + headerHeight + len(ps)*rowHeight + footerHeight
	dc := gg.NewContext(canvasWidth, height)
	dc.SetHexColor(style.Hex(r.palette.Background))
	dc.Clear()

	// Title and counts.
	title := fmt.Sprintf("$%s Top %d Positions", token, len(ps))
	if showDate {
		title += "  •  " + r.Now().Format(dateLayout)
	}
	y := float64(marginTop)
	dc.SetFontFace(face(ff.bold, titleSize))
	dc.SetHexColor(style.Hex(r.palette.Text))
	dc.DrawStringAnchored(title, canvasWidth/2, y+titleHeight/2, 0.5, 0.5)
	y += titleHeight

	longs, shorts := 0, 0
	for _, p := range ps {
		switch p.Side {
		case positions.SideLong:
			longs++
		case positions.SideShort:
			shorts++
		}
	}
	cy := y + countsHeight/2
	dc.SetFontFace(face(ff.bold, countsSize))
	dc.SetHexColor(style.Hex(r.palette.Long))
	dc.DrawStringAnchored(fmt.Sprintf("%d Longs", longs), canvasWidth*0.42, cy, 1, 0.5)
	dc.SetHexColor(style.Hex(r.palette.Short))
	dc.DrawStringAnchored(fmt.Sprintf("%d Shorts", shorts), canvasWidth*0.58, cy, 0, 0.5)
	dc.SetFontFace(face(ff.regular, countsSize))
	dc.SetHexColor(style.Hex(r.palette.TextMuted))
	dc.DrawStringAnchored("|", canvasWidth/2, cy, 0.5, 0.5)
	y += countsHeight

	// Table.
	x0 := canvasWidth * 0.02
	widths := scaledWidths(canvasWidth * 0.96)

	regular, bold := face(ff.regular, cellSize), face(ff.bold, cellSize)
	r.drawRow(dc, x0, y, headerHeight, widths, columns, r.palette.HeaderBg, func(int, string) (string, bool) {
		return style.Hex(r.palette.Accent), true
	}, regular, bold)
	y += headerHeight

	for i, p := range ps {
		bg := r.palette.RowOdd
		if (i+1)%2 == 0 {
			bg = r.palette.RowEven
		}
		r.drawRow(dc, x0, y, rowHeight, widths, Cells(i+1, p), bg, r.cellColor, regular, bold)
		y += rowHeight
	}

	dc.SetFontFace(face(ff.regular, footerSize))
	dc.SetHexColor(style.Hex(r.palette.TextMuted))
	dc.DrawStringAnchored(footerText, canvasWidth/2, y+footerHeight/2, 0.5, 0.5)

	if err := dc.EncodePNG(w); err != nil {
		return fmt.Errorf("encode %s table: %w", token, err)
	}
	return nil
}

type colorFunc func(col int, text string) (hex string, bold bool)

func (r *TableRenderer) drawRow(dc *gg.Context, x, y, h float64, widths []float64, cells []string, bg lipgloss.Color, color colorFunc, regular, bold font.Face) {
	for col, text := range cells {
		w := widths[col]
		dc.DrawRectangle(x, y, w, h)
		dc.SetHexColor(style.Hex(bg))
		dc.FillPreserve()
		dc.SetHexColor(style.Hex(r.palette.Border))
		dc.SetLineWidth(1)
		dc.Stroke()

		hex, isBold := color(col, text)
		if isBold {
			dc.SetFontFace(bold)
		} else {
			dc.SetFontFace(regular)
		}
		dc.SetHexColor(hex)
		dc.DrawStringAnchored(text, x+w/2, y+h/2, 0.5, 0.5)
		x += w
	}
}

func (r *TableRenderer) cellColor(col int, text string) (string, bool) {
	switch col {
	case colSide:
		switch text {
		case string(positions.SideLong):
			return style.Hex(r.palette.Long), true
		case string(positions.SideShort):
			return style.Hex(r.palette.Short), true
		}
	case colPnL:
		switch {
		case strings.HasPrefix(text, "+"):
			return style.Hex(r.palette.Positive), true
		case strings.HasPrefix(text, "-"):
			return style.Hex(r.palette.Negative), true
		}
	}
	return style.Hex(r.palette.Text), false
}

// Cells returns the table cells of one ranked position.
func Cells(rank int, p positions.Position) []string {
	label := "-"
	if p.AddressLabel != "" {
		label = TruncateLabel(p.AddressLabel, labelMaxRunes)
	}
	leverage := string(p.Leverage)
	if leverage == "" {
		leverage = "-"
	}
	return []string{
		strconv.Itoa(rank),
		label,
		ShortAddress(p.Address),
		string(p.Side),
		thread.FormatNumber(p.PositionValueUSD, false),
		leverage,
		thread.FormatPrice(p.EntryPrice),
		thread.FormatPrice(p.MarkPrice),
		thread.FormatPrice(p.LiquidationPrice),
		thread.FormatNumber(p.UpnlUSD, true),
	}
}

// StripEmojis removes emoji and pictographs the table font cannot draw.
func StripEmojis(s string) string {
	return strings.TrimSpace(emojiPattern.ReplaceAllString(s, ""))
}

// TruncateLabel strips emojis and cuts the label to limit runes.
func TruncateLabel(label string, limit int) string {
	runes := []rune(StripEmojis(label))
	if len(runes) <= limit {
		return string(runes)
	}
	return string(runes[:limit-1]) + "..."
}

// ShortAddress renders 0x1234...abcd, or "unknown" for short input.
func ShortAddress(addr string) string {
	if len(addr) < 10 {
		return "unknown"
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

func scaledWidths(total float64) []float64 {
	sum := 0.0
	for _, w := range columnWidth {
		sum += w
	}
	out := make([]float64, len(columnWidth))
	for i, w := range columnWidth {
		out[i] = w / sum * total
	}
	return out
}

func face(f *truetype.Font, size float64) font.Face {
	return truetype.NewFace(f, &truetype.Options{Size: size, DPI: 72, Hinting: font.HintingFull})
}
