// internal/thread/thread.go
package thread

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rovshanmuradov/hyperfeed/internal/positions"
)

const (
	dateLayout    = "January 02, 2006"
	separator     = "━━━━━━━━━━━━━━━━━━━━━━━━━━"
	labelMaxRunes = 18
)

// Footer closes every thread.
const Footer = "📈 Data: @naborlabs\n🤖 Powered by hyper-signals\n\nFollow for daily updates!"

// Post is one element of a thread as accepted by the drafting API.
type Post struct {
	Text     string   `json:"text"`
	MediaIDs []string `json:"media_ids,omitempty"`
}

// Formatter turns an aggregate into thread posts.
type Formatter struct {
	// Now defaults to time.Now.
	Now func() time.Time
	// MaxPostChars splits long token listings into several posts when > 0.
	MaxPostChars int
}

func (f *Formatter) now() time.Time {
	if f.Now == nil {
		return time.Now()
	}
	return f.Now()
}

// Build produces the text thread: one listing per successful, non-empty
// token followed by the footer. The result is never empty.
func (f *Formatter) Build(agg positions.Aggregate) []Post {
	posts := make([]Post, 0, len(agg)+1)
	date := f.now().Format(dateLayout)

	first := true
	for _, r := range agg {
		if !r.OK() || len(r.Positions) == 0 {
			continue
		}
		for _, text := range f.tokenPosts(r, first, date) {
			posts = append(posts, Post{Text: text})
		}
		first = false
	}

	return append(posts, Post{Text: Footer})
}

// BuildWithImages produces caption posts with the rendered table attached.
// media maps token to media ID; tokens without media get a caption only.
func (f *Formatter) BuildWithImages(agg positions.Aggregate, media map[string]string) []Post {
	posts := make([]Post, 0, len(agg)+1)
	date := f.now().Format(dateLayout)

	first := true
	for _, r := range agg {
		if !r.OK() || len(r.Positions) == 0 {
			continue
		}
		post := Post{Text: header(r, first, date, "")}
		if id, ok := media[r.Token]; ok && id != "" {
			post.MediaIDs = []string{id}
		}
		posts = append(posts, post)
		first = false
	}

	return append(posts, Post{Text: Footer})
}

func (f *Formatter) tokenPosts(r positions.Result, first bool, date string) []string {
	rows := make([]string, len(r.Positions))
	for i, p := range r.Positions {
		rows[i] = Row(i+1, p)
	}

	pages := [][]string{rows}
	if f.MaxPostChars > 0 {
		worst := fmt.Sprintf(" (%d/%d)", len(rows), len(rows))
		budget := f.MaxPostChars - utf8.RuneCountInString(header(r, first, date, worst)+"\n"+separator)
		pages = paginate(rows, budget)
	}

	out := make([]string, len(pages))
	for i, page := range pages {
		suffix := ""
		if len(pages) > 1 {
			suffix = fmt.Sprintf(" (%d/%d)", i+1, len(pages))
		}
		out[i] = header(r, first && i == 0, date, suffix) + "\n" + separator + "\n\n" + strings.Join(page, "\n\n")
	}
	return out
}

// paginate packs rows greedily into pages whose joined length stays within
// budget. A row that alone exceeds the budget gets a page of its own.
func paginate(rows []string, budget int) [][]string {
	var pages [][]string
	var cur []string
	size := 0
	for _, row := range rows {
		n := utf8.RuneCountInString(row) + 2
		if len(cur) > 0 && size+n > budget {
			pages = append(pages, cur)
			cur, size = nil, 0
		}
		cur = append(cur, row)
		size += n
	}
	if len(cur) > 0 {
		pages = append(pages, cur)
	}
	return pages
}

func header(r positions.Result, first bool, date, suffix string) string {
	var b strings.Builder
	if first {
		fmt.Fprintf(&b, "🔥 $%s Top %d Positions%s\n📅 %s\n\n", r.Token, len(r.Positions), suffix, date)
	} else {
		fmt.Fprintf(&b, "$%s Top %d Positions%s\n\n", r.Token, len(r.Positions), suffix)
	}
	fmt.Fprintf(&b, "🟢 %d Longs | 🔴 %d Shorts", r.Longs(), r.Shorts())
	return b.String()
}

// Row renders one ranked position.
func Row(rank int, p positions.Position) string {
	sideEmoji := "🔴"
	if p.Side == positions.SideLong {
		sideEmoji = "🟢"
	}
	side := string(p.Side)
	if side == "" {
		side = "Unknown"
	}
	pnlEmoji := "✅"
	if p.UpnlUSD < 0 {
		pnlEmoji = "❌"
	}

	return fmt.Sprintf("%d. %s\n   %s %s | Size: %s\n   Entry: %s → Mark: %s\n   %s uPnL: %s",
		rank, DisplayName(p),
		sideEmoji, side, FormatNumber(p.PositionValueUSD, false),
		FormatPrice(p.EntryPrice), FormatPrice(p.MarkPrice),
		pnlEmoji, FormatNumber(p.UpnlUSD, true))
}

// DisplayName prefers the address label, then the address prefix.
func DisplayName(p positions.Position) string {
	switch {
	case p.AddressLabel != "":
		return truncate(p.AddressLabel, labelMaxRunes, "…")
	case p.Address != "":
		return "[" + truncate(p.Address, 8, "") + "]"
	default:
		return "[unknown]"
	}
}

func truncate(s string, limit int, ellipsis string) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if ellipsis == "" {
		return string(r[:limit])
	}
	return string(r[:limit-utf8.RuneCountInString(ellipsis)]) + ellipsis
}
