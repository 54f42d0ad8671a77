package thread

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/hyperfeed/internal/positions"
)

func fixedFormatter() *Formatter {
	return &Formatter{Now: func() time.Time {
		return time.Date(2026, time.March, 7, 9, 0, 0, 0, time.UTC)
	}}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		n    float64
		sign bool
		want string
	}{
		{1_500_000, false, "$1.5M"},
		{-250_000, true, "-$250.0K"},
		{999, true, "+$999"},
		{2_300_000_000, false, "$2.3B"},
		{0, true, "$0"},
		{-12, false, "-$12"},
		{1_000, false, "$1.0K"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatNumber(tt.n, tt.sign), "%v sign=%v", tt.n, tt.sign)
	}
}

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		price float64
		want  string
	}{
		{1234.5, "$1,234"},
		{97_250.4, "$97,250"},
		{42.5, "$42.50"},
		{1, "$1.00"},
		{0.0042, "$0.0042"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatPrice(tt.price), "%v", tt.price)
	}
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Whale", DisplayName(positions.Position{AddressLabel: "Whale", Address: "0xabc"}))
	assert.Equal(t, "Smart Money Fund …", DisplayName(positions.Position{AddressLabel: "Smart Money Fund Alpha"}))
	assert.Equal(t, "[0x123456]", DisplayName(positions.Position{Address: "0x1234567890abcdef"}))
	assert.Equal(t, "[0x12]", DisplayName(positions.Position{Address: "0x12"}))
	assert.Equal(t, "[unknown]", DisplayName(positions.Position{}))
}

func TestRow(t *testing.T) {
	row := Row(1, positions.Position{
		Side:             positions.SideLong,
		AddressLabel:     "Whale",
		PositionValueUSD: 1_500_000,
		UpnlUSD:          66_000,
		EntryPrice:       1234,
		MarkPrice:        1300,
	})
	want := "1. Whale\n   🟢 Long | Size: $1.5M\n   Entry: $1,234 → Mark: $1,300\n   ✅ uPnL: +$66.0K"
	assert.Equal(t, want, row)

	short := Row(2, positions.Position{Side: positions.SideShort, UpnlUSD: -5, EntryPrice: 0.5, MarkPrice: 0.6})
	assert.Contains(t, short, "🔴 Short")
	assert.Contains(t, short, "❌ uPnL: -$5")
}

func TestBuildSkipsFailedAndEmptyTokens(t *testing.T) {
	agg := positions.Aggregate{
		positions.Failed("BTC", errors.New("failed to fetch BTC after 3 attempts")),
		positions.Succeeded("ETH", []positions.Position{
			{Side: positions.SideLong, Address: "0xaaaaaaaaaaaa", PositionValueUSD: 2e6},
			{Side: positions.SideShort, Address: "0xbbbbbbbbbbbb", PositionValueUSD: 1e6},
		}),
		positions.Succeeded("SOL", nil),
		positions.Succeeded("HYPE", []positions.Position{{Side: positions.SideShort, AddressLabel: "Degen"}}),
	}

	posts := fixedFormatter().Build(agg)
	require.Len(t, posts, 3)

	assert.True(t, strings.HasPrefix(posts[0].Text, "🔥 $ETH Top 2 Positions\n📅 March 07, 2026\n\n🟢 1 Longs | 🔴 1 Shorts\n━"))
	assert.True(t, strings.HasPrefix(posts[1].Text, "$HYPE Top 1 Positions\n\n🟢 0 Longs | 🔴 1 Shorts"))
	assert.NotContains(t, posts[1].Text, "📅")
	assert.Equal(t, Footer, posts[2].Text)

	for _, p := range posts {
		assert.NotEmpty(t, p.Text)
		assert.Empty(t, p.MediaIDs)
	}
}

func TestBuildWithNoSuccessfulTokens(t *testing.T) {
	agg := positions.Aggregate{
		positions.Failed("BTC", errors.New("boom")),
		positions.Failed("ETH", errors.New("boom")),
	}
	posts := fixedFormatter().Build(agg)
	require.Len(t, posts, 1)
	assert.Equal(t, Footer, posts[0].Text)

	assert.Equal(t, []Post{{Text: Footer}}, fixedFormatter().Build(nil))
}

func TestBuildPaginatesLongListings(t *testing.T) {
	ps := make([]positions.Position, 10)
	for i := range ps {
		ps[i] = positions.Position{
			Side:             positions.SideLong,
			AddressLabel:     fmt.Sprintf("Trader %d", i+1),
			PositionValueUSD: 1_500_000,
			UpnlUSD:          66_000,
			EntryPrice:       1234,
			MarkPrice:        1300,
		}
	}
	f := fixedFormatter()
	f.MaxPostChars = 280

	posts := f.Build(positions.Aggregate{positions.Succeeded("BTC", ps)})
	require.Greater(t, len(posts), 2)

	pages := len(posts) - 1
	rows := 0
	for i, p := range posts[:pages] {
		assert.LessOrEqual(t, utf8.RuneCountInString(p.Text), 280)
		assert.Contains(t, p.Text, fmt.Sprintf("Positions (%d/%d)", i+1, pages))
		rows += strings.Count(p.Text, "uPnL:")
	}
	assert.Equal(t, 10, rows)
	assert.Contains(t, posts[0].Text, "📅")
	assert.NotContains(t, posts[1].Text, "📅")
}

func TestBuildWithoutLimitKeepsOnePostPerToken(t *testing.T) {
	ps := make([]positions.Position, 10)
	posts := fixedFormatter().Build(positions.Aggregate{positions.Succeeded("BTC", ps)})
	require.Len(t, posts, 2)
	assert.NotContains(t, posts[0].Text, "(1/")
	assert.Equal(t, 10, strings.Count(posts[0].Text, "uPnL:"))
}

func TestBuildWithImagesPairsMediaByToken(t *testing.T) {
	agg := positions.Aggregate{
		positions.Failed("BTC", errors.New("boom")),
		positions.Succeeded("ETH", []positions.Position{{Side: positions.SideLong}}),
		positions.Succeeded("SOL", []positions.Position{{Side: positions.SideShort}}),
	}
	posts := fixedFormatter().BuildWithImages(agg, map[string]string{"SOL": "media-sol"})
	require.Len(t, posts, 3)

	assert.Equal(t, "🔥 $ETH Top 1 Positions\n📅 March 07, 2026\n\n🟢 1 Longs | 🔴 0 Shorts", posts[0].Text)
	assert.Empty(t, posts[0].MediaIDs)
	assert.Equal(t, "$SOL Top 1 Positions\n\n🟢 0 Longs | 🔴 1 Shorts", posts[1].Text)
	assert.Equal(t, []string{"media-sol"}, posts[1].MediaIDs)
	assert.Equal(t, Footer, posts[2].Text)
}
