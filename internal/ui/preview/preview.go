// internal/ui/preview/preview.go
package preview

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rovshanmuradov/hyperfeed/internal/thread"
	"github.com/rovshanmuradov/hyperfeed/internal/ui/style"
)

const imageMarker = "[Image attached]"

// Render formats the thread the way it will be posted, one box per post.
func Render(posts []thread.Post, images []string) string {
	var b strings.Builder

	b.WriteString(style.TitleStyle.Render(fmt.Sprintf("Thread preview (%d posts)", len(posts))))
	b.WriteString("\n")

	for i, post := range posts {
		body := post.Text
		if len(post.MediaIDs) > 0 {
			body += "\n" + style.MediaStyle.Render(imageMarker)
		}
		label := style.PostLabelStyle.Render(fmt.Sprintf("Tweet %d", i+1))
		b.WriteString(lipgloss.JoinVertical(lipgloss.Left, label, style.PostStyle.Render(body)))
		b.WriteString("\n")
	}

	if len(images) > 0 {
		b.WriteString("\n")
		b.WriteString(style.MutedStyle.Render("Generated images in: " + filepath.Dir(images[0])))
		b.WriteString("\n")
		for _, img := range images {
			b.WriteString(style.MutedStyle.Render("  - " + filepath.Base(img)))
			b.WriteString("\n")
		}
	}

	return b.String()
}

// Print writes the preview to w.
func Print(w io.Writer, posts []thread.Post, images []string) error {
	_, err := io.WriteString(w, Render(posts, images))
	return err
}
