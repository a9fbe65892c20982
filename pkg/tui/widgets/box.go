package widgets

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/webdevreplits/PlatformSupport/pkg/tui/styles"
)

// Box renders a bordered container with a title row.
type Box struct {
	Title      string
	TitleRight string
	Content    string
	Width      int
	Height     int
	theme      styles.Theme
}

func NewBox(title string) Box {
	return Box{Title: title, theme: styles.DefaultTheme()}
}

func (b Box) WithContent(content string) Box {
	b.Content = content
	return b
}

func (b Box) WithTitleRight(text string) Box {
	b.TitleRight = text
	return b
}

func (b Box) WithSize(width, height int) Box {
	b.Width, b.Height = width, height
	return b
}

func (b Box) Render() string {
	inner := b.Width - 2
	if inner < 0 {
		inner = 0
	}

	body := b.Content
	hasHeader := b.Title != "" || b.TitleRight != ""
	if hasHeader {
		left := b.theme.Title.Render(b.Title)
		right := b.theme.TitleMuted.Render(b.TitleRight)
		gap := inner - lipgloss.Width(left) - lipgloss.Width(right)
		if gap < 1 {
			gap = 1
		}
		header := lipgloss.JoinHorizontal(lipgloss.Top, left, lipgloss.NewStyle().Width(gap).Render(""), right)
		body = header + "\n" + body
	}

	style := b.theme.Border
	if b.Width > 0 {
		style = style.Width(inner)
	}
	if b.Height > 0 {
		h := b.Height - 2
		if hasHeader {
			h--
		}
		if h < 0 {
			h = 0
		}
		style = style.Height(h)
	}
	return style.Render(body)
}
