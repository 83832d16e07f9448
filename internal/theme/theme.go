package theme

import "github.com/charmbracelet/lipgloss"

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue    = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen   = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow  = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed     = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorOrange  = lipgloss.AdaptiveColor{Dark: "#FFA94D", Light: "#C05621"}
	ColorMagenta = lipgloss.AdaptiveColor{Dark: "#CC5DE8", Light: "#805AD5"}
	ColorGray    = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite   = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorSubtle  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#CBD5E0"}
	ColorBorder  = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// HeaderStyle is used for top-level section headers and the application title.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// StatusBarStyle is used for the bottom status bar.
var StatusBarStyle = lipgloss.NewStyle().
	Foreground(ColorWhite).
	Background(ColorSubtle).
	Padding(0, 1)

// ReadingPaneStyle wraps the message reading pane content area.
var ReadingPaneStyle = lipgloss.NewStyle().
	Padding(1, 2).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBorder)

// ListItemStyle is the base style for items in a list.
var ListItemStyle = lipgloss.NewStyle().
	PaddingLeft(2)

// SelectedItemStyle highlights the currently focused list item.
var SelectedItemStyle = lipgloss.NewStyle().
	PaddingLeft(1).
	Bold(true).
	Foreground(ColorBlue).
	Border(lipgloss.NormalBorder(), false, false, false, true).
	BorderForeground(ColorBlue)

// HelpStyle is used for keyboard shortcut hints and help text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Italic(true)

// BorderStyle provides a standard rounded border for panels.
var BorderStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBorder)

// UnreadStyle marks unread messages in the list.
var UnreadStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite)

// StarStyle renders the starred marker.
var StarStyle = lipgloss.NewStyle().
	Foreground(ColorYellow)

// CheckedStyle renders the multi-select checkbox of a selected message.
var CheckedStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorGreen)

// OnlineStyle renders the presence dot of an online chat peer.
var OnlineStyle = lipgloss.NewStyle().
	Foreground(ColorGreen)

// RecordingStyle renders the live recording indicator.
var RecordingStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorRed)

// BubbleMineStyle renders chat messages sent by this account.
var BubbleMineStyle = lipgloss.NewStyle().
	Padding(0, 1).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBlue)

// BubbleTheirsStyle renders chat messages from the peer.
var BubbleTheirsStyle = lipgloss.NewStyle().
	Padding(0, 1).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBorder)

// DeliveryStyle returns a color-coded style for a chat message delivery
// state label.
func DeliveryStyle(state string) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)

	switch state {
	case "pending":
		return base.Foreground(ColorYellow)
	case "confirmed":
		return base.Foreground(ColorGreen)
	case "failed":
		return base.Foreground(ColorRed)
	default:
		return base.Foreground(ColorGray)
	}
}

// FolderStyle returns a color-coded style for the given folder label.
func FolderStyle(folder string) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)

	switch folder {
	case "inbox":
		return base.Foreground(ColorBlue)
	case "sent":
		return base.Foreground(ColorGreen)
	case "drafts":
		return base.Foreground(ColorYellow)
	case "spam":
		return base.Foreground(ColorOrange)
	case "trash":
		return base.Foreground(ColorRed)
	case "starred":
		return base.Foreground(ColorMagenta)
	default:
		return base.Foreground(ColorGray)
	}
}
