package styles

const (
	IconSuccess = "✓"
	IconError   = "✗"
	IconWarning = "⚠"
	IconInfo    = "ℹ"
	IconPending = "○"
	IconSkipped = "⊘"
	IconBullet  = "•"
)

func LogLevelIcon(level string) string {
	switch level {
	case "error":
		return IconError
	case "warn":
		return IconWarning
	case "info":
		return IconInfo
	default:
		return IconBullet
	}
}
