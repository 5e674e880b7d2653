package domain

// AppState is the host application lifecycle phase.
type AppState string

const (
	AppStateForeground AppState = "foreground"
	AppStateBackground AppState = "background"
)

// ParseAppState accepts the lifecycle names used by the control endpoints.
func ParseAppState(s string) (AppState, bool) {
	switch AppState(s) {
	case AppStateForeground, AppStateBackground:
		return AppState(s), true
	case "active":
		return AppStateForeground, true
	case "inactive":
		return AppStateBackground, true
	default:
		return "", false
	}
}
