package capture

// WindowInfo describes the focused window. Empty strings mean unknown.
type WindowInfo interface {
	ActiveApp() string
	ActiveTitle() string
}

// ActivityMonitor reports whether the user has interacted recently.
type ActivityMonitor interface {
	IsActive() bool
}

// StaticWindow reports fixed values, used where no platform lookup exists.
type StaticWindow struct {
	App   string
	Title string
}

func (w StaticWindow) ActiveApp() string   { return w.App }
func (w StaticWindow) ActiveTitle() string { return w.Title }

// AlwaysActive never reports the user as idle.
type AlwaysActive struct{}

func (AlwaysActive) IsActive() bool { return true }
