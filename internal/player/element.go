// Package player implements the playback controller and the controls
// visibility state machine for the player page. Both are pure state machines
// over narrow interfaces: the native media element and the page surface stay
// behind Element and Surface, so the logic is testable without a browser.
package player

// Element abstracts the single active native media element. The controller is
// its exclusive owner; no other component mutates playback position or volume
// directly.
type Element interface {
	Play()
	Pause()
	Paused() bool

	CurrentTime() float64
	SetCurrentTime(seconds float64)
	// Duration reports the media length in seconds, or 0 until metadata has
	// loaded.
	Duration() float64

	Volume() float64
	SetVolume(v float64)
	Muted() bool
	SetMuted(muted bool)

	Rate() float64
	SetRate(multiplier float64)

	// BufferedEnd reports the trailing edge of the buffered range in seconds.
	BufferedEnd() float64
}

// Surface abstracts page-level presentation toggles.
type Surface interface {
	SetFullscreen(on bool) error
	Fullscreen() bool
	SetPictureInPicture(on bool) error
	PictureInPicture() bool
}

// EventKind enumerates the native media events the controller observes.
type EventKind string

const (
	EventPlay           EventKind = "play"
	EventPause          EventKind = "pause"
	EventEnded          EventKind = "ended"
	EventLoadedMetadata EventKind = "loadedmetadata"
	EventTimeUpdate     EventKind = "timeupdate"
	EventProgress       EventKind = "progress"
)

// UIState is the derived presentation state rendered by the page. It is
// updated one way, native events to UI, never the reverse.
type UIState struct {
	Playing     bool
	Position    float64
	Duration    float64
	BufferedEnd float64
	Volume      float64
	Muted       bool
	Rate        float64

	Theater          bool
	Fullscreen       bool
	PictureInPicture bool

	// BigPlayVisible mirrors the large center play affordance: shown while
	// paused or ended, hidden during playback.
	BigPlayVisible bool
}
