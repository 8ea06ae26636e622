package player

import (
	"sync"

	"github.com/syncovids/backend/internal/models"
)

// Controller wraps exactly one active media element and translates UI intents
// into transport calls. No controller logic applies when the resolved kind is
// image; every operation is then a no-op.
type Controller struct {
	mu      sync.Mutex
	el      Element
	surface Surface
	kind    models.MediaKind

	state    UIState
	onChange func(UIState)
}

// NewController constructs a controller for the given element and media kind.
// el may be nil (no media loaded); surface may be nil when the page offers no
// fullscreen or picture-in-picture affordances. onChange receives every
// derived-state update and may be nil.
func NewController(el Element, surface Surface, kind models.MediaKind, onChange func(UIState)) *Controller {
	c := &Controller{el: el, surface: surface, kind: kind, onChange: onChange}
	if c.active() {
		c.state = UIState{
			Position:       el.CurrentTime(),
			Duration:       el.Duration(),
			Volume:         el.Volume(),
			Muted:          el.Muted(),
			Rate:           el.Rate(),
			BufferedEnd:    el.BufferedEnd(),
			Playing:        !el.Paused(),
			BigPlayVisible: el.Paused(),
		}
	}
	return c
}

func (c *Controller) active() bool {
	return c.el != nil && c.kind != models.KindImage && c.kind != models.KindNone
}

// State returns a copy of the current derived UI state.
func (c *Controller) State() UIState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// TogglePlay plays if paused and pauses if playing. No-op without media.
func (c *Controller) TogglePlay() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active() {
		return
	}
	if c.el.Paused() {
		c.el.Play()
	} else {
		c.el.Pause()
	}
}

// SeekRelative moves the position by delta seconds, clamped to the known
// duration. A negative overshoot lands on zero, never a negative position.
func (c *Controller) SeekRelative(deltaSeconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active() {
		return
	}
	c.seekTo(c.el.CurrentTime() + deltaSeconds)
}

// SeekToFraction seeks to f*duration for f in [0,1]; the fraction comes from
// the pointer's x-offset within the progress bar.
func (c *Controller) SeekToFraction(f float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active() {
		return
	}
	f = clamp(f, 0, 1)
	c.seekTo(f * c.el.Duration())
}

// seekTo clamps and applies a target position under the held lock.
func (c *Controller) seekTo(target float64) {
	if target < 0 {
		target = 0
	}
	if d := c.el.Duration(); d > 0 && target > d {
		target = d
	}
	c.el.SetCurrentTime(target)
	c.state.Position = target
	c.emit()
}

// SetVolume applies a volume in [0,1]. Any positive volume clears muted.
func (c *Controller) SetVolume(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active() {
		return
	}
	v = clamp(v, 0, 1)
	c.el.SetVolume(v)
	c.state.Volume = v
	if v > 0 {
		c.el.SetMuted(false)
		c.state.Muted = false
	}
	c.emit()
}

// AdjustVolume nudges the volume by delta, clamped to [0,1].
func (c *Controller) AdjustVolume(delta float64) {
	c.mu.Lock()
	v := c.state.Volume
	c.mu.Unlock()
	c.SetVolume(v + delta)
}

// ToggleMute flips the muted flag without touching the stored volume.
func (c *Controller) ToggleMute() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active() {
		return
	}
	muted := !c.el.Muted()
	c.el.SetMuted(muted)
	c.state.Muted = muted
	c.emit()
}

// SetRate applies a playback-rate multiplier immediately. The discrete choice
// set is a UI concern, not a controller constraint.
func (c *Controller) SetRate(multiplier float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active() || multiplier <= 0 {
		return
	}
	c.el.SetRate(multiplier)
	c.state.Rate = multiplier
	c.emit()
}

// ToggleFullscreen flips the page fullscreen state.
func (c *Controller) ToggleFullscreen() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active() || c.surface == nil {
		return
	}
	if err := c.surface.SetFullscreen(!c.surface.Fullscreen()); err != nil {
		return
	}
	c.state.Fullscreen = c.surface.Fullscreen()
	c.emit()
}

// TogglePictureInPicture flips picture-in-picture. Video only; it no-ops
// silently for audio.
func (c *Controller) TogglePictureInPicture() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active() || c.surface == nil || c.kind != models.KindVideo {
		return
	}
	if err := c.surface.SetPictureInPicture(!c.surface.PictureInPicture()); err != nil {
		return
	}
	c.state.PictureInPicture = c.surface.PictureInPicture()
	c.emit()
}

// ToggleTheaterMode flips the wide layout flag. Pure layout state, no native
// API involved.
func (c *Controller) ToggleTheaterMode() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active() {
		return
	}
	c.state.Theater = !c.state.Theater
	c.emit()
}

// HandleKey maps a keyboard shortcut to a transport operation. Shortcuts are
// disabled while focus sits in a text input and for image kind. The return
// value reports whether the key was consumed.
func (c *Controller) HandleKey(key string, inTextInput bool) bool {
	if inTextInput || !c.active() {
		return false
	}

	switch key {
	case " ", "k":
		c.TogglePlay()
	case "f":
		c.ToggleFullscreen()
	case "m":
		c.ToggleMute()
	case "ArrowLeft":
		c.SeekRelative(-5)
	case "ArrowRight":
		c.SeekRelative(5)
	case "ArrowUp":
		c.AdjustVolume(0.1)
	case "ArrowDown":
		c.AdjustVolume(-0.1)
	case "j":
		c.SeekRelative(-10)
	case "l":
		c.SeekRelative(10)
	case "0", "1", "2", "3", "4", "5", "6", "7", "8", "9":
		c.SeekToFraction(float64(key[0]-'0') / 10)
	default:
		return false
	}
	return true
}

// HandleEvent folds a native media event into derived UI state. Updates flow
// one way only, native to UI.
func (c *Controller) HandleEvent(kind EventKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active() {
		return
	}

	switch kind {
	case EventPlay:
		c.state.Playing = true
		c.state.BigPlayVisible = false
	case EventPause, EventEnded:
		c.state.Playing = false
		c.state.BigPlayVisible = true
	case EventLoadedMetadata:
		c.state.Duration = c.el.Duration()
	case EventTimeUpdate:
		c.state.Position = c.el.CurrentTime()
	case EventProgress:
		c.state.BufferedEnd = c.el.BufferedEnd()
	default:
		return
	}
	c.emit()
}

// emit publishes the current state under the held lock.
func (c *Controller) emit() {
	if c.onChange != nil {
		c.onChange(c.state)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
