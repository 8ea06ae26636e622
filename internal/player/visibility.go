package player

import (
	"sync"
	"time"

	"github.com/syncovids/backend/internal/models"
)

const (
	// DefaultIdleDelay is how long the pointer may rest over the player
	// before controls hide during playback.
	DefaultIdleDelay = 3 * time.Second
	// DefaultLeaveDelay applies after the pointer leaves the player region.
	DefaultLeaveDelay = 1 * time.Second
)

// Visibility tracks whether the on-screen transport controls are shown.
// Controls hide only while playback is active; paused playback keeps them
// visible indefinitely. The machine is disabled entirely for image kind.
type Visibility struct {
	mu sync.Mutex

	disabled bool
	visible  bool
	playing  bool

	idleDelay  time.Duration
	leaveDelay time.Duration
	timer      *time.Timer

	onChange func(visible bool)
}

// NewVisibility constructs the machine for the given media kind. onChange
// observes every transition and may be nil.
func NewVisibility(kind models.MediaKind, onChange func(bool)) *Visibility {
	v := &Visibility{
		disabled:   kind == models.KindImage,
		idleDelay:  DefaultIdleDelay,
		leaveDelay: DefaultLeaveDelay,
		onChange:   onChange,
	}
	v.visible = !v.disabled
	return v
}

// SetDelays overrides the inactivity windows. Intended for tests.
func (v *Visibility) SetDelays(idle, leave time.Duration) {
	v.mu.Lock()
	v.idleDelay = idle
	v.leaveDelay = leave
	v.mu.Unlock()
}

// Visible reports the current state.
func (v *Visibility) Visible() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.visible
}

// SetPlaying records whether playback is active. Pausing does not show the
// controls by itself, but it prevents any armed timer from hiding them.
func (v *Visibility) SetPlaying(playing bool) {
	v.mu.Lock()
	v.playing = playing
	v.mu.Unlock()
}

// PointerMoved shows the controls and re-arms the inactivity timer.
func (v *Visibility) PointerMoved() {
	v.wake(func() time.Duration { return v.idleDelay })
}

// PointerLeft arms the shorter hide timer without forcing the controls
// visible first.
func (v *Visibility) PointerLeft() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disabled {
		return
	}
	v.arm(v.leaveDelay)
}

// KeyPressed forces the controls visible with the same re-arm behavior as
// pointer movement.
func (v *Visibility) KeyPressed() {
	v.wake(func() time.Duration { return v.idleDelay })
}

// Stop cancels any armed timer. Called when the page is torn down.
func (v *Visibility) Stop() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.timer != nil {
		v.timer.Stop()
		v.timer = nil
	}
}

func (v *Visibility) wake(delay func() time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disabled {
		return
	}
	v.setVisible(true)
	v.arm(delay())
}

// arm (re)starts the hide timer under the held lock.
func (v *Visibility) arm(delay time.Duration) {
	if v.timer != nil {
		v.timer.Stop()
	}
	v.timer = time.AfterFunc(delay, v.timerFired)
}

func (v *Visibility) timerFired() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.disabled || !v.playing {
		return
	}
	v.setVisible(false)
}

// setVisible transitions under the held lock, notifying only on change.
func (v *Visibility) setVisible(visible bool) {
	if v.visible == visible {
		return
	}
	v.visible = visible
	if v.onChange != nil {
		v.onChange(visible)
	}
}
