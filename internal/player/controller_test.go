package player

import (
	"testing"

	"github.com/syncovids/backend/internal/models"
)

type fakeElement struct {
	paused   bool
	position float64
	duration float64
	volume   float64
	muted    bool
	rate     float64
	buffered float64
}

func newFakeElement() *fakeElement {
	return &fakeElement{paused: true, duration: 120, volume: 1, rate: 1}
}

func (e *fakeElement) Play()                        { e.paused = false }
func (e *fakeElement) Pause()                       { e.paused = true }
func (e *fakeElement) Paused() bool                 { return e.paused }
func (e *fakeElement) CurrentTime() float64         { return e.position }
func (e *fakeElement) SetCurrentTime(s float64)     { e.position = s }
func (e *fakeElement) Duration() float64            { return e.duration }
func (e *fakeElement) Volume() float64              { return e.volume }
func (e *fakeElement) SetVolume(v float64)          { e.volume = v }
func (e *fakeElement) Muted() bool                  { return e.muted }
func (e *fakeElement) SetMuted(m bool)              { e.muted = m }
func (e *fakeElement) Rate() float64                { return e.rate }
func (e *fakeElement) SetRate(m float64)            { e.rate = m }
func (e *fakeElement) BufferedEnd() float64         { return e.buffered }

type fakeSurface struct {
	fullscreen bool
	pip        bool
}

func (s *fakeSurface) SetFullscreen(on bool) error       { s.fullscreen = on; return nil }
func (s *fakeSurface) Fullscreen() bool                  { return s.fullscreen }
func (s *fakeSurface) SetPictureInPicture(on bool) error { s.pip = on; return nil }
func (s *fakeSurface) PictureInPicture() bool            { return s.pip }

func TestControllerTogglePlay(t *testing.T) {
	el := newFakeElement()
	c := NewController(el, nil, models.KindVideo, nil)

	c.TogglePlay()
	if el.paused {
		t.Fatal("expected element to play")
	}

	c.TogglePlay()
	if !el.paused {
		t.Fatal("expected element to pause")
	}
}

func TestControllerSeekClampsToZero(t *testing.T) {
	el := newFakeElement()
	el.position = 3
	c := NewController(el, nil, models.KindVideo, nil)

	c.SeekRelative(-10)
	if el.position != 0 {
		t.Fatalf("expected position 0 got %v", el.position)
	}
}

func TestControllerSeekClampsToDuration(t *testing.T) {
	el := newFakeElement()
	el.position = 115
	c := NewController(el, nil, models.KindVideo, nil)

	c.SeekRelative(10)
	if el.position != 120 {
		t.Fatalf("expected position 120 got %v", el.position)
	}
}

func TestControllerSeekUnknownDuration(t *testing.T) {
	el := newFakeElement()
	el.duration = 0
	el.position = 40
	c := NewController(el, nil, models.KindVideo, nil)

	// With unknown duration only the lower bound clamps.
	c.SeekRelative(100)
	if el.position != 140 {
		t.Fatalf("expected position 140 got %v", el.position)
	}
	c.SeekRelative(-500)
	if el.position != 0 {
		t.Fatalf("expected position 0 got %v", el.position)
	}
}

func TestControllerSeekToFraction(t *testing.T) {
	el := newFakeElement()
	c := NewController(el, nil, models.KindVideo, nil)

	c.SeekToFraction(0.5)
	if el.position != 60 {
		t.Fatalf("expected position 60 got %v", el.position)
	}

	c.SeekToFraction(2)
	if el.position != 120 {
		t.Fatalf("expected fraction to clamp to duration, got %v", el.position)
	}
}

func TestControllerVolumeClearsMuted(t *testing.T) {
	el := newFakeElement()
	el.muted = true
	c := NewController(el, nil, models.KindAudio, nil)

	c.SetVolume(0.4)
	if el.muted {
		t.Fatal("expected positive volume to clear muted")
	}
	if el.volume != 0.4 {
		t.Fatalf("expected volume 0.4 got %v", el.volume)
	}

	c.SetVolume(0)
	c.ToggleMute()
	if !el.muted {
		t.Fatal("expected mute toggle to mute")
	}
	c.ToggleMute()
	if el.muted {
		t.Fatal("expected second toggle to unmute")
	}
}

func TestControllerAdjustVolumeClamps(t *testing.T) {
	el := newFakeElement()
	el.volume = 0.95
	c := NewController(el, nil, models.KindVideo, nil)

	c.AdjustVolume(0.1)
	if el.volume != 1 {
		t.Fatalf("expected volume to clamp at 1 got %v", el.volume)
	}

	c.AdjustVolume(-2)
	if el.volume != 0 {
		t.Fatalf("expected volume to clamp at 0 got %v", el.volume)
	}
}

func TestControllerImageIsInert(t *testing.T) {
	el := newFakeElement()
	c := NewController(el, &fakeSurface{}, models.KindImage, nil)

	c.TogglePlay()
	c.SeekRelative(10)
	c.SetVolume(0.2)
	c.SetRate(2)
	if !el.paused || el.position != 0 || el.volume != 1 || el.rate != 1 {
		t.Fatalf("expected no element mutation for image kind, got %+v", el)
	}
	if c.HandleKey(" ", false) {
		t.Fatal("expected keys to be ignored for image kind")
	}
}

func TestControllerPictureInPictureVideoOnly(t *testing.T) {
	surface := &fakeSurface{}

	audio := NewController(newFakeElement(), surface, models.KindAudio, nil)
	audio.TogglePictureInPicture()
	if surface.pip {
		t.Fatal("expected pip to stay off for audio")
	}

	video := NewController(newFakeElement(), surface, models.KindVideo, nil)
	video.TogglePictureInPicture()
	if !surface.pip {
		t.Fatal("expected pip to turn on for video")
	}
}

func TestControllerHandleKey(t *testing.T) {
	tests := []struct {
		key   string
		check func(t *testing.T, el *fakeElement, s *fakeSurface)
	}{
		{" ", func(t *testing.T, el *fakeElement, _ *fakeSurface) {
			if el.paused {
				t.Fatal("space should start playback")
			}
		}},
		{"k", func(t *testing.T, el *fakeElement, _ *fakeSurface) {
			if el.paused {
				t.Fatal("k should start playback")
			}
		}},
		{"f", func(t *testing.T, _ *fakeElement, s *fakeSurface) {
			if !s.fullscreen {
				t.Fatal("f should enter fullscreen")
			}
		}},
		{"m", func(t *testing.T, el *fakeElement, _ *fakeSurface) {
			if !el.muted {
				t.Fatal("m should mute")
			}
		}},
		{"ArrowRight", func(t *testing.T, el *fakeElement, _ *fakeSurface) {
			if el.position != 35 {
				t.Fatalf("ArrowRight should seek +5, got %v", el.position)
			}
		}},
		{"ArrowLeft", func(t *testing.T, el *fakeElement, _ *fakeSurface) {
			if el.position != 25 {
				t.Fatalf("ArrowLeft should seek -5, got %v", el.position)
			}
		}},
		{"l", func(t *testing.T, el *fakeElement, _ *fakeSurface) {
			if el.position != 40 {
				t.Fatalf("l should seek +10, got %v", el.position)
			}
		}},
		{"j", func(t *testing.T, el *fakeElement, _ *fakeSurface) {
			if el.position != 20 {
				t.Fatalf("j should seek -10, got %v", el.position)
			}
		}},
		{"ArrowUp", func(t *testing.T, el *fakeElement, _ *fakeSurface) {
			if el.volume != 0.6 {
				t.Fatalf("ArrowUp should raise volume to 0.6, got %v", el.volume)
			}
		}},
		{"ArrowDown", func(t *testing.T, el *fakeElement, _ *fakeSurface) {
			if el.volume != 0.4 {
				t.Fatalf("ArrowDown should lower volume to 0.4, got %v", el.volume)
			}
		}},
		{"7", func(t *testing.T, el *fakeElement, _ *fakeSurface) {
			if el.position != 84 {
				t.Fatalf("digit 7 should seek to 70%%, got %v", el.position)
			}
		}},
		{"0", func(t *testing.T, el *fakeElement, _ *fakeSurface) {
			if el.position != 0 {
				t.Fatalf("digit 0 should seek to start, got %v", el.position)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			el := newFakeElement()
			el.position = 30
			el.volume = 0.5
			surface := &fakeSurface{}
			c := NewController(el, surface, models.KindVideo, nil)

			if !c.HandleKey(tt.key, false) {
				t.Fatalf("expected key %q to be consumed", tt.key)
			}
			tt.check(t, el, surface)
		})
	}
}

func TestControllerHandleKeyInTextInput(t *testing.T) {
	el := newFakeElement()
	c := NewController(el, nil, models.KindVideo, nil)

	if c.HandleKey(" ", true) {
		t.Fatal("expected keys to be ignored while typing")
	}
	if !el.paused {
		t.Fatal("expected playback untouched while typing")
	}
}

func TestControllerHandleKeyUnknown(t *testing.T) {
	c := NewController(newFakeElement(), nil, models.KindVideo, nil)
	if c.HandleKey("q", false) {
		t.Fatal("expected unmapped key to pass through")
	}
}

func TestControllerHandleEvent(t *testing.T) {
	el := newFakeElement()
	var last UIState
	c := NewController(el, nil, models.KindVideo, func(s UIState) { last = s })

	c.HandleEvent(EventPlay)
	if !last.Playing || last.BigPlayVisible {
		t.Fatalf("play event should set playing and hide big play, got %+v", last)
	}

	c.HandleEvent(EventPause)
	if last.Playing || !last.BigPlayVisible {
		t.Fatalf("pause event should clear playing and show big play, got %+v", last)
	}

	el.position = 42
	c.HandleEvent(EventTimeUpdate)
	if last.Position != 42 {
		t.Fatalf("timeupdate should refresh position, got %v", last.Position)
	}

	el.duration = 300
	c.HandleEvent(EventLoadedMetadata)
	if last.Duration != 300 {
		t.Fatalf("loadedmetadata should refresh duration, got %v", last.Duration)
	}

	el.buffered = 90
	c.HandleEvent(EventProgress)
	if last.BufferedEnd != 90 {
		t.Fatalf("progress should refresh buffered end, got %v", last.BufferedEnd)
	}

	c.HandleEvent(EventEnded)
	if last.Playing || !last.BigPlayVisible {
		t.Fatalf("ended event should behave like pause, got %+v", last)
	}
}
