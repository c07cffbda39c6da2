// Package player walks a resolved track list the way the storefront's player does,
// only ever landing on tracks that have a preview.
package player

import (
	"errors"
	"sync"

	"github.com/samber/lo"

	"github.com/xeptore/vinylpreview/track"
)

var ErrNothingPlayable = errors.New("no preview available")

type Playlist struct {
	mux     sync.Mutex
	tracks  []track.Track
	current int
}

// New creates a playlist positioned on the first playable track.
func New(tracks []track.Track) *Playlist {
	p := &Playlist{
		mux:     sync.Mutex{},
		tracks:  tracks,
		current: -1,
	}
	if i, ok := p.seek(0, 1); ok {
		p.current = i
	}
	return p
}

// Playable lists the tracks that have a preview, in playlist order.
func (p *Playlist) Playable() []track.Track {
	return lo.Filter(p.tracks, func(t track.Track, _ int) bool { return t.Playable() })
}

func (p *Playlist) Len() int {
	return len(p.tracks)
}

func (p *Playlist) Current() (track.Track, error) {
	p.mux.Lock()
	defer p.mux.Unlock()

	if p.current < 0 {
		return track.Track{}, ErrNothingPlayable //nolint:exhaustruct
	}
	return p.tracks[p.current], nil
}

// Next advances to the following playable track, wrapping around at the end.
func (p *Playlist) Next() (track.Track, error) {
	return p.step(1)
}

// Previous moves back to the preceding playable track, wrapping around at the start.
func (p *Playlist) Previous() (track.Track, error) {
	return p.step(-1)
}

func (p *Playlist) step(dir int) (track.Track, error) {
	p.mux.Lock()
	defer p.mux.Unlock()

	if p.current < 0 {
		return track.Track{}, ErrNothingPlayable //nolint:exhaustruct
	}
	i, _ := p.seek(p.current+dir, dir)
	p.current = i
	return p.tracks[i], nil
}

// seek finds the first playable index starting at from and moving by dir.
func (p *Playlist) seek(from, dir int) (int, bool) {
	n := len(p.tracks)
	for k := range n {
		i := ((from+k*dir)%n + n) % n
		if p.tracks[i].Playable() {
			return i, true
		}
	}
	return -1, false
}
