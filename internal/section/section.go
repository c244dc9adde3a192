// Package section plays bar-synchronized section content and switches
// sections at bar boundaries.
package section

// StepsPerBar is the pattern resolution of a track.
const StepsPerBar = 16

// Step is one note of a track pattern.
type Step struct {
	Index    int // 0..StepsPerBar-1
	Note     uint8
	Velocity uint8
	Length   int // in steps, at least 1
}

// Track is a one-bar pattern on a channel.
type Track struct {
	Name    string
	Channel uint8
	Steps   []Step
}

// Section is a named block of tracks. It is immutable after load.
type Section struct {
	Name   string
	Tracks []Track
}
