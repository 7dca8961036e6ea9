// Package uploader is the client side of the direct-to-storage upload flow.
// A Client resolves the episode folder, streams each file straight to the
// storage provider with a short-lived authorization, then records the
// submission metadata, tracking its progress in a small state machine.
package uploader

import (
	"errors"
	"slices"
)

// State represents the current stage of a submission.
type State string

const (
	// StateIdle indicates no submission is in flight.
	StateIdle State = "IDLE"
	// StateRequestingFolder indicates the episode folder is being resolved.
	StateRequestingFolder State = "REQUESTING_FOLDER"
	// StateUploadingAudio indicates the audio file is being streamed.
	StateUploadingAudio State = "UPLOADING_AUDIO"
	// StateUploadingVideo indicates the video file is being streamed.
	StateUploadingVideo State = "UPLOADING_VIDEO"
	// StateRecordingMetadata indicates the metadata descriptor is being written.
	StateRecordingMetadata State = "RECORDING_METADATA"
	// StateSuccess indicates the submission completed.
	StateSuccess State = "SUCCESS"
	// StateFailed indicates the submission stopped at an error.
	StateFailed State = "FAILED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("uploader: invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[State][]State{
	StateIdle:              {StateRequestingFolder},
	StateRequestingFolder:  {StateUploadingAudio, StateUploadingVideo, StateFailed},
	StateUploadingAudio:    {StateUploadingVideo, StateRecordingMetadata, StateFailed},
	StateUploadingVideo:    {StateRecordingMetadata, StateFailed},
	StateRecordingMetadata: {StateSuccess, StateFailed},
	StateSuccess:           {StateIdle},
	StateFailed:            {StateIdle},
}

// canTransition checks if a transition from one state to another is valid.
func canTransition(from, to State) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	return slices.Contains(allowed, to)
}

// IsTerminal returns true for states that need a Reset before the next submission.
func (s State) IsTerminal() bool {
	return s == StateSuccess || s == StateFailed
}
