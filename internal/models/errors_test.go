package models

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestRecoverable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"transient transform", TransientTransform(errors.New("rate limited")), true},
		{"rejected transform", RejectedTransform(errors.New("bad codec")), false},
		{"storage unavailable", fmt.Errorf("%w: disk full", ErrStorageUnavailable), true},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"not found", ErrNotFound, false},
		{"invalid input", ErrInvalidInput, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		if got := Recoverable(tt.err); got != tt.want {
			t.Errorf("%s: Recoverable = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{TransientTransform(errors.New("x")), ErrorKindTransformTransient},
		{RejectedTransform(errors.New("x")), ErrorKindTransformRejected},
		{fmt.Errorf("%w: x", ErrStorageUnavailable), ErrorKindStorageUnavailable},
		{fmt.Errorf("%w: x", ErrNotFound), ErrorKindNotFound},
		{ErrInvalidInput, ErrorKindInvalidInput},
		{context.DeadlineExceeded, ErrorKindTimeout},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestTransformErrorUnwrap(t *testing.T) {
	cause := errors.New("underlying")
	err := TransientTransform(fmt.Errorf("wrapped: %w", cause))
	if !errors.Is(err, cause) {
		t.Fatal("transform error should unwrap to its cause")
	}
}

func TestStageTerminal(t *testing.T) {
	terminal := map[Stage]bool{
		StageQueued: false, StageProcessingVideo: false, StageGeneratingAudio: false,
		StageCombining: false, StagePublishing: false,
		StageCompleted: true, StageFailed: true, StageCancelled: true,
	}
	for stage, want := range terminal {
		if got := stage.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", stage, got, want)
		}
	}
}
