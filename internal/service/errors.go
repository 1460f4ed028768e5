package service

import "errors"

var (
	ErrWorkspaceRequired      = errors.New("workspace id is required")
	ErrPostNotFound           = errors.New("post not found")
	ErrPostInExperiment       = errors.New("post already belongs to an experiment")
	ErrExperimentTooFewPosts  = errors.New("an experiment needs at least two posts")
	ErrExperimentNameRequired = errors.New("experiment name is required")
	ErrExperimentNotFound     = errors.New("experiment not found")
	ErrExperimentClosed       = errors.New("experiment is no longer running")
	ErrInvalidFeedback        = errors.New("invalid feedback event")
	ErrUnsupportedPlatform    = errors.New("unsupported platform")
)
