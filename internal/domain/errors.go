package domain

import "errors"

var (
	// ErrAssetUnavailable marks an asset with no data this cycle. Never fatal.
	ErrAssetUnavailable = errors.New("asset unavailable")
	// ErrProviderExhausted means every sentiment provider failed or came up short.
	ErrProviderExhausted = errors.New("sentiment providers exhausted")
	// ErrPublishFailed wraps store write errors raised while publishing a snapshot.
	ErrPublishFailed = errors.New("publish failed")
	// ErrConfiguration is the only error class that aborts startup.
	ErrConfiguration = errors.New("configuration error")
	// ErrRunIncomplete is returned when a run was cancelled before it could publish.
	ErrRunIncomplete = errors.New("run incomplete")
	ErrNoAssets      = errors.New("no assets to collect")
	ErrLockHeld      = errors.New("publish lock held by another run")
	ErrRunInProgress = errors.New("pipeline run already in progress")
	ErrNotFound      = errors.New("not found")
)
