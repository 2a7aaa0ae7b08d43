package forge

import "errors"

var (
	// ErrNotFound reports that the requested entity does not exist on the
	// platform. Callers must not conflate it with transient failures: any
	// other error means "could not determine state, skip this item".
	ErrNotFound = errors.New("not found")

	// ErrMissingArgument reports a call made with an empty required
	// argument.
	ErrMissingArgument = errors.New("missing required argument")

	// ErrBadCredentials reports a token that is invalid or lacks the
	// admin:org scope. This is fatal for the whole run.
	ErrBadCredentials = errors.New("invalid or under-scoped credentials")
)
