package models

import "errors"

// ErrStaleVersion is returned by queue repositories when a conditional
// position write finds the live queue version differs from the version
// the caller based its assignments on. No rows are written in that case.
var ErrStaleVersion = errors.New("models: queue version is stale")
