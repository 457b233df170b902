package store

import "errors"

var errUserIDRequired = errors.New("user id is required")
