package sync

import "github.com/google/uuid"

var newActivityID = uuid.NewString
