package journal

import "errors"

// ErrCorruptJournal is returned when stored rows cannot be turned back into records.
var ErrCorruptJournal = errors.New("corrupt journal")

// ErrLocked is returned by Open when another process holds the journal.
var ErrLocked = errors.New("journal is locked by another process")
