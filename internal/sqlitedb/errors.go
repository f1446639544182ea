package sqlitedb

import (
	"context"
	"errors"
	"strings"
	"time"
)

const (
	codeBusy    = 5
	codeCorrupt = 11
	codeNotADB  = 26
	// Extended result codes for UNIQUE and PRIMARY KEY violations.
	codeConstraintUnique     = 2067
	codeConstraintPrimaryKey = 1555

	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func errorCode(err error) (int, bool) {
	var coder interface{ Code() int }
	if errors.As(err, &coder) {
		return coder.Code(), true
	}
	return 0, false
}

// IsBusy reports SQLITE_BUSY / locked database errors.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := errorCode(err); ok && code&0xff == codeBusy {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// IsUniqueConstraint reports unique or primary key violations.
func IsUniqueConstraint(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := errorCode(err); ok && (code == codeConstraintUnique || code == codeConstraintPrimaryKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint failed")
}

// IsMissingSchema reports queries against tables or columns that do not exist.
func IsMissingSchema(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such table") || strings.Contains(msg, "no such column")
}

// IsCorrupt reports a damaged or non-SQLite file.
func IsCorrupt(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := errorCode(err); ok {
		switch code & 0xff {
		case codeCorrupt, codeNotADB:
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "malformed") || strings.Contains(msg, "file is not a database")
}

// IsDegraded reports errors where reads should fall back to an empty result.
func IsDegraded(err error) bool {
	return IsMissingSchema(err) || IsCorrupt(err)
}

// RetryOnBusy runs op, retrying with exponential backoff while SQLite reports busy.
func RetryOnBusy(ctx context.Context, op func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !IsBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
