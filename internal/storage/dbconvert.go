package storage

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
)

// pruneInterval spaces out the expired-row sweeps that Set triggers.
const pruneInterval = time.Minute

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// validateTableName rejects table names that would need quoting, since the
// name is interpolated into SQL text.
func validateTableName(name string) error {
	if !tableNamePattern.MatchString(name) {
		return fmt.Errorf("invalid table name: %q", name)
	}
	return nil
}

// expiresAt converts a TTL into a nullable unix-millisecond deadline.
// A non-positive TTL means the row never expires.
func expiresAt(now time.Time, ttl time.Duration) sql.NullInt64 {
	if ttl <= 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: now.Add(ttl).UnixMilli(), Valid: true}
}

// expired reports whether a nullable deadline has passed.
func expired(deadline sql.NullInt64, now time.Time) bool {
	return deadline.Valid && deadline.Int64 <= now.UnixMilli()
}

// likePrefix escapes LIKE wildcards so prefix matches literally.
// Queries must declare ESCAPE '\'.
func likePrefix(prefix string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(prefix) + "%"
}

// pruneSchedule rate-limits expired-row sweeps to one per pruneInterval.
type pruneSchedule struct {
	mu   sync.Mutex
	last time.Time
}

// due reports whether a sweep should run at now, and if so claims it.
func (p *pruneSchedule) due(now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.last.IsZero() && now.Sub(p.last) < pruneInterval {
		return false
	}
	p.last = now
	return true
}
