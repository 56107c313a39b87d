package calendar

import (
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"iesb-saude-portal/internal/parse"
)

// MonthKey addresses one cached month of availability for a specialty and
// campus pair.
type MonthKey struct {
	Month       string
	SpecialtyID int64
	CampusID    int64
}

func (k MonthKey) String() string {
	return fmt.Sprintf("%s|%d|%d", k.Month, k.SpecialtyID, k.CampusID)
}

// MonthCache keeps whole months of availability for a freshness window.
type MonthCache struct {
	store *cache.Cache
	ttl   time.Duration
}

// NewMonthCache creates a cache whose entries expire after ttl.
func NewMonthCache(ttl time.Duration) *MonthCache {
	return &MonthCache{
		store: cache.New(ttl, 2*ttl),
		ttl:   ttl,
	}
}

func (m *MonthCache) Get(key MonthKey) (Availability, bool) {
	v, found := m.store.Get(key.String())
	if !found {
		return Availability{}, false
	}
	return v.(Availability), true
}

func (m *MonthCache) Set(key MonthKey, av Availability) {
	m.store.Set(key.String(), av, m.ttl)
}

// Invalidate drops every entry of the month containing t, whatever the
// specialty or campus.
func (m *MonthCache) Invalidate(t time.Time) {
	prefix := t.Format(parse.MonthLayout) + "|"
	for k := range m.store.Items() {
		if strings.HasPrefix(k, prefix) {
			m.store.Delete(k)
		}
	}
}

func (m *MonthCache) InvalidateAll() {
	m.store.Flush()
}

// Len counts live entries.
func (m *MonthCache) Len() int {
	return m.store.ItemCount()
}
