// yarex/pkg/store/store.go

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"rgehrsitz/yarex/pkg/rule"
)

// ErrNotFound is returned when no record exists for a rule name.
var ErrNotFound = errors.New("rule record not found")

// Record is the stored form of a rule: the request it is rebuilt from,
// its last rendering and where its compiled artifact lives.
type Record struct {
	ID           uuid.UUID     `json:"id"`
	Name         string        `json:"name"`
	Request      *rule.Request `json:"request"`
	Source       string        `json:"source,omitempty"`
	Namespace    string        `json:"namespace,omitempty"`
	CompiledPath string        `json:"compiled_path,omitempty"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// NewRecord captures r's current state.
func NewRecord(r *rule.Rule) *Record {
	return &Record{
		Name:         r.Name(),
		Request:      r.ToRequest(),
		Source:       r.Render(),
		Namespace:    r.Namespace(),
		CompiledPath: r.CompiledPath(),
	}
}

// Rule rebuilds the rule the record was made from.
func (rec *Record) Rule() (*rule.Rule, error) {
	r, err := rule.FromRequest(rec.Request)
	if err != nil {
		return nil, err
	}
	r.SetNamespace(rec.Namespace)
	return r, nil
}

type Store interface {
	SaveRule(ctx context.Context, rec *Record) error
	GetRule(ctx context.Context, name string) (*Record, error)
	ListRules(ctx context.Context) ([]string, error)
	DeleteRule(ctx context.Context, name string) error
	Subscribe(ctx context.Context) (*redis.PubSub, error)
	Close() error
}
