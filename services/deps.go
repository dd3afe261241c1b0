package services

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Chain is the contract surface the services depend on. chain.Client and
// chain.Disabled both satisfy it.
type Chain interface {
	DeployEscrowForGroup(ctx context.Context, groupID int64) (string, error)
	AddDocument(ctx context.Context, escrowAddress, documentHash string, price decimal.Decimal, payee string, groupID int64) (string, error)
	MakePayment(ctx context.Context, escrowAddress, documentID string) (string, error)
	IsDocumentUnlocked(ctx context.Context, escrowAddress, documentID string) (bool, error)
	MintLawyerIdentity(ctx context.Context, to string) (string, error)
}

// Notifier pushes live updates to a group's connected clients.
type Notifier interface {
	Broadcast(groupID int64, msgType string, data any)
}

type nopNotifier struct{}

func (nopNotifier) Broadcast(int64, string, any) {}

// Clock returns the current time. Services store everything in UTC.
type Clock func() time.Time

func utcNow() time.Time { return time.Now().UTC() }

func (c Clock) now() time.Time {
	if c == nil {
		return utcNow()
	}
	return c().UTC()
}

// keyedLocks hands out one mutex per id. The zero value is ready to use.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func (k *keyedLocks) get(id int64) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.locks == nil {
		k.locks = make(map[int64]*sync.Mutex)
	}
	l, ok := k.locks[id]
	if !ok {
		l = &sync.Mutex{}
		k.locks[id] = l
	}
	return l
}
