package httpapi

import (
	"context"
	"log"
	"sync"

	"fondapos/backend/internal/cart"
	"fondapos/backend/internal/checkout"
)

// noticeBuffer collects the cart's user-visible signals (price drift, dropped
// lines) so the next HTTP response can carry them to the register UI.
type noticeBuffer struct {
	notices []string
}

func (b *noticeBuffer) Info(msg string) { b.notices = append(b.notices, msg) }
func (b *noticeBuffer) Warn(msg string) { b.notices = append(b.notices, msg) }

func (b *noticeBuffer) drain() []string {
	out := b.notices
	b.notices = nil
	return out
}

// session is one operator's register state: their in-progress cart and the
// checkout workflow driving it. All handlers serialize on the session mutex,
// which is what makes the workflow's single-submission guarantee hold per
// operator.
type session struct {
	mu      sync.Mutex
	cart    *cart.Cart
	flow    *checkout.Workflow
	notices *noticeBuffer
}

type sessionManager struct {
	mu       sync.Mutex
	sessions map[string]*session
}

func newSessionManager() *sessionManager {
	return &sessionManager{sessions: make(map[string]*session)}
}

// sessionFor returns the operator's session, restoring the cart from the
// snapshot store on first access so a server restart does not lose an order
// being built.
func (a *API) sessionFor(ctx context.Context, operator string) (*session, error) {
	a.sessions.mu.Lock()
	defer a.sessions.mu.Unlock()

	if sess, ok := a.sessions.sessions[operator]; ok {
		return sess, nil
	}

	notices := &noticeBuffer{}
	var c *cart.Cart
	if a.carts != nil {
		restored, found, err := a.carts.Load(ctx, operator)
		if err != nil {
			log.Printf("[httpapi] WARN: cart snapshot load failed for %s: %v", operator, err)
		} else if found {
			c = restored
		}
	}
	if c == nil {
		c = cart.New(notices)
	} else {
		c.SetNotifier(notices)
	}

	sess := &session{
		cart:    c,
		flow:    checkout.NewWorkflow(a.repo, c, a.branchID, operator),
		notices: notices,
	}
	a.sessions.sessions[operator] = sess
	return sess, nil
}

// saveCart snapshots the session's cart after a mutation. An empty cart drops
// the snapshot instead. Failures are logged, not surfaced; the snapshot is a
// recovery aid, not the source of truth.
func (a *API) saveCart(ctx context.Context, operator string, sess *session) {
	if a.carts == nil {
		return
	}
	c := sess.cart
	if len(c.Items) == 0 && c.Customer == nil && c.EditingOrderID == "" {
		if err := a.carts.Delete(ctx, operator); err != nil {
			log.Printf("[httpapi] WARN: cart snapshot delete failed for %s: %v", operator, err)
		}
		return
	}
	if err := a.carts.Save(ctx, operator, c, a.cartTTL); err != nil {
		log.Printf("[httpapi] WARN: cart snapshot save failed for %s: %v", operator, err)
	}
}
