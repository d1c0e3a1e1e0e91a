package provider

import (
	"context"
	"net/http"
	"time"
)

// Resultados reportados al Observer.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeFault    = "fault"
)

// Operaciones reportadas al Observer.
const (
	OpSignUp  = "signup"
	OpSignIn  = "signin"
	OpSignOut = "signout"
	OpGetUser = "get_user"
)

// Observer recibe una observacion por cada llamada al proveedor.
type Observer interface {
	ObserveProviderCall(op, outcome string, elapsed time.Duration)
}

// InstrumentFactory envuelve un Factory para reportar cada llamada al Observer.
// Con observer nil devuelve el Factory sin cambios.
func InstrumentFactory(next Factory, observer Observer) Factory {
	if observer == nil {
		return next
	}
	return FactoryFunc(func(w http.ResponseWriter, r *http.Request) Client {
		return &instrumentedClient{next: next.ForRequest(w, r), observer: observer}
	})
}

type instrumentedClient struct {
	next     Client
	observer Observer
}

func (c *instrumentedClient) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*SignUpResult, error) {
	start := time.Now()
	res, err := c.next.SignUp(ctx, email, password, metadata)
	c.observe(OpSignUp, start, err)
	return res, err
}

func (c *instrumentedClient) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	start := time.Now()
	session, err := c.next.SignInWithPassword(ctx, email, password)
	c.observe(OpSignIn, start, err)
	return session, err
}

func (c *instrumentedClient) SignOut(ctx context.Context) error {
	start := time.Now()
	err := c.next.SignOut(ctx)
	c.observe(OpSignOut, start, err)
	return err
}

func (c *instrumentedClient) GetUser(ctx context.Context) (*User, error) {
	start := time.Now()
	user, err := c.next.GetUser(ctx)
	c.observe(OpGetUser, start, err)
	return user, err
}

func (c *instrumentedClient) observe(op string, start time.Time, err error) {
	c.observer.ObserveProviderCall(op, Outcome(err), time.Since(start))
}

// Outcome clasifica el error devuelto por una llamada al proveedor.
func Outcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	if _, ok := AsAuthError(err); ok {
		return OutcomeRejected
	}
	return OutcomeFault
}
