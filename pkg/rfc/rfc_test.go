package rfc

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

// alwaysReady satisfies ReadyChecker unconditionally, for tests that don't
// exercise the Connector lifecycle gate directly.
type alwaysReady struct{}

func (alwaysReady) InspectReady(string) error { return nil }

// loopback wires two Communicators directly in-process: SendData on one
// side hands the Invoke straight to the other side's ReplyData, so no real
// transport is needed to exercise the core.
type loopback struct {
	peer func() *Communicator
}

func (l *loopback) SendData(ctx context.Context, inv Invoke) error {
	go l.peer().ReplyData(ctx, inv)
	return nil
}

func newPair(opts ...Option) (a, b *Communicator) {
	var ta, tb loopback
	a = New(&ta, alwaysReady{}, opts...)
	b = New(&tb, alwaysReady{}, opts...)
	ta.peer = func() *Communicator { return b }
	tb.peer = func() *Communicator { return a }
	return a, b
}

func echoFn(ctx context.Context, args []any) (any, error) {
	return args, nil
}

func TestEchoScenario(t *testing.T) {
	defer goleak.VerifyNone(t)

	a, b := newPair()
	defer a.Destroy(nil)
	defer b.Destroy(nil)

	type provider struct {
		Echo RemoteFunc
	}
	b.SetProvider(&provider{Echo: echoFn})

	got, err := a.Driver().Call(context.Background(), "Echo", 42)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	args, ok := got.([]any)
	if !ok || len(args) != 1 || args[0] != 42 {
		t.Fatalf("got %#v, want [42]", got)
	}
}

func TestNestedScenario(t *testing.T) {
	defer goleak.VerifyNone(t)

	a, b := newPair()
	defer a.Destroy(nil)
	defer b.Destroy(nil)

	type mathAPI struct {
		Add RemoteFunc
	}
	type provider struct {
		Math mathAPI
	}
	b.SetProvider(&provider{Math: mathAPI{Add: func(ctx context.Context, args []any) (any, error) {
		sum := 0
		for _, a := range args {
			sum += a.(int)
		}
		return sum, nil
	}}})

	got, err := a.Driver().Path("Math", "Add").Invoke(context.Background(), 2, 3)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != 5 {
		t.Fatalf("got %v, want 5", got)
	}
}

func TestRemoteExceptionScenario(t *testing.T) {
	defer goleak.VerifyNone(t)

	a, b := newPair()
	defer a.Destroy(nil)
	defer b.Destroy(nil)

	type provider struct {
		Boom RemoteFunc
	}
	b.SetProvider(&provider{Boom: func(ctx context.Context, args []any) (any, error) {
		return nil, errors.New("nope")
	}})

	_, err := a.Driver().Call(context.Background(), "Boom")
	if err == nil {
		t.Fatal("expected error")
	}
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("got %T, want *RemoteError", err)
	}
	rec, ok := remote.Value.(map[string]any)
	if !ok {
		t.Fatalf("value is %#v, want a record", remote.Value)
	}
	if rec["message"] != "nope" || rec["name"] != "Error" {
		t.Fatalf("got %#v", rec)
	}
}

func TestAccessViolationScenario(t *testing.T) {
	defer goleak.VerifyNone(t)

	a, b := newPair()
	defer a.Destroy(nil)
	defer b.Destroy(nil)

	type provider struct {
		// Unexported-by-convention "private" member; the access filter
		// must reject it before ever touching the provider.
		Secret_ RemoteFunc
	}
	b.SetProvider(&provider{Secret_: func(ctx context.Context, args []any) (any, error) {
		return 1, nil
	}})

	_, err := a.Driver().Call(context.Background(), "Secret_")
	if err == nil {
		t.Fatal("expected error")
	}
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("got %T, want *RemoteError", err)
	}
	rec := remote.Value.(map[string]any)
	if !strings.Contains(rec["message"].(string), "underscore") {
		t.Fatalf("message %q does not mention the forbidden underscore", rec["message"])
	}
}

// The pending call rejects and a concurrent Join wakes on disconnect.
func TestDisconnectScenario(t *testing.T) {
	defer goleak.VerifyNone(t)

	a, b := newPair()
	defer b.Destroy(nil)

	type provider struct {
		Slow RemoteFunc
	}
	never := make(chan struct{})
	b.SetProvider(&provider{Slow: func(ctx context.Context, args []any) (any, error) {
		<-never
		return nil, nil
	}})

	callErr := make(chan error, 1)
	go func() {
		_, err := a.Driver().Call(context.Background(), "Slow")
		callErr <- err
	}()

	joined := make(chan struct{})
	go func() {
		a.Join()
		close(joined)
	}()

	// Give the call a moment to register before tearing down.
	time.Sleep(20 * time.Millisecond)
	a.Destroy(errors.New("bye"))

	select {
	case err := <-callErr:
		if err == nil || err.Error() != "bye" {
			t.Fatalf("got %v, want \"bye\"", err)
		}
	case <-time.After(time.Second):
		t.Fatal("call never rejected")
	}

	select {
	case <-joined:
	case <-time.After(time.Second):
		t.Fatal("join never woke")
	}
	close(never)
}

func TestNotReadyScenario(t *testing.T) {
	defer goleak.VerifyNone(t)

	conn := NewConnector("TestConnector", &loopback{peer: func() *Communicator { return nil }}, nil)
	_, err := conn.Driver().Call(context.Background(), "any")
	if err == nil {
		t.Fatal("expected error")
	}
	var nr *NotReadyError
	if !errors.As(err, &nr) {
		t.Fatalf("got %T, want *NotReadyError", err)
	}
	if !strings.Contains(err.Error(), "connect first.") || !strings.Contains(err.Error(), "TestConnector") {
		t.Fatalf("got %q", err.Error())
	}
}

// Invariant: uid uniqueness among outstanding calls, and exactly-once
// settlement, exercised under concurrency.
func TestConcurrentCallsUniqueUIDsAndSettleOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	a, b := newPair()
	defer a.Destroy(nil)
	defer b.Destroy(nil)

	type provider struct {
		Echo RemoteFunc
	}
	b.SetProvider(&provider{Echo: echoFn})

	const n = 200
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := a.Driver().Call(context.Background(), "Echo", i)
			if err != nil {
				errs <- err
				return
			}
			args := got.([]any)
			if args[0] != i {
				errs <- errTestMismatch
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("unexpected: %v", err)
	}
}

var errTestMismatch = errors.New("round-trip value mismatch")

// Path chaining: driver.p1.p2...pn(args) reaches the same function local
// access along the same chain would.
func TestPathChaining(t *testing.T) {
	defer goleak.VerifyNone(t)

	a, b := newPair()
	defer a.Destroy(nil)
	defer b.Destroy(nil)

	type leaf struct {
		C RemoteFunc
	}
	type mid struct {
		B leaf
	}
	type provider struct {
		A mid
	}
	called := false
	prov := &provider{A: mid{B: leaf{C: func(ctx context.Context, args []any) (any, error) {
		called = true
		return "reached", nil
	}}}}
	b.SetProvider(prov)

	got, err := a.Driver().Path("A", "B", "C").Invoke(context.Background())
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != "reached" || !called {
		t.Fatalf("path chaining did not reach the leaf function: got=%v called=%v", got, called)
	}
}

// Join wake for timed joins: a WaitFor not yet timed out resolves true on
// destruction.
func TestTimedJoinWakesOnDestroy(t *testing.T) {
	defer goleak.VerifyNone(t)

	a, b := newPair()
	defer b.Destroy(nil)

	woke := make(chan bool, 1)
	go func() {
		ok, _ := a.JoinFor(5 * time.Second)
		woke <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	a.Destroy(nil)

	select {
	case ok := <-woke:
		if !ok {
			t.Fatal("expected timed join to report woken, got timed out")
		}
	case <-time.After(time.Second):
		t.Fatal("timed join never returned")
	}
}

// A timed join that genuinely times out before destruction reports false.
func TestTimedJoinTimesOut(t *testing.T) {
	defer goleak.VerifyNone(t)

	a, b := newPair()
	defer a.Destroy(nil)
	defer b.Destroy(nil)

	ok, err := a.JoinFor(30 * time.Millisecond)
	if err != nil {
		t.Fatalf("JoinFor: %v", err)
	}
	if ok {
		t.Fatal("expected timeout, got woken")
	}
}

func TestEncodeDecodeInvokeRoundTrip(t *testing.T) {
	fn := Invoke{Function: &Function{UID: 7, Listener: "a.b", Parameters: NewParameters(1, "x", true)}}
	data, err := EncodeInvoke(fn)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), `"listener"`) == false {
		t.Fatal("function envelope must carry listener")
	}
	got, err := DecodeInvoke(data)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsFunction() || got.Function.Listener != "a.b" || got.Function.UID != 7 {
		t.Fatalf("got %#v", got)
	}

	ret := Invoke{Return: &Return{UID: 7, Success: true, Value: 42.0}}
	data, err = EncodeInvoke(ret)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), `"listener"`) {
		t.Fatal("return envelope must not carry listener")
	}
	got, err = DecodeInvoke(data)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsReturn() || got.Return.UID != 7 || got.Return.Value != 42.0 {
		t.Fatalf("got %#v", got)
	}
}

// Extend grows a dotted chain incrementally, and Bind pre-applies
// arguments to a reusable handle — the Go analogues of accessing a
// further attribute on a materialized driver node and of
// Function.prototype.bind, per §4.5.
func TestCallExtendAndBind(t *testing.T) {
	defer goleak.VerifyNone(t)

	a, b := newPair()
	defer a.Destroy(nil)
	defer b.Destroy(nil)

	type leaf struct {
		C RemoteFunc
	}
	type mid struct {
		B leaf
	}
	type provider struct {
		A mid
	}
	b.SetProvider(&provider{A: mid{B: leaf{C: echoFn}}})

	call := a.Driver().Path("A").Extend("B").Extend("C")
	if call.Path() != "A.B.C" {
		t.Fatalf("got path %q, want A.B.C", call.Path())
	}

	bound := call.Bind(7)
	got, err := bound(context.Background())
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	args := got.([]any)
	if len(args) != 1 || args[0] != 7 {
		t.Fatalf("got %#v, want [7]", got)
	}
}

func TestBatchCall(t *testing.T) {
	defer goleak.VerifyNone(t)

	a, b := newPair()
	defer a.Destroy(nil)
	defer b.Destroy(nil)

	type provider struct {
		Echo RemoteFunc
	}
	b.SetProvider(&provider{Echo: echoFn})

	results := BatchCall(context.Background(), a.Driver(), []BatchRequest{
		{Path: "Echo", Args: []any{1}},
		{Path: "Echo", Args: []any{2}},
		{Path: "Missing"},
	})
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].Err != nil || results[1].Err != nil {
		t.Fatalf("unexpected errors: %v %v", results[0].Err, results[1].Err)
	}
	if results[2].Err == nil {
		t.Fatal("expected the unresolved path to fail")
	}
}
