package broker

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/solovex/gridtrader/internal/domain"
	"github.com/solovex/gridtrader/internal/errs"
)

// orderJob is one queued PlaceOrder or CancelOrder request.
type orderJob struct {
	place  *placeRequest
	cancel *cancelRequest
}

type placeRequest struct {
	symbol    string
	side      domain.Side
	qty       int
	price     domain.Money
	priceType domain.PriceType
	reply     chan placeResult
}

type placeResult struct {
	orderID string
	err     error
}

type cancelRequest struct {
	orderID string
	reply   chan error
}

// Dispatcher is the single order-dispatch worker of spec §5: one goroutine
// serializes every call into the broker SDK (assumed non-thread-safe),
// rate-limited so concurrent grid sessions never hammer it, with bounded
// retry on transient failures. Results land on an unbounded callback
// queue, drained by callbackWorkers goroutines, never on the dispatch
// goroutine itself.
type Dispatcher struct {
	client      domain.BrokerClient
	limiter     *rate.Limiter
	jobs        chan orderJob
	callbacks   chan func()
	maxRetries  int
	baseDelay   time.Duration
	maxDelay    time.Duration
	log         zerolog.Logger
	callback    domain.OrderCallback
	stop        chan struct{}
	wg          sync.WaitGroup
}

// NewDispatcher builds a Dispatcher with a token-bucket rate limit of
// ratePerSec orders/second and the given burst capacity.
func NewDispatcher(client domain.BrokerClient, callback domain.OrderCallback, ratePerSec float64, burst int, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		client:     client,
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), burst),
		jobs:       make(chan orderJob, 256),
		callbacks:  make(chan func(), 1024),
		maxRetries: 3,
		baseDelay:  500 * time.Millisecond,
		maxDelay:   10 * time.Second,
		log:        log.With().Str("component", "order_dispatcher").Logger(),
		callback:   callback,
		stop:       make(chan struct{}),
	}
}

// Start launches the dispatch worker and callbackWorkers callback drainers.
func (d *Dispatcher) Start(callbackWorkers int) {
	d.wg.Add(1)
	go d.runDispatch()
	for i := 0; i < callbackWorkers; i++ {
		d.wg.Add(1)
		go d.runCallbacks()
	}
}

// Stop drains in-flight work and shuts both loops down.
func (d *Dispatcher) Stop() {
	close(d.stop)
	d.wg.Wait()
}

// PlaceOrder enqueues an order and blocks until the dispatch worker has
// submitted it (including retries), returning the broker order ID.
func (d *Dispatcher) PlaceOrder(ctx context.Context, symbol string, side domain.Side, qty int, price domain.Money, priceType domain.PriceType) (string, error) {
	reply := make(chan placeResult, 1)
	job := orderJob{place: &placeRequest{symbol: symbol, side: side, qty: qty, price: price, priceType: priceType, reply: reply}}

	select {
	case d.jobs <- job:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	select {
	case res := <-reply:
		return res.orderID, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// CancelOrder enqueues a cancellation, same queueing discipline as PlaceOrder.
func (d *Dispatcher) CancelOrder(ctx context.Context, orderID string) error {
	reply := make(chan error, 1)
	job := orderJob{cancel: &cancelRequest{orderID: orderID, reply: reply}}

	select {
	case d.jobs <- job:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) runDispatch() {
	defer d.wg.Done()
	for {
		select {
		case <-d.stop:
			return
		case job := <-d.jobs:
			d.handle(job)
		}
	}
}

func (d *Dispatcher) handle(job orderJob) {
	ctx := context.Background()
	if err := d.limiter.Wait(ctx); err != nil {
		d.fail(job, err)
		return
	}

	switch {
	case job.place != nil:
		d.dispatchPlace(ctx, job.place, 0)
	case job.cancel != nil:
		d.dispatchCancel(ctx, job.cancel, 0)
	}
}

func (d *Dispatcher) dispatchPlace(ctx context.Context, req *placeRequest, attempt int) {
	orderID, err := d.client.PlaceOrder(ctx, req.symbol, req.side, req.qty, req.price, req.priceType)
	if err == nil {
		req.reply <- placeResult{orderID: orderID}
		d.enqueueCallback(func() {
			d.callback.OnOrder(domain.OrderUpdate{OrderID: orderID, Status: domain.OrderSubmitted})
		})
		return
	}

	d.log.Warn().Err(err).Str("symbol", req.symbol).Str("side", string(req.side)).Int("attempt", attempt).Msg("place order failed")

	if errs.KindOf(err) != errs.KindTransient || attempt >= d.maxRetries {
		req.reply <- placeResult{err: err}
		d.enqueueCallback(func() { d.callback.OnError(fmt.Errorf("place order %s %s: %w", req.symbol, req.side, err)) })
		return
	}

	delay := d.retryDelay(attempt)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		req.reply <- placeResult{err: ctx.Err()}
	case <-timer.C:
		if werr := d.limiter.Wait(ctx); werr != nil {
			req.reply <- placeResult{err: werr}
			return
		}
		d.dispatchPlace(ctx, req, attempt+1)
	}
}

func (d *Dispatcher) dispatchCancel(ctx context.Context, req *cancelRequest, attempt int) {
	err := d.client.CancelOrder(ctx, req.orderID)
	if err == nil {
		req.reply <- nil
		d.enqueueCallback(func() {
			d.callback.OnOrder(domain.OrderUpdate{OrderID: req.orderID, Status: domain.OrderCancelled})
		})
		return
	}

	if errs.KindOf(err) != errs.KindTransient || attempt >= d.maxRetries {
		req.reply <- err
		d.enqueueCallback(func() { d.callback.OnError(fmt.Errorf("cancel order %s: %w", req.orderID, err)) })
		return
	}

	delay := d.retryDelay(attempt)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		req.reply <- ctx.Err()
	case <-timer.C:
		d.dispatchCancel(ctx, req, attempt+1)
	}
}

func (d *Dispatcher) fail(job orderJob, err error) {
	if job.place != nil {
		job.place.reply <- placeResult{err: err}
	}
	if job.cancel != nil {
		job.cancel.reply <- err
	}
}

// retryDelay is exponential backoff with +/-10% jitter, capped at maxDelay.
func (d *Dispatcher) retryDelay(attempt int) time.Duration {
	delay := float64(d.baseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(d.maxDelay) {
		delay = float64(d.maxDelay)
	}
	jitter := (rand.Float64()*0.2 - 0.1) * delay
	return time.Duration(delay + jitter)
}

// enqueueCallback never blocks the dispatch goroutine and never drops fn:
// when the buffered channel is full, a goroutine holds fn until a drainer
// takes it or the dispatcher stops.
func (d *Dispatcher) enqueueCallback(fn func()) {
	select {
	case d.callbacks <- fn:
	default:
		go func() {
			select {
			case d.callbacks <- fn:
			case <-d.stop:
			}
		}()
	}
}

func (d *Dispatcher) runCallbacks() {
	defer d.wg.Done()
	for {
		select {
		case <-d.stop:
			return
		case fn := <-d.callbacks:
			d.safeRun(fn)
		}
	}
}

// safeRun isolates one misbehaving callback from the drain loop: a panic
// in a handler must not take down callback delivery for every session.
func (d *Dispatcher) safeRun(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Interface("panic", r).Msg("recovered panic in order callback")
		}
	}()
	fn()
}
