package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fornellas/slogxt/log"
	"go.bug.st/serial"

	"github.com/fornellas/grblbridge/transport"
	"github.com/fornellas/grblbridge/worker_manager"
)

type ConnOptions struct {
	BaudRate int
	// Read timeout of the port, which bounds how long it takes to cancel the reader.
	ReadTimeout  time.Duration
	TickInterval time.Duration
	// Send $X after connecting.
	UnlockOnConnect bool
}

var DefaultConnOptions = ConnOptions{
	BaudRate:     transport.DefaultBaudRate,
	ReadTimeout:  100 * time.Millisecond,
	TickInterval: 50 * time.Millisecond,
}

// Conn drives a Bridge over a port: a reader worker feeds it received bytes and a ticker worker
// calls Tick.
type Conn struct {
	mu            sync.Mutex
	bridge        *Bridge
	openPortFn    transport.OpenPortFn
	options       ConnOptions
	port          serial.Port
	workerManager *worker_manager.WorkerManager
}

func NewConn(bridge *Bridge, openPortFn transport.OpenPortFn, options ConnOptions) *Conn {
	if options.TickInterval <= 0 {
		options.TickInterval = DefaultConnOptions.TickInterval
	}
	if options.ReadTimeout <= 0 {
		options.ReadTimeout = DefaultConnOptions.ReadTimeout
	}
	if options.BaudRate <= 0 {
		options.BaudRate = DefaultConnOptions.BaudRate
	}
	return &Conn{
		bridge:     bridge,
		openPortFn: openPortFn,
		options:    options,
	}
}

func (c *Conn) Bridge() *Bridge {
	return c.bridge
}

func (c *Conn) readerWorker(ctx context.Context) error {
	logger := log.MustLogger(ctx)
	buf := make([]byte, 256)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := c.port.Read(buf)
		if n > 0 {
			c.bridge.OnBytesReceived(ctx, buf[:n])
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("Read failed", "err", err)
			err = fmt.Errorf("read error: %w", err)
			c.bridge.disconnect(ctx, err.Error())
			return err
		}
	}
}

func (c *Conn) tickerWorker(ctx context.Context) error {
	ticker := time.NewTicker(c.options.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.bridge.Tick(ctx, c.bridge.Now()); err != nil {
				c.bridge.disconnect(ctx, err.Error())
				return err
			}
		}
	}
}

// Connect opens the port and starts the workers. Disconnect must be called when the connection
// isn't needed anymore, or when Done is closed.
//
//gocyclo:ignore
func (c *Conn) Connect(ctx context.Context) error {
	ctx, logger := log.MustWithGroup(ctx, "Conn")

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.port != nil {
		return errors.New("already connected")
	}

	port, err := c.openPortFn(ctx, transport.NewMode(c.options.BaudRate))
	if err != nil {
		return fmt.Errorf("port open error: %w", err)
	}

	// we need to set this to allow polling reads to support context cancellation
	if err := port.SetReadTimeout(c.options.ReadTimeout); err != nil {
		closeErr := port.Close()
		if closeErr != nil {
			closeErr = fmt.Errorf("port close error: %w", closeErr)
		}
		return errors.Join(fmt.Errorf("error setting read timeout: %w", err), closeErr)
	}
	c.port = port

	c.bridge.Attach(ctx, port)

	c.workerManager = worker_manager.NewWorkerManager()
	c.workerManager.AddWorker("Reader", c.readerWorker)
	c.workerManager.AddWorker("Ticker", c.tickerWorker)
	workerManager := c.workerManager
	c.bridge.SetOnWriteFailure(func(error) {
		workerManager.Cancel(ctx)
	})
	c.workerManager.Start(ctx)
	logger.Info("Connected")

	if c.options.UnlockOnConnect {
		if err := c.bridge.Unlock(ctx); err != nil {
			return errors.Join(err, c.disconnectLocked(ctx))
		}
	}
	if err := c.bridge.RequestStatus(ctx); err != nil {
		return errors.Join(err, c.disconnectLocked(ctx))
	}

	return nil
}

// Done is closed when the workers stop, either due to Disconnect or due to a transport error.
func (c *Conn) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.workerManager == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.workerManager.Done()
}

func (c *Conn) disconnectLocked(ctx context.Context) error {
	logger := log.MustLogger(ctx)
	if c.port == nil {
		return nil
	}
	c.workerManager.Cancel(ctx)
	err := worker_manager.Err(c.workerManager.Wait(ctx))
	if closeErr := c.port.Close(); closeErr != nil {
		err = errors.Join(err, fmt.Errorf("port close error: %w", closeErr))
	}
	c.port = nil
	c.workerManager = nil
	c.bridge.OnDisconnect(ctx)
	logger.Info("Disconnected")
	return err
}

// Disconnect stops all workers and closes the port. It returns any error that caused the workers
// to stop.
func (c *Conn) Disconnect(ctx context.Context) error {
	ctx, _ = log.MustWithGroup(ctx, "Conn")
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnectLocked(ctx)
}
