package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/fornellas/slogxt/log"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/fornellas/grblbridge/bridge"
	"github.com/fornellas/grblbridge/gesture"
	"github.com/fornellas/grblbridge/worker_manager"
)

type TuiOptions struct {
	AppLogger *slog.Logger
	Gesture   gesture.Options
}

type Tui struct {
	conn    *bridge.Conn
	options *TuiOptions
}

func NewTui(conn *bridge.Conn, options *TuiOptions) *Tui {
	if options == nil {
		options = &TuiOptions{Gesture: gesture.DefaultOptions}
	}
	return &Tui{
		conn:    conn,
		options: options,
	}
}

func gestureWorker(ctx context.Context, debouncer *gesture.Debouncer, now func() time.Time) error {
	logger := log.MustLogger(ctx)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := debouncer.Tick(ctx, now()); err != nil {
				logger.Error("Jog failed", "err", err)
			}
		}
	}
}

func (t *Tui) connWorker(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.conn.Done():
		return errors.New("connection lost")
	}
}

//gocyclo:ignore
func (t *Tui) Run(ctx context.Context) (err error) {
	// Application
	app := tview.NewApplication()
	app.EnableMouse(true)

	// Context & Logging
	consoleCtx, consoleLogger := log.MustWithGroup(ctx, "Control")
	logsPrimitive := NewLogsPrimitive(app)
	appHandler := NewLevelFromHandler(
		log.NewTerminalTreeHandler(
			tview.ANSIWriter(logsPrimitive),
			&log.TerminalHandlerOptions{
				// tview.TextView does not handle emojis correctly: drawing is corrupted.
				DisableGroupEmoji: true,
				ForceColor:        true,
			},
		),
		consoleLogger.Handler(),
	)
	appHandlers := []slog.Handler{
		appHandler,
	}
	if t.options.AppLogger != nil {
		appHandlers = append(appHandlers, t.options.AppLogger.Handler())
	}
	appLogger := slog.New(log.NewMultiHandler(appHandlers...))
	appCtx := log.WithLogger(consoleCtx, appLogger)

	// Grbl
	if err := t.conn.Connect(appCtx); err != nil {
		return err
	}
	grblBridge := t.conn.Bridge()

	// Keyboards only report presses, with key repeat while held.
	gestureOptions := t.options.Gesture
	gestureOptions.InferRelease = true
	debouncer := gesture.NewDebouncer(grblBridge, gestureOptions)

	// WorkerManager
	workerManager := worker_manager.NewWorkerManager()

	subscriberChSize := 50

	statePrimitive := NewStatePrimitive(app)
	snapshotCh := grblBridge.Snapshots.Subscribe("StatePrimitive", subscriberChSize)
	defer grblBridge.Snapshots.Unsubscribe("StatePrimitive")
	workerManager.AddWorker("StatePrimitive", func(ctx context.Context) error {
		return statePrimitive.Worker(ctx, grblBridge.CurrentState(), snapshotCh)
	})

	workerManager.AddWorker("Gesture", func(ctx context.Context) error {
		return gestureWorker(ctx, debouncer, grblBridge.Now)
	})

	workerManager.AddWorker("Conn", t.connWorker)

	commandPrimitive := NewCommandPrimitive(appCtx, grblBridge)

	helpTextView := tview.NewTextView()
	helpTextView.SetText(KeysHelp)

	mainFlex := tview.NewFlex()
	mainFlex.SetDirection(tview.FlexColumn)
	mainFlex.AddItem(statePrimitive, 36, 0, false)
	mainFlex.AddItem(logsPrimitive, 0, 1, false)

	rootFlex := tview.NewFlex()
	rootFlex.SetDirection(tview.FlexRow)
	rootFlex.AddItem(mainFlex, 0, 1, false)
	rootFlex.AddItem(commandPrimitive, 3, 0, true)
	rootFlex.AddItem(helpTextView, 1, 0, false)
	app.SetRoot(rootFlex, true)
	app.SetFocus(commandPrimitive)

	// Start
	workerManager.Start(appCtx)

	// App Input
	keyHandler := NewKeyHandler(grblBridge, debouncer, grblBridge.Now)
	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyCtrlC {
			appLogger.Info("Exiting")
			workerManager.Cancel(appCtx)
			return nil
		}
		if keyHandler.Handle(appCtx, event) {
			return nil
		}
		return event
	})

	// Exit
	var exitMu sync.Mutex
	exitMu.Lock()
	go func() {
		logger := log.MustLogger(appCtx)
		<-workerManager.Done()
		err = errors.Join(err, worker_manager.Err(workerManager.Wait(appCtx)))
		logger.Info("Disconnecting")
		if disconnectErr := t.conn.Disconnect(appCtx); disconnectErr != nil {
			err = errors.Join(err, fmt.Errorf("disconnect failed: %w", disconnectErr))
		}
		logger.Info("Stopping App")
		app.Stop()
		exitMu.Unlock()
	}()
	defer func() { exitMu.Lock() }()
	defer func() {
		logger := log.MustLogger(appCtx)

		if r := recover(); r != nil {
			logger.Debug("Panic", "recovered", r, "stack", string(debug.Stack()))
		}

		// Pending QueueUpdateDraw calls block forever once the app stops: keep it spinning on a
		// simulated screen until workers are done.
		app.SetScreen(tcell.NewSimulationScreen("UTF-8"))
		go func() {
			logger.Debug("Restarting app with simulated screen to support workers shutdown")
			logger.Debug("Simulated screen app returned", "err", app.Run())
			appHandler.Stop()
		}()

		logger.Info("Stopping all workers")
		workerManager.Cancel(appCtx)
	}()

	if runErr := app.Run(); runErr != nil {
		consoleLogger.Error("Application failed", "err", runErr)
		err = errors.Join(err, runErr)
	}
	return
}
