// Package limitimer implements the protocol engine for Limitimer presentation
// timers.
//
// The device speaks single-line ASCII tokens terminated by a carriage return.
// This package turns the inbound token stream into a typed state snapshot and
// encodes user actions into outbound tokens.
//
// # Data Flow
//
//	transport ──► Queue ──► Decoder ──► State (Observable fields) ──► subscribers
//	                ▲                                                   │
//	             Monitor (status, online, resync)                        ▼
//	                                                         bridges, API, history
//
// All state mutations and change notifications run on the queue's single
// worker goroutine, in arrival order. Field reads are safe from any goroutine
// but each field is read independently: a Snapshot taken while the worker is
// applying a token may mix values from before and after that token.
//
// # Feedback Model
//
// Every stored field is edge-triggered: subscribers are notified only when a
// decoded value differs from the stored one. The BEEP token is a pulse and is
// never stored or compared. When the connection monitor moves into the online
// state, every field is republished so late observers get a full picture.
//
// # Usage
//
//	dev, err := limitimer.New(limitimer.Options{
//	    Key:    "stage-timer",
//	    Config: limitimer.Config{PollInterval: 5 * time.Second, WarningTimeout: 30 * time.Second, ErrorTimeout: 60 * time.Second},
//	    Source: client,
//	    Logger: log,
//	})
//	if err != nil {
//	    return err
//	}
//	dev.Subscribe(func(c limitimer.Change) { fmt.Println(c.Field, c.Value) })
//	if err := dev.Start(ctx); err != nil {
//	    return err
//	}
//	defer dev.Stop(context.Background())
//
//	err = dev.SendAction(ctx, limitimer.ActionStartStop)
package limitimer
