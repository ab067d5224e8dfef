package sia

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/caarlos0/sync/cio"
	logp "github.com/charmbracelet/log"
	"github.com/j-keck/arping"
)

var log = logp.NewWithOptions(os.Stderr, logp.Options{
	ReportTimestamp: true,
	TimeFormat:      time.Kitchen,
	Prefix:          "sia",
})

// SetLogLevel changes the level of this package's logger.
func SetLogLevel(level logp.Level) {
	log.SetLevel(level)
}

const maxLineSize = 4096

// EventHandler is what a Receiver feeds events into, usually a *Registry.
type EventHandler interface {
	ApplyEvent(id ZoneID, on bool) (ZoneChange, error)
	Ping(id ZoneID) (ZoneChange, error)
}

// Receiver accepts newline delimited JSON events over TCP and answers each
// line with ACK or NAK.
type Receiver struct {
	handler EventHandler
	idle    time.Duration

	// OnEvent, if set, is called after every line is handled.
	OnEvent func(evt Event, change ZoneChange, err error)

	lock  sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// NewReceiver creates a Receiver. Connections that stay silent for longer
// than idle are closed.
func NewReceiver(handler EventHandler, idle time.Duration) *Receiver {
	return &Receiver{
		handler: handler,
		idle:    idle,
		conns:   map[net.Conn]struct{}{},
	}
}

func (r *Receiver) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("could not listen: %w", err)
	}
	return r.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done.
func (r *Receiver) Serve(ctx context.Context, ln net.Listener) error {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		_ = ln.Close()
		r.closeAll()
	}()

	log.Info("receiving events", "addr", ln.Addr().String())
	defer r.wg.Wait()
	defer close(done)
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Error("could not accept connection", "err", err)
			continue
		}
		if !r.track(conn) {
			_ = conn.Close()
			return nil
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			defer r.untrack(conn)
			r.serveConn(conn)
		}()
	}
}

func (r *Receiver) serveConn(conn net.Conn) {
	remote := conn.RemoteAddr().String()
	log.Debug("panel connected", "remote", remote)
	defer log.Debug("panel disconnected", "remote", remote)

	var src io.Reader = conn
	if r.idle > 0 {
		src = cio.TimeoutReader(conn, r.idle)
	}
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 512), maxLineSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		reply := ack()
		if _, err := r.Handle(line); err != nil {
			log.Warn("rejected event", "remote", remote, "err", err)
			reply = nak(err)
		}
		if _, err := conn.Write(reply); err != nil {
			log.Error("could not reply", "remote", remote, "err", err)
			return
		}
	}
	err := scanner.Err()
	switch {
	case errors.Is(err, bufio.ErrTooLong):
		log.Warn("rejected event", "remote", remote, "err", ErrLineTooLong)
		r.emit(Event{}, ZoneChange{}, ErrLineTooLong)
		if _, err := conn.Write(nak(ErrLineTooLong)); err != nil {
			log.Error("could not reply", "remote", remote, "err", err)
		}
	case err != nil && !errors.Is(err, net.ErrClosed):
		log.Debug("connection closed", "remote", remote, "err", err)
	}
}

// Handle parses a single event line and applies it.
func (r *Receiver) Handle(line []byte) (ZoneChange, error) {
	evt, err := parseEvent(line)
	if err != nil {
		r.emit(evt, ZoneChange{}, err)
		return ZoneChange{}, err
	}

	var change ZoneChange
	if evt.IsPing() {
		change, err = r.handler.Ping(evt.ZoneID())
	} else {
		change, err = r.handler.ApplyEvent(evt.ZoneID(), *evt.On)
	}
	r.emit(evt, change, err)
	return change, err
}

func (r *Receiver) emit(evt Event, change ZoneChange, err error) {
	if r.OnEvent != nil {
		r.OnEvent(evt, change, err)
	}
}

func (r *Receiver) track(conn net.Conn) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.conns == nil {
		return false
	}
	r.conns[conn] = struct{}{}
	return true
}

func (r *Receiver) untrack(conn net.Conn) {
	r.lock.Lock()
	defer r.lock.Unlock()
	_ = conn.Close()
	delete(r.conns, conn)
}

func (r *Receiver) closeAll() {
	r.lock.Lock()
	defer r.lock.Unlock()
	for conn := range r.conns {
		_ = conn.Close()
	}
	r.conns = nil
}

// MacAddress resolves the hardware address of the panel at ip.
func MacAddress(ip string) (string, error) {
	hw, _, err := arping.Ping(net.ParseIP(ip))
	if err != nil {
		return "", fmt.Errorf("could not get the mac address: %w", err)
	}
	return hw.String(), nil
}
