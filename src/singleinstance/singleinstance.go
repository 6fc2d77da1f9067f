// Package singleinstance keeps one resident screen-watch per user session.
//
// The first instance binds a loopback TCP port and answers PING with PONG.
// Later instances find the port taken, confirm a resident answers, and exit.
package singleinstance

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"
)

const (
	residentHost = "127.0.0.1"
	pingRequest  = "PING\n"
	pongResponse = "PONG\n"
)

var ErrAlreadyRunning = errors.New("another instance is already running")

// Guard holds the resident port until Close.
type Guard struct {
	lis  net.Listener
	port int

	closeOnce sync.Once
	done      chan struct{}
}

// Acquire claims the first port of the configured range. When the port is
// held by a live instance it returns ErrAlreadyRunning; any other bind
// failure is returned as is.
func Acquire(ctx context.Context) (*Guard, error) {
	start, _ := getPortRange()
	addr := net.JoinHostPort(residentHost, strconv.Itoa(start))
	var lc net.ListenConfig
	lis, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		if ping(addr, 300*time.Millisecond) {
			return nil, fmt.Errorf("%w (port %d)", ErrAlreadyRunning, start)
		}
		log.Printf("singleinstance: failed to bind %s: %v", addr, err)
		return nil, err
	}
	g := &Guard{lis: lis, port: start, done: make(chan struct{})}
	log.Printf("singleinstance: listening on %s", addr)
	go g.acceptLoop()
	return g, nil
}

// Port returns the bound port.
func (g *Guard) Port() int { return g.port }

func (g *Guard) Close() error {
	var err error
	g.closeOnce.Do(func() {
		close(g.done)
		err = g.lis.Close()
	})
	return err
}

func (g *Guard) acceptLoop() {
	for {
		c, err := g.lis.Accept()
		if err != nil {
			select {
			case <-g.done:
			default:
				log.Printf("singleinstance: accept failed: %v", err)
			}
			return
		}
		go serve(c)
	}
}

func serve(c net.Conn) {
	defer c.Close()
	_ = c.SetDeadline(time.Now().Add(3 * time.Second))
	line, err := bufio.NewReader(c).ReadString('\n')
	if err != nil || line != pingRequest {
		log.Printf("singleinstance: ignoring request %q from %s", line, c.RemoteAddr())
		return
	}
	_, _ = c.Write([]byte(pongResponse))
}
