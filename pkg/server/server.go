// Package server hosts the command dispatcher behind a telnet-style line
// listener, an optional stdin console and an optional HTTP/WebSocket API.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/crystal-mush/profstats/pkg/command"
)

// Server is the TCP line server.
type Server struct {
	Conf       *Conf
	Dispatcher *command.Dispatcher
	Accounts   Accounts
	Metrics    *Metrics
	Conns      *ConnManager

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer creates a server. m may be nil.
func NewServer(conf *Conf, d *command.Dispatcher, accounts Accounts, m *Metrics) *Server {
	return &Server{
		Conf:       conf,
		Dispatcher: d,
		Accounts:   accounts,
		Metrics:    m,
		Conns:      NewConnManager(),
	}
}

// Listen opens the TCP listener on addr (":6260" style).
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("cleartext listener: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	log.Printf("Listening (cleartext) on %s", ln.Addr())
	return nil
}

// Addr returns the listener address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until the listener is closed or ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("server: Serve called before Listen")
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Printf("Accept error: %v", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}
}

// Stop closes the listener and every client, then waits for the
// connection goroutines to finish.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Unlock()
	s.Conns.CloseAll()
	s.wg.Wait()
}

// handleConnection manages a single client connection lifecycle.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	d := NewDescriptor(s.Conns.NextID(), conn, s.Accounts)
	d.Retries = s.Conf.MaxRetries
	s.Conns.Add(d)
	log.Printf("[%d] New connection from %s", d.ID, d.Addr)

	defer func() {
		if d.Connected() && s.Metrics != nil {
			s.Metrics.SessionClosed(TransportTCP)
		}
		s.Conns.Remove(d)
		d.Close()
		log.Printf("[%d] Connection closed from %s", d.ID, d.Addr)
	}()

	d.SendNoNewline(s.Conf.WelcomeText)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 8192), 8192)
	for {
		if s.Conf.IdleTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(time.Duration(s.Conf.IdleTimeout) * time.Second))
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil && !d.IsClosed() {
				var ne net.Error
				if errors.As(err, &ne) && ne.Timeout() {
					d.Send("Idle timeout. Goodbye!")
				} else {
					log.Printf("[%d] read error: %v", d.ID, err)
				}
			}
			return
		}
		line := strings.TrimRight(scanner.Text(), "\r\n")
		d.Touch()

		if strings.EqualFold(strings.TrimSpace(line), "QUIT") {
			d.Send("Goodbye!")
			return
		}
		if !d.Connected() {
			s.handleLoginCommand(d, line)
		} else {
			d.CountCommand()
			log.Printf("[%d] CMD player=%s input=%q", d.ID, d.Name(), line)
			s.Dispatcher.DispatchLine(ctx, d, line)
		}
		if d.IsClosed() {
			return
		}
	}
}

// handleLoginCommand processes pre-login input.
func (s *Server) handleLoginCommand(d *Descriptor, input string) {
	if strings.TrimSpace(input) == "" {
		return
	}
	cmd, user, password := ParseConnect(input)
	if !strings.HasPrefix(cmd, "co") {
		d.Send("Commands: connect <name> <password>, QUIT")
		return
	}
	if user == "" {
		d.Send("Usage: connect <name> <password>")
		return
	}
	if !s.Accounts.Check(user, password) {
		log.Printf("[%d] Failed login for %q from %s", d.ID, user, d.Addr)
		d.Send(msgBadLogin)
		d.Retries--
		if d.Retries <= 0 {
			d.Send("Too many failed attempts. Disconnecting.")
			d.Close()
		}
		return
	}
	d.Login(user)
	if s.Metrics != nil {
		s.Metrics.SessionOpened(TransportTCP)
	}
	log.Printf("[%d] %s connected from %s", d.ID, user, d.Addr)
	d.Send(fmt.Sprintf("Welcome, %s.", user))
}
