package server

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/downfa11-org/journal/pkg/config"
	"github.com/downfa11-org/journal/pkg/controller"
	"github.com/downfa11-org/journal/util"
)

const (
	maxWorkers     = 64
	maxCommandSize = 16 << 20
	idleTimeout    = 5 * time.Minute
)

// RunServer serves journal commands on cfg.ServerPort until the listener fails.
func RunServer(cfg *config.Config, ch *controller.CommandHandler) error {
	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	util.Info("🧩 Journal %s listening on %s", cfg.JournalName, addr)
	return Serve(ln, ch)
}

// Serve accepts connections from ln and hands them to a fixed worker pool.
// It returns when ln is closed.
func Serve(ln net.Listener, ch *controller.CommandHandler) error {
	workerCh := make(chan net.Conn, maxWorkers)
	defer close(workerCh)

	for i := 0; i < maxWorkers; i++ {
		go func(id int) {
			for conn := range workerCh {
				HandleConnection(conn, ch, fmt.Sprintf("tcp-%d", id))
			}
		}(i)
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			util.Warn("⚠️ Accept error: %v", err)
			continue
		}
		workerCh <- conn
	}
}

// HandleConnection reads length-prefixed commands from conn and writes one
// length-prefixed response per command.
func HandleConnection(conn net.Conn, ch *controller.CommandHandler, session string) {
	defer conn.Close()

	ctx := controller.NewClientContext(session)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(idleTimeout))
		data, err := readFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				util.Warn("⚠️ Read command error: %v", err)
			}
			return
		}

		cmd := strings.TrimSpace(string(data))
		if strings.EqualFold(cmd, "EXIT") {
			_ = writeResponse(conn, "BYE")
			return
		}
		if err := writeResponse(conn, ch.HandleCommand(cmd, ctx)); err != nil {
			util.Warn("⚠️ Write response error: %v", err)
			return
		}
	}
}

func readFrame(r io.Reader) ([]byte, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, err
	}
	msgLen := binary.BigEndian.Uint32(lenBuf)
	if msgLen > maxCommandSize {
		return nil, fmt.Errorf("command of %d bytes exceeds limit %d", msgLen, maxCommandSize)
	}
	msgBuf := make([]byte, msgLen)
	if _, err := io.ReadFull(r, msgBuf); err != nil {
		return nil, err
	}
	return msgBuf, nil
}

// WriteFrame writes msg with a 4-byte big-endian length prefix.
func WriteFrame(w io.Writer, msg []byte) error {
	frame := make([]byte, 4+len(msg))
	binary.BigEndian.PutUint32(frame, uint32(len(msg)))
	copy(frame[4:], msg)
	_, err := w.Write(frame)
	return err
}

// ReadFrame reads one length-prefixed frame written by WriteFrame.
func ReadFrame(r io.Reader) ([]byte, error) {
	return readFrame(r)
}

func writeResponse(conn net.Conn, msg string) error {
	return WriteFrame(conn, []byte(msg))
}
