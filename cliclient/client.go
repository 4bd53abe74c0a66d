/*
Package cliclient implements a client for the CommuniGate Pro CLI/PWD
interface, the line-based administration protocol of a CommuniGate Pro mail
server.

Each request is a single CRLF-terminated line. Each response is a single line
starting with a numeric status code, optionally followed by structured data:
strings, integers in several radixes, timestamps, IP addresses, base64 data
blocks, arrays and dictionaries. Parse turns such a line into a code and a
tree of [Value]s, EncodeString/DecodeString implement the escaping of text in
atoms and quoted strings, and EncodeValue renders dictionaries and sequences
for command arguments.

Use Dial or New to establish a session. A session authenticates either with
USER/PASS in the clear, or with APOP, hashing the session id from the server
greeting together with the password so the password itself does not travel
over the wire. After authentication the client switches the session to INLINE
mode, making the server render every response as a single line.

A Client has one request outstanding at a time and is not safe for concurrent
use without external serialization. All operations block, bounded by the
configured timeout on each read and write. Protocol transcripts are logged at
[cgplog.LevelTrace] with prefixes "CR: " and "CW: " (client read/write), with
lines carrying credentials at [cgplog.LevelTraceauth].
*/
package cliclient

import (
	"bufio"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/secure/precis"

	"github.com/webnames-ca/cgpro/cgpio"
	"github.com/webnames-ca/cgpro/cgplog"
)

var (
	ErrStatus   = errors.New("cli server sent unexpected status code") // Response code not in the accepted set for the command.
	ErrProtocol = errors.New("cli protocol error")                     // Unexpected greeting or response during session establishment.
	ErrSyntax   = errors.New("cli response syntax error")              // Malformed response line, fatal for that response only.
	ErrExtract  = errors.New("cli response without expected payload")  // Expected value shape absent from the parsed response.
	ErrBotched  = errors.New("cli connection is botched")              // Set on a client after an i/o error, no further commands possible.
	ErrClosed   = errors.New("client is closed")
)

// DefaultTimeout is the deadline applied to each read and write on the
// connection when Opts.Timeout is zero.
const DefaultTimeout = 100 * time.Second

// AuthMethod selects how a session authenticates.
type AuthMethod string

const (
	// USER and PASS commands, password in the clear.
	AuthPassword AuthMethod = "password"

	// APOP command with the MD5 digest of the greeting session id and the
	// password.
	AuthAPOP AuthMethod = "apop"
)

// Opts are parameters for a session.
type Opts struct {
	Username string

	// Password is prepared with the precis OpaqueString profile before use, for
	// both PASS and the APOP digest, normalizing unicode lookalikes the same way
	// servers commonly do when storing passwords. A password that does not
	// survive the profile is used as-is.
	Password string

	Auth    AuthMethod    // Default AuthPassword.
	Timeout time.Duration // Per read/write deadline. Default DefaultTimeout.
}

// Error is a failed command, wrapping one of the Err variables in this
// package or an underlying i/o error, with the context needed to reproduce
// the failure against the live server.
type Error struct {
	Code    int    // Response status code. -1 if the response had no recognizable code, 0 for failures without a response.
	Command string // Command being executed, e.g. "listaccounts" or "(greeting)".
	Line    string // Raw response line, or any partial data read before an i/o error.
	Err     error
}

func (e Error) Unwrap() error {
	return e.Err
}

func (e Error) Error() string {
	s := e.Err.Error()
	if e.Command != "" {
		s += fmt.Sprintf(", command %q", e.Command)
	}
	if e.Line != "" {
		s += fmt.Sprintf(", response %q", e.Line)
	}
	return s
}

// Submission is a diagnostic snapshot of the last request/response pair. It
// is overwritten on every command, there is no history. Callers wanting more
// than the latest pair must copy it out before issuing the next command.
type Submission struct {
	Sent       time.Time
	Received   time.Time
	ServerAddr string
	Domain     string // Domain a command operated on, if any.
	Command    string
	Request    string
	Response   string // Raw response, or an error note for failed reads.
}

// Client is a session with the CLI/PWD interface of a server.
//
// Use Dial or New to get a client. Methods on Client return errors of type
// Error; use errors.Is with the Err variables of this package to classify
// them.
type Client struct {
	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
	tr   *cgpio.TraceReader // Kept for changing trace levels during authentication.
	tw   *cgpio.TraceWriter

	log     cgplog.Log
	lastlog time.Time // For adding delta timestamps between log lines.
	timeout time.Duration

	serverAddr string
	sessionID  string // From the greeting, for APOP.

	botched bool // If set, an i/o error left the protocol out of sync and no further commands are sent.

	cmd      string // Last or active command label, for errors and metrics.
	cmdStart time.Time

	submission *Submission
}

// Dial connects to the CLI/PWD interface at addr (host:port) and establishes
// a session with New. The connection is closed when New fails.
func Dial(ctx context.Context, elog *slog.Logger, addr string, opts Opts) (*Client, error) {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	c, err := New(elog, conn, opts)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// New establishes a session on conn: it reads and validates the greeting,
// authenticates and switches the session to INLINE mode. If an error is
// returned the connection is unusable and the caller must close it.
//
// Logging is written to elog; protocol transcripts at [cgplog.LevelTrace].
func New(elog *slog.Logger, conn net.Conn, opts Opts) (client *Client, rerr error) {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		conn:       conn,
		timeout:    timeout,
		serverAddr: conn.RemoteAddr().String(),
		lastlog:    time.Now(),
		cmd:        "(greeting)",
		cmdStart:   time.Now(),
	}
	c.log = cgplog.New("cliclient", elog).WithFunc(func() []slog.Attr {
		now := time.Now()
		l := []slog.Attr{slog.Duration("delta", now.Sub(c.lastlog))}
		c.lastlog = now
		return l
	})
	c.tr = cgpio.NewTraceReader(c.log, "CR: ", conn)
	c.r = bufio.NewReader(c.tr)
	c.tw = cgpio.NewTraceWriter(c.log, "CW: ", timeoutWriter{conn, timeout, c.log})
	c.w = bufio.NewWriter(c.tw)

	defer c.recover(&rerr)

	// The greeting is a regular response line. It must have status 200 and it
	// carries the session id used for APOP, e.g.
	// "200 mail.example CommuniGate Pro PWD Server 7.1.10 ready <50.123@mail.example>".
	greeting := c.xcommand("")
	if greeting.Code != C200OK {
		c.xerrorf(greeting.Code, greeting.Raw, "%w: greeting with status %d, expected %d", ErrProtocol, greeting.Code, C200OK)
	}
	for _, v := range greeting.Values {
		if s, ok := v.(String); ok && strings.HasPrefix(string(s), "<") {
			c.sessionID = string(s)
			break
		}
	}

	c.auth(opts)

	// INLINE makes the server render each response as a single line.
	c.cmd = "inline"
	c.xcommand("INLINE", C200OK)

	return c, nil
}

func (c *Client) auth(opts Opts) {
	// Same password preparation as for storing/verifying passwords: prevents
	// login failures on lookalike unicode input. Passwords that don't survive the
	// profile are used as-is.
	pw := opts.Password
	if prepared, err := precis.OpaqueString.String(pw); err == nil {
		pw = prepared
	}

	method := opts.Auth
	if method == "" {
		method = AuthPassword
	}
	switch method {
	case AuthAPOP:
		if c.sessionID == "" {
			c.xerrorf(0, "", "%w: greeting without session id, cannot authenticate with apop", ErrProtocol)
		}
		digest := md5.Sum([]byte(c.sessionID + pw))
		c.cmd = "apop"
		c.xcommand(fmt.Sprintf("APOP %s %s", EncodeString(opts.Username), hex.EncodeToString(digest[:])), C200OK)
	case AuthPassword:
		defer c.xtrace(cgplog.LevelTraceauth)()
		c.cmd = "user"
		c.xcommand("USER "+EncodeString(opts.Username), C200OK, C300ProvideData)
		c.cmd = "pass"
		c.xcommand("PASS "+EncodeString(pw), C200OK)
	default:
		c.xerrorf(0, "", "unknown auth method %q", method)
	}
}

// Command sends a single command line and returns the parsed response. If
// acceptable is non-empty and the response status code is not among them, an
// Error wrapping ErrStatus is returned.
//
// Callers should build line with EncodeString/EncodeValue for any argument
// not under their control.
func (c *Client) Command(line string, acceptable ...int) (resp Response, rerr error) {
	defer c.recover(&rerr)

	if c.conn == nil {
		return Response{}, ErrClosed
	}
	if c.botched {
		return Response{}, ErrBotched
	}

	c.cmd = commandLabel(line)
	return c.xcommand(line, acceptable...), nil
}

// commandLabel returns the first word of a command line, lowercased, for
// error messages, logging and metrics.
func commandLabel(line string) string {
	word, _, _ := strings.Cut(line, " ")
	return strings.ToLower(word)
}

// xcommand writes the request line (empty for the greeting, which has none),
// reads one response line and parses it, keeping the submission snapshot
// current. It panics with an Error on failure.
func (c *Client) xcommand(line string, acceptable ...int) Response {
	c.cmdStart = time.Now()
	sub := &Submission{Sent: c.cmdStart, ServerAddr: c.serverAddr, Command: c.cmd, Request: line}
	c.submission = sub
	defer func() {
		x := recover()
		if x == nil {
			return
		}
		if e, ok := x.(Error); ok && sub.Received.IsZero() {
			sub.Response = fmt.Sprintf("(error: %v; partial response %q)", e.Err, e.Line)
		}
		panic(x)
	}()

	if line != "" {
		c.xwriteline(line)
	}
	text := c.xreadline()
	sub.Received = time.Now()
	sub.Response = text

	resp, err := Parse(text)
	if err != nil {
		panic(Error{-1, c.cmd, text, err})
	}

	duration := time.Since(c.cmdStart)
	metricCommands.WithLabelValues(c.cmd, fmt.Sprintf("%d", resp.Code)).Observe(float64(duration) / float64(time.Second))
	c.log.Debug("cli command result",
		slog.String("cmd", c.cmd),
		slog.Int("code", resp.Code),
		slog.Duration("duration", duration))

	if len(acceptable) > 0 && !slices.Contains(acceptable, resp.Code) {
		panic(Error{resp.Code, c.cmd, text, fmt.Errorf("%w: got %d, expected %v", ErrStatus, resp.Code, acceptable)})
	}
	return resp
}

func (c *Client) xerrorf(code int, line string, format string, args ...any) {
	panic(Error{code, c.cmd, line, fmt.Errorf(format, args...)})
}

func (c *Client) recover(rerr *error) {
	x := recover()
	if x == nil {
		return
	}
	err, ok := x.(Error)
	if !ok {
		metricPanics.Inc()
		panic(x)
	}
	*rerr = err
}

func (c *Client) xreadline() string {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		c.log.Errorx("setting read deadline", err)
	}
	line, err := c.r.ReadString('\n')
	if err != nil {
		c.botched = true
		panic(Error{0, c.cmd, line, fmt.Errorf("read response: %w", err)})
	}
	return strings.TrimRight(line, "\r\n")
}

func (c *Client) xwriteline(line string) {
	_, err := fmt.Fprintf(c.w, "%s\r\n", line)
	if err == nil {
		err = c.w.Flush()
	}
	if err != nil {
		c.botched = true
		panic(Error{0, c.cmd, "", fmt.Errorf("write command: %w", err)})
	}
}

func (c *Client) xflush() {
	if c.botched {
		return
	}
	if err := c.w.Flush(); err != nil {
		c.botched = true
		panic(Error{0, c.cmd, "", fmt.Errorf("flush: %w", err)})
	}
}

func (c *Client) xtrace(level slog.Level) func() {
	c.xflush()
	c.tr.SetTrace(level)
	c.tw.SetTrace(level)
	return func() {
		c.xflush()
		c.tr.SetTrace(cgplog.LevelTrace)
		c.tw.SetTrace(cgplog.LevelTrace)
	}
}

// timeoutWriter passes each Write on to conn after setting a write deadline
// based on timeout.
type timeoutWriter struct {
	conn    net.Conn
	timeout time.Duration
	log     cgplog.Log
}

func (w timeoutWriter) Write(buf []byte) (int, error) {
	if err := w.conn.SetWriteDeadline(time.Now().Add(w.timeout)); err != nil {
		w.log.Errorx("setting write deadline", err)
	}
	return w.conn.Write(buf)
}

// Botched returns whether an i/o error left the session in an unknown state.
// A botched client can only be closed. A cleanly closed client is not
// botched; commands on it fail with ErrClosed.
func (c *Client) Botched() bool {
	return c.botched
}

// LastSubmission returns a copy of the snapshot of the most recent
// request/response pair, and whether a request has been made. The snapshot
// of a failed read contains the error and any partial response.
func (c *Client) LastSubmission() (Submission, bool) {
	if c.submission == nil {
		return Submission{}, false
	}
	return *c.submission, true
}

// Close ends the session and closes the connection. If the connection is
// still in a known-good state, a QUIT command is sent first, and the response
// read with a short timeout. Closing an already closed client is a no-op.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}

	if !c.botched {
		c.cmd = "quit"
		c.cmdStart = time.Now()
		_, err := fmt.Fprintf(c.w, "QUIT\r\n")
		if err == nil {
			err = c.w.Flush()
		}
		if err == nil {
			if derr := c.conn.SetReadDeadline(time.Now().Add(5 * time.Second)); derr == nil {
				if _, rerr := c.r.ReadString('\n'); rerr != nil {
					c.log.Debugx("reading quit response", rerr)
				}
			}
		} else {
			c.log.Debugx("writing quit", err)
		}
	}

	err := c.conn.Close()
	c.conn = nil
	c.submission = nil
	return err
}
