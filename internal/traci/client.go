// Package traci is a minimal client for the SUMO TraCI protocol: stepping the
// simulation and reading or steering vehicles.
package traci

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrNotConnected is returned by every call made before Connect or after Close.
	ErrNotConnected = errors.New("traci: not connected")
	// ErrCommandFailed wraps a non-OK status returned by SUMO.
	ErrCommandFailed = errors.New("traci: command failed")
	// ErrConnectionLost wraps the transport error that closed the session.
	// Later calls return ErrNotConnected until Connect succeeds again.
	ErrConnectionLost = errors.New("traci: connection lost")
)

// Client holds one TraCI connection. Requests are strictly request/response
// and serialised by mu.
type Client struct {
	addr        string
	dialTimeout time.Duration
	ioTimeout   time.Duration
	retries     int
	retryDelay  time.Duration

	mu   sync.Mutex
	conn net.Conn

	log *zap.Logger
}

// Options configures a Client.
type Options struct {
	Address     string
	DialTimeout time.Duration
	IOTimeout   time.Duration
	Retries     int           // extra connect attempts while SUMO starts up
	RetryDelay  time.Duration // pause between connect attempts
}

func NewClient(opts Options, log *zap.Logger) *Client {
	if opts.IOTimeout <= 0 {
		opts.IOTimeout = 10 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	return &Client{
		addr:        opts.Address,
		dialTimeout: opts.DialTimeout,
		ioTimeout:   opts.IOTimeout,
		retries:     opts.Retries,
		retryDelay:  opts.RetryDelay,
		log:         log.Named("traci"),
	}
}

// Connect dials SUMO and checks the protocol version. Dial failures are retried
// up to Options.Retries times; the last error is returned.
func (c *Client) Connect(ctx context.Context) error {
	d := net.Dialer{Timeout: c.dialTimeout}
	var conn net.Conn
	for attempt := 0; ; attempt++ {
		var err error
		conn, err = d.DialContext(ctx, "tcp", c.addr)
		if err == nil {
			break
		}
		if attempt >= c.retries {
			return fmt.Errorf("connect %s: %w", c.addr, err)
		}
		c.log.Warn("sumo not reachable, retrying",
			zap.String("addr", c.addr), zap.Int("attempt", attempt+1), zap.Error(err))
		select {
		case <-ctx.Done():
			return fmt.Errorf("connect %s: %w", c.addr, ctx.Err())
		case <-time.After(c.retryDelay):
		}
	}

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = conn
	c.mu.Unlock()

	api, ident, err := c.Version(ctx)
	if err != nil {
		c.drop()
		return fmt.Errorf("version handshake: %w", err)
	}
	c.log.Info("connected to sumo",
		zap.String("addr", c.addr), zap.Int32("api", api), zap.String("version", ident))
	return nil
}

// Close asks SUMO to end the session and closes the socket. The socket is
// closed even when the close command fails.
func (c *Client) Close() error {
	_, err := c.roundTrip(context.Background(), cmdClose, nil)
	c.drop()
	if errors.Is(err, ErrNotConnected) {
		return nil
	}
	return err
}

func (c *Client) drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Version returns the TraCI API level and the SUMO identification string.
func (c *Client) Version(ctx context.Context) (int32, string, error) {
	r, err := c.roundTrip(ctx, cmdGetVersion, nil)
	if err != nil {
		return 0, "", err
	}
	if id := readCommandHeader(r); id != cmdGetVersion {
		return 0, "", fmt.Errorf("traci: version response id 0x%02x", id)
	}
	api := r.ReadInt()
	ident := r.ReadString()
	return api, ident, r.Err()
}

// Step advances the simulation by one step.
func (c *Client) Step(ctx context.Context) error {
	w := NewWriter()
	w.WriteDouble(0) // 0 = exactly one step
	r, err := c.roundTrip(ctx, cmdSimStep, w.Bytes())
	if err != nil {
		return fmt.Errorf("simulation step: %w", err)
	}
	// Subscription results follow; none are ever registered.
	r.ReadInt()
	return r.Err()
}

// VehicleIDs lists the vehicles currently in the network.
func (c *Client) VehicleIDs(ctx context.Context) ([]string, error) {
	r, err := c.getVehicleVar(ctx, varIDList, "", typeStringList)
	if err != nil {
		return nil, fmt.Errorf("vehicle id list: %w", err)
	}
	ids := r.ReadStringList()
	return ids, r.Err()
}

// Position returns the vehicle position in network coordinates.
func (c *Client) Position(ctx context.Context, id string) (float64, float64, error) {
	r, err := c.getVehicleVar(ctx, varPosition, id, typePosition2D)
	if err != nil {
		return 0, 0, fmt.Errorf("position of %s: %w", id, err)
	}
	x := r.ReadDouble()
	y := r.ReadDouble()
	return x, y, r.Err()
}

// Angle returns the vehicle heading in degrees.
func (c *Client) Angle(ctx context.Context, id string) (float64, error) {
	return c.getDouble(ctx, varAngle, id)
}

// Speed returns the vehicle speed in m/s.
func (c *Client) Speed(ctx context.Context, id string) (float64, error) {
	return c.getDouble(ctx, varSpeed, id)
}

// SetSpeed pins the vehicle speed in m/s. A negative speed hands control back
// to the car-following model.
func (c *Client) SetSpeed(ctx context.Context, id string, speed float64) error {
	w := NewWriter()
	w.WriteUbyte(varSpeed)
	w.WriteString(id)
	w.WriteUbyte(typeDouble)
	w.WriteDouble(speed)
	if _, err := c.roundTrip(ctx, cmdSetVehicleVariable, w.Bytes()); err != nil {
		return fmt.Errorf("set speed of %s: %w", id, err)
	}
	return nil
}

func (c *Client) getDouble(ctx context.Context, varID byte, id string) (float64, error) {
	r, err := c.getVehicleVar(ctx, varID, id, typeDouble)
	if err != nil {
		return 0, fmt.Errorf("variable 0x%02x of %s: %w", varID, id, err)
	}
	v := r.ReadDouble()
	return v, r.Err()
}

// getVehicleVar sends a get command and positions the reader on the value.
func (c *Client) getVehicleVar(ctx context.Context, varID byte, objID string, wantType byte) (*Reader, error) {
	w := NewWriter()
	w.WriteUbyte(varID)
	w.WriteString(objID)
	r, err := c.roundTrip(ctx, cmdGetVehicleVariable, w.Bytes())
	if err != nil {
		return nil, err
	}
	if id := readCommandHeader(r); id != cmdResponseVehicleVariable {
		return nil, fmt.Errorf("traci: response id 0x%02x, want 0x%02x", id, cmdResponseVehicleVariable)
	}
	if v := r.ReadUbyte(); v != varID {
		return nil, fmt.Errorf("traci: response variable 0x%02x, want 0x%02x", v, varID)
	}
	if got := r.ReadString(); got != objID {
		return nil, fmt.Errorf("traci: response for object %q, want %q", got, objID)
	}
	if t := r.ReadUbyte(); t != wantType {
		return nil, fmt.Errorf("traci: value type 0x%02x, want 0x%02x", t, wantType)
	}
	return r, r.Err()
}

// roundTrip sends one command and reads its status. The returned reader is
// positioned after the status command.
//
// A transport error or an unparseable reply leaves the stream out of step with
// the requests, so the connection is closed. A non-OK status keeps it open.
func (c *Client) roundTrip(ctx context.Context, cmdID byte, content []byte) (*Reader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, ErrNotConnected
	}

	deadline := time.Now().Add(c.ioTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, c.lost(fmt.Errorf("set deadline: %w", err))
	}

	w := NewWriter()
	w.WriteCommand(cmdID, content)
	if err := WriteMessage(c.conn, w.Bytes()); err != nil {
		return nil, c.lost(err)
	}
	body, err := ReadMessage(c.conn)
	if err != nil {
		return nil, c.lost(err)
	}

	r := NewReader(body)
	if err := readStatus(r, cmdID); err != nil {
		if errors.Is(err, ErrCommandFailed) {
			return nil, err
		}
		return nil, c.lost(err)
	}
	return r, nil
}

// lost closes the connection after a transport failure. Caller holds mu.
func (c *Client) lost(err error) error {
	c.log.Warn("sumo connection lost", zap.String("addr", c.addr), zap.Error(err))
	c.conn.Close()
	c.conn = nil
	return fmt.Errorf("%w: %w", ErrConnectionLost, err)
}

func readStatus(r *Reader, cmdID byte) error {
	id := readCommandHeader(r)
	result := r.ReadUbyte()
	desc := r.ReadString()
	if err := r.Err(); err != nil {
		return err
	}
	if id != cmdID {
		return fmt.Errorf("traci: status for command 0x%02x, want 0x%02x", id, cmdID)
	}
	if result != rtypeOK {
		return fmt.Errorf("%w: command 0x%02x status 0x%02x: %s", ErrCommandFailed, cmdID, result, desc)
	}
	return nil
}

// readCommandHeader consumes a command length (short or extended) and
// returns the command id.
func readCommandHeader(r *Reader) byte {
	if n := r.ReadUbyte(); n == 0 {
		r.ReadInt()
	}
	return r.ReadUbyte()
}
