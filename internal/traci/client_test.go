package traci

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"reflect"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeVehicle struct {
	x, y, angle, speed float64
}

// fakeSumo answers the subset of TraCI the client speaks.
type fakeSumo struct {
	ln net.Listener

	mu       sync.Mutex
	order    []string
	vehicles map[string]*fakeVehicle
	steps    int
	setSpeed map[string]float64
	closed   bool

	stepDelay time.Duration // applied once, to the next step reply
}

func startFakeSumo(t *testing.T) *fakeSumo {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	f := &fakeSumo{
		ln:       ln,
		order:    []string{"veh0", "veh1"},
		vehicles: map[string]*fakeVehicle{"veh0": {1, 2, 90, 13.9}, "veh1": {3, 4, 180, 0}},
		setSpeed: map[string]float64{},
	}
	t.Cleanup(func() { ln.Close() })
	go f.serve()
	return f
}

func (f *fakeSumo) serve() {
	conn, err := f.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		body, err := ReadMessage(conn)
		if err != nil {
			return
		}
		r := NewReader(body)
		id := readCommandHeader(r)
		reply, done := f.handle(id, r)
		if d := f.takeDelay(id); d > 0 {
			time.Sleep(d)
		}
		if err := WriteMessage(conn, reply); err != nil || done {
			return
		}
	}
}

func (f *fakeSumo) takeDelay(id byte) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id != cmdSimStep {
		return 0
	}
	d := f.stepDelay
	f.stepDelay = 0
	return d
}

func status(w *Writer, id byte, result byte, desc string) {
	s := NewWriter()
	s.WriteUbyte(result)
	s.WriteString(desc)
	w.WriteCommand(id, s.Bytes())
}

func (f *fakeSumo) handle(id byte, r *Reader) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := NewWriter()
	switch id {
	case cmdGetVersion:
		status(w, id, rtypeOK, "")
		v := NewWriter()
		v.WriteInt(21)
		v.WriteString("SUMO fake")
		w.WriteCommand(cmdGetVersion, v.Bytes())
	case cmdSimStep:
		f.steps++
		status(w, id, rtypeOK, "")
		w.WriteInt(0)
	case cmdClose:
		f.closed = true
		status(w, id, rtypeOK, "")
		return w.Bytes(), true
	case cmdGetVehicleVariable:
		varID := r.ReadUbyte()
		obj := r.ReadString()
		v := NewWriter()
		v.WriteUbyte(varID)
		v.WriteString(obj)
		if varID == varIDList {
			v.WriteUbyte(typeStringList)
			v.WriteStringList(f.order)
		} else {
			veh, ok := f.vehicles[obj]
			if !ok {
				status(w, id, rtypeErr, "Vehicle '"+obj+"' is not known")
				return w.Bytes(), false
			}
			switch varID {
			case varPosition:
				v.WriteUbyte(typePosition2D)
				v.WriteDouble(veh.x)
				v.WriteDouble(veh.y)
			case varAngle:
				v.WriteUbyte(typeDouble)
				v.WriteDouble(veh.angle)
			case varSpeed:
				v.WriteUbyte(typeDouble)
				v.WriteDouble(veh.speed)
			default:
				status(w, id, rtypeNotImplemented, "unsupported variable")
				return w.Bytes(), false
			}
		}
		status(w, id, rtypeOK, "")
		w.WriteCommand(cmdResponseVehicleVariable, v.Bytes())
	case cmdSetVehicleVariable:
		r.ReadUbyte()
		obj := r.ReadString()
		r.ReadUbyte()
		f.setSpeed[obj] = r.ReadDouble()
		status(w, id, rtypeOK, "")
	default:
		status(w, id, rtypeNotImplemented, "unknown command")
	}
	return w.Bytes(), false
}

func connect(t *testing.T, f *fakeSumo) *Client {
	t.Helper()
	c := NewClient(Options{Address: f.ln.Addr().String(), IOTimeout: 2 * time.Second}, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestClientSession(t *testing.T) {
	f := startFakeSumo(t)
	c := connect(t, f)
	ctx := context.Background()

	if err := c.Step(ctx); err != nil {
		t.Fatal(err)
	}
	ids, err := c.VehicleIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ids, []string{"veh0", "veh1"}) {
		t.Fatalf("ids = %v", ids)
	}
	x, y, err := c.Position(ctx, "veh1")
	if err != nil || x != 3 || y != 4 {
		t.Fatalf("position = %v,%v,%v", x, y, err)
	}
	if a, err := c.Angle(ctx, "veh0"); err != nil || a != 90 {
		t.Fatalf("angle = %v,%v", a, err)
	}
	if s, err := c.Speed(ctx, "veh0"); err != nil || s != 13.9 {
		t.Fatalf("speed = %v,%v", s, err)
	}
	if err := c.SetSpeed(ctx, "veh0", 0); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.steps != 1 {
		t.Fatalf("steps = %d", f.steps)
	}
	if v, ok := f.setSpeed["veh0"]; !ok || v != 0 {
		t.Fatalf("set speed = %v,%v", v, ok)
	}
	if !f.closed {
		t.Fatal("close command not sent")
	}
}

func TestUnknownVehicleIsCommandFailure(t *testing.T) {
	f := startFakeSumo(t)
	c := connect(t, f)
	defer c.Close()

	_, _, err := c.Position(context.Background(), "ghost")
	if !errors.Is(err, ErrCommandFailed) {
		t.Fatalf("err = %v, want ErrCommandFailed", err)
	}
	// The session stays usable after a failed command.
	if err := c.Step(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestLateReplyDropsConnection(t *testing.T) {
	f := startFakeSumo(t)
	f.mu.Lock()
	f.stepDelay = 150 * time.Millisecond
	f.mu.Unlock()
	c := NewClient(Options{Address: f.ln.Addr().String(), IOTimeout: 50 * time.Millisecond}, zap.NewNop())
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}

	err := c.Step(context.Background())
	if !errors.Is(err, ErrConnectionLost) || !errors.Is(err, os.ErrDeadlineExceeded) {
		t.Fatalf("step err = %v, want connection lost on timeout", err)
	}
	// The late reply must never be read as the answer to a later request.
	for i := 0; i < 3; i++ {
		if _, err := c.VehicleIDs(context.Background()); !errors.Is(err, ErrNotConnected) {
			t.Fatalf("call %d after timeout: err = %v, want ErrNotConnected", i, err)
		}
		if err := c.Step(context.Background()); !errors.Is(err, ErrNotConnected) {
			t.Fatalf("step %d after timeout: err = %v, want ErrNotConnected", i, err)
		}
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close after lost connection: %v", err)
	}
}

func TestCallsBeforeConnect(t *testing.T) {
	c := NewClient(Options{Address: "127.0.0.1:1"}, zap.NewNop())
	if err := c.Step(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close of unconnected client: %v", err)
	}
}

func TestConnectFailsWhenNothingListens(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	c := NewClient(Options{Address: addr, Retries: 1, RetryDelay: 10 * time.Millisecond}, zap.NewNop())
	if err := c.Connect(context.Background()); err == nil {
		t.Fatal("expected connect error")
	}
}

func TestWriteCommandShortForm(t *testing.T) {
	content := NewWriter()
	content.WriteUbyte(varSpeed)
	content.WriteString("veh0")
	content.WriteUbyte(typeDouble)
	content.WriteDouble(1.5)

	w := NewWriter()
	w.WriteCommand(cmdSetVehicleVariable, content.Bytes())
	got := w.Bytes()

	want := []byte{20, cmdSetVehicleVariable, varSpeed, 0, 0, 0, 4, 'v', 'e', 'h', '0', typeDouble,
		0x3f, 0xf8, 0, 0, 0, 0, 0, 0}
	if !bytes.Equal(got, want) {
		t.Fatalf("got % x\nwant % x", got, want)
	}
}

func TestWriteCommandExtendedForm(t *testing.T) {
	w := NewWriter()
	w.WriteCommand(cmdSimStep, make([]byte, 300))
	r := NewReader(w.Bytes())
	if n := r.ReadUbyte(); n != 0 {
		t.Fatalf("short length byte = %d, want 0", n)
	}
	if n := r.ReadInt(); n != 306 {
		t.Fatalf("extended length = %d, want 306", n)
	}
	if id := r.ReadUbyte(); id != cmdSimStep {
		t.Fatalf("id = 0x%02x", id)
	}
	if r.Remaining() != 300 {
		t.Fatalf("remaining = %d", r.Remaining())
	}
}

func TestReaderTruncation(t *testing.T) {
	r := NewReader([]byte{0, 0, 0, 9, 'a'})
	if s := r.ReadString(); s != "" {
		t.Fatalf("truncated string = %q", s)
	}
	if !errors.Is(r.Err(), errShort) {
		t.Fatalf("err = %v", r.Err())
	}

	r = NewReader([]byte{0x7f, 0xff, 0xff, 0xff})
	if list := r.ReadStringList(); list != nil || r.Err() == nil {
		t.Fatalf("oversized list = %v, err = %v", list, r.Err())
	}
}

func TestMessageFraming(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMessage(&buf, []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf.Bytes()[:4], []byte{0, 0, 0, 7}) {
		t.Fatalf("header = % x", buf.Bytes()[:4])
	}
	body, err := ReadMessage(&buf)
	if err != nil || !bytes.Equal(body, []byte{1, 2, 3}) {
		t.Fatalf("body = %v, %v", body, err)
	}

	if _, err := ReadMessage(bytes.NewReader([]byte{0, 0, 0, 2})); err == nil {
		t.Fatal("expected error for length below header size")
	}
}
