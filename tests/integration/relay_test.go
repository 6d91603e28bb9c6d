//go:build integration

// Integration tests for the guard relay
//
// These tests run both gateways in one process: a TCP producer feeds the
// send-mode Ingress, frames cross a simulated lossy Ethernet segment, and
// the recv-mode Egress forwards the decoded body to a TCP sink.
//
// Run with: go test -tags=integration ./tests/integration/...

package integration

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/netip"
	"sort"
	"testing"
	"time"

	"github.com/therealutkarshpriyadarshi/guardlink/pkg/common"
	"github.com/therealutkarshpriyadarshi/guardlink/pkg/ethernet"
	"github.com/therealutkarshpriyadarshi/guardlink/pkg/guardl2"
	"github.com/therealutkarshpriyadarshi/guardlink/pkg/relay"
)

var (
	gatewayA = common.MACAddress{0x02, 0x00, 0x5e, 0x00, 0x00, 0x0a}
	gatewayB = common.MACAddress{0x02, 0x00, 0x5e, 0x00, 0x00, 0x0b}
)

// xorTransform stands in for the external cipher stage.
type xorTransform byte

func (x xorTransform) Name() string { return "xor" }

func (x xorTransform) Encode(data []byte) ([]byte, error) {
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ byte(x)
	}
	return out, nil
}

func (x xorTransform) Decode(data []byte) ([]byte, error) { return x.Encode(data) }

func fastConfig() guardl2.Config {
	cfg := guardl2.DefaultConfig()
	cfg.InitialRTO = 20 * time.Millisecond
	cfg.MinRTO = 20 * time.Millisecond
	cfg.MaxRTO = 500 * time.Millisecond
	cfg.PollInterval = 10 * time.Millisecond
	cfg.InactivityTimeout = 5 * time.Second
	return cfg
}

// startSink accepts connections and reports each one's full contents.
func startSink(t *testing.T, ctx context.Context) (netip.AddrPort, <-chan []byte) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	context.AfterFunc(ctx, func() { ln.Close() })

	bodies := make(chan []byte, 16)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				data, err := io.ReadAll(conn)
				if err == nil {
					bodies <- data
				}
			}()
		}
	}()
	return netip.MustParseAddrPort(ln.Addr().String()), bodies
}

type gatewayPair struct {
	ingressAddr string
	ingress     *relay.Ingress
	egress      *relay.Egress
	pipeline    relay.Pipeline
}

func startGateways(t *testing.T, ctx context.Context, pc ethernet.PipeConfig) *gatewayPair {
	t.Helper()
	a, b := ethernet.NewPipe(gatewayA, gatewayB, pc)
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})

	pipeline := relay.Pipeline{xorTransform(0x5a)}

	sender := guardl2.NewSender(a, gatewayA, gatewayB, guardl2.WithConfig(fastConfig()))
	ingress := relay.NewIngress(sender, relay.IngressConfig{MaxConns: 4}, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	go ingress.Serve(ctx, ln)

	receiver := guardl2.NewReceiver(b, gatewayB, guardl2.WithConfig(fastConfig()))
	egress := relay.NewEgress(receiver, relay.EgressConfig{DialTimeout: time.Second, Pipeline: pipeline}, nil)
	go egress.Run(ctx)

	return &gatewayPair{ingressAddr: ln.Addr().String(), ingress: ingress, egress: egress, pipeline: pipeline}
}

// produce writes payload as one producer connection.
func produce(addr string, payload []byte) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Write(payload)
	return err
}

func body(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i) ^ seed
	}
	return b
}

// TestRelayEndToEnd pushes one document through both gateways.
func TestRelayEndToEnd(t *testing.T) {
	tests := []struct {
		name string
		pc   ethernet.PipeConfig
		size int
	}{
		{"clean", ethernet.PipeConfig{Seed: 1}, 64 * 1024},
		{"lossy", ethernet.PipeConfig{LossRate: 0.03, MaxDelay: time.Millisecond, Seed: 42}, 200 * 1024},
		{"reordering", ethernet.PipeConfig{MinDelay: 0, MaxDelay: 3 * time.Millisecond, Seed: 9}, 100 * 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()

			sinkAddr, bodies := startSink(t, ctx)
			gw := startGateways(t, ctx, tt.pc)

			want := body(tt.size, 0x33)
			h := relay.Header{Source: netip.MustParseAddrPort("192.0.2.10:40000"), Destination: sinkAddr}
			payload, err := relay.Encapsulate(h, gw.pipeline, want)
			if err != nil {
				t.Fatalf("Encapsulate() error = %v", err)
			}
			if err := produce(gw.ingressAddr, payload); err != nil {
				t.Fatalf("produce() error = %v", err)
			}

			select {
			case got := <-bodies:
				if !bytes.Equal(got, want) {
					t.Errorf("sink received %d bytes, want %d identical bytes", len(got), len(want))
				}
			case <-ctx.Done():
				t.Fatal("timed out waiting for the sink")
			}

			if st := gw.egress.Stats(); st.Forwarded != 1 {
				t.Errorf("egress Forwarded = %d, want 1", st.Forwarded)
			}
		})
	}
}

// TestRelayConcurrentProducers checks that transfers from concurrent
// producers are serialized over the link and all arrive.
func TestRelayConcurrentProducers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	sinkAddr, bodies := startSink(t, ctx)
	gw := startGateways(t, ctx, ethernet.PipeConfig{LossRate: 0.01, MaxDelay: time.Millisecond, Seed: 5})

	const producers = 3
	var want []int
	for i := 0; i < producers; i++ {
		size := 10000 * (i + 1)
		want = append(want, size)
		h := relay.Header{Source: netip.MustParseAddrPort("198.51.100.1:1000"), Destination: sinkAddr}
		payload, err := relay.Encapsulate(h, gw.pipeline, body(size, byte(i)))
		if err != nil {
			t.Fatalf("Encapsulate() error = %v", err)
		}
		go func() {
			if err := produce(gw.ingressAddr, payload); err != nil {
				t.Errorf("produce() error = %v", err)
			}
		}()
	}

	var got []int
	for len(got) < producers {
		select {
		case b := <-bodies:
			got = append(got, len(b))
		case <-ctx.Done():
			t.Fatalf("received %d of %d bodies before timeout", len(got), producers)
		}
	}

	sort.Ints(got)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("body sizes = %v, want %v", got, want)
			break
		}
	}
}

// TestRelayUnreachableDestination verifies that a failed forward does not
// stop the egress loop.
func TestRelayUnreachableDestination(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	sinkAddr, bodies := startSink(t, ctx)
	gw := startGateways(t, ctx, ethernet.PipeConfig{Seed: 3})

	// Reserve a port and release it so nothing listens there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	dead := netip.MustParseAddrPort(ln.Addr().String())
	ln.Close()

	src := netip.MustParseAddrPort("192.0.2.1:1")
	first, _ := relay.Encapsulate(relay.Header{Source: src, Destination: dead}, gw.pipeline, []byte("lost"))
	second, _ := relay.Encapsulate(relay.Header{Source: src, Destination: sinkAddr}, gw.pipeline, []byte("delivered"))

	for _, p := range [][]byte{first, second} {
		if err := produce(gw.ingressAddr, p); err != nil {
			t.Fatalf("produce() error = %v", err)
		}
	}

	select {
	case got := <-bodies:
		if string(got) != "delivered" {
			t.Errorf("sink received %q, want %q", got, "delivered")
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for the sink")
	}

	deadline := time.Now().Add(5 * time.Second)
	for gw.egress.Stats().Failed == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if st := gw.egress.Stats(); st.Failed != 1 {
		t.Errorf("egress Failed = %d, want 1", st.Failed)
	}
}
