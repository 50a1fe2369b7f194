package handler

import (
	"errors"
	"testing"

	"duplexrpc/errs"
	"duplexrpc/schema"
)

type ping struct{ Nonce int }
type pong struct{ Nonce int }

func echoHandler(req *ping, rep *pong) error {
	rep.Nonce = req.Nonce
	return nil
}

func TestBindAndLookup(t *testing.T) {
	facility := schema.NewRegistry(schema.JSONCodec{})
	schema.Register[ping](facility, "examples.proto", "examples.Ping")
	schema.Register[pong](facility, "examples.proto", "examples.Pong")

	var reg Registry
	if err := Bind[ping, pong](&reg, facility, "examples.Ping", "examples.Pong", echoHandler); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}

	th, err := reg.Lookup(facility, "examples.Ping")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}

	reqInst := th.NewRequest()
	req := reqInst.Value().(*ping)
	req.Nonce = 42

	repInst := th.NewReply()
	if err := th.Invoke(reqInst, repInst); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if repInst.Value().(*pong).Nonce != 42 {
		t.Fatalf("expect nonce 42, got %d", repInst.Value().(*pong).Nonce)
	}
}

func TestLookupUnknownMessage(t *testing.T) {
	facility := schema.NewRegistry(schema.JSONCodec{})
	var reg Registry

	_, err := reg.Lookup(facility, "examples.DoesNotExist")
	if !errors.Is(err, errs.ErrUnknownProtocolDescriptor) {
		t.Fatalf("expect ErrUnknownProtocolDescriptor, got %v", err)
	}
}

func TestLookupUnboundIndex(t *testing.T) {
	facility := schema.NewRegistry(schema.JSONCodec{})
	schema.Register[ping](facility, "examples.proto", "examples.Ping")
	schema.Register[pong](facility, "examples.proto", "examples.Pong")

	var reg Registry
	// Bind only Pong's slot so Ping's index exists in the file but has no
	// handler registered at it.
	if err := Bind[pong, ping](&reg, facility, "examples.Pong", "examples.Ping", func(*pong, *ping) error { return nil }); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}

	_, err := reg.Lookup(facility, "examples.Ping")
	if !errors.Is(err, errs.ErrUnknownProtocolDescriptor) {
		t.Fatalf("expect ErrUnknownProtocolDescriptor for unbound index, got %v", err)
	}
}

func TestBindTwiceLastWriterWins(t *testing.T) {
	facility := schema.NewRegistry(schema.JSONCodec{})
	schema.Register[ping](facility, "examples.proto", "examples.Ping")
	schema.Register[pong](facility, "examples.proto", "examples.Pong")

	var reg Registry
	Bind[ping, pong](&reg, facility, "examples.Ping", "examples.Pong", func(req *ping, rep *pong) error {
		rep.Nonce = 1
		return nil
	})
	Bind[ping, pong](&reg, facility, "examples.Ping", "examples.Pong", func(req *ping, rep *pong) error {
		rep.Nonce = 2
		return nil
	})

	th, err := reg.Lookup(facility, "examples.Ping")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	rep := th.NewReply()
	if err := th.Invoke(th.NewRequest(), rep); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if rep.Value().(*pong).Nonce != 2 {
		t.Fatalf("expect last-writer-wins nonce 2, got %d", rep.Value().(*pong).Nonce)
	}
}

func TestClear(t *testing.T) {
	facility := schema.NewRegistry(schema.JSONCodec{})
	schema.Register[ping](facility, "examples.proto", "examples.Ping")
	schema.Register[pong](facility, "examples.proto", "examples.Pong")

	var reg Registry
	Bind[ping, pong](&reg, facility, "examples.Ping", "examples.Pong", echoHandler)
	reg.Clear()

	_, err := reg.Lookup(facility, "examples.Ping")
	if !errors.Is(err, errs.ErrUnknownProtocolDescriptor) {
		t.Fatalf("expect ErrUnknownProtocolDescriptor after Clear, got %v", err)
	}
}
